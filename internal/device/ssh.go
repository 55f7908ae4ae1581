package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/netaudit/shapeaudit/internal/config"
)

const (
	// DefaultPort is the SSH port used when an address carries none.
	DefaultPort = 22

	// DefaultConnectTimeout bounds TCP connect, handshake and prompt discovery.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultCommandTimeout bounds a single command round trip.
	DefaultCommandTimeout = 60 * time.Second

	// ptyWidth is wide enough that the device never wraps an echoed command.
	ptyWidth = 511
)

// SSHDialer opens interactive SSH shell sessions to IOS style devices.
type SSHDialer struct {
	creds          config.Credentials
	port           int
	connectTimeout time.Duration
	commandTimeout time.Duration
}

// NewSSHDialer creates a dialer from the run options. Zero values in opts
// fall back to the package defaults.
func NewSSHDialer(opts *config.Options, creds config.Credentials) *SSHDialer {
	d := &SSHDialer{
		creds:          creds,
		port:           opts.Port,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
	}
	if d.port <= 0 {
		d.port = DefaultPort
	}
	if d.connectTimeout <= 0 {
		d.connectTimeout = DefaultConnectTimeout
	}
	if d.commandTimeout <= 0 {
		d.commandTimeout = DefaultCommandTimeout
	}
	return d
}

// Dial connects to address, authenticates and waits for the CLI prompt.
// Failures are returned as *ConnectError.
func (d *SSHDialer) Dial(ctx context.Context, address string) (Session, error) {
	target := address
	if _, _, err := net.SplitHostPort(address); err != nil {
		target = net.JoinHostPort(address, strconv.Itoa(d.port))
	}

	dctx, cancel := context.WithTimeout(ctx, d.connectTimeout)
	defer cancel()

	var nd net.Dialer
	conn, err := nd.DialContext(dctx, "tcp", target)
	if err != nil {
		return nil, &ConnectError{Address: address, Reason: classifyConnect(err), Err: err}
	}

	// The handshake has no context of its own. Bound it with a deadline and
	// abort it when ctx is canceled.
	if dl, ok := dctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(dctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })

	cfg := &ssh.ClientConfig{
		User: d.creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(d.creds.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = d.creds.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.connectTimeout,
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, target, cfg)
	stopped := stop()
	if err != nil {
		conn.Close()
		if !stopped || dctx.Err() != nil {
			err = fmt.Errorf("%w: %w", dctx.Err(), err)
		}
		return nil, &ConnectError{Address: address, Reason: classifyConnect(err), Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(c, chans, reqs)
	s, err := openShell(dctx, client, d.creds.EnableSecret(), d.commandTimeout)
	if err != nil {
		client.Close()
		return nil, &ConnectError{Address: address, Reason: classifyConnect(err), Err: err}
	}
	return s, nil
}

// shellSession drives an interactive CLI over an SSH pty.
type shellSession struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser

	out  chan []byte
	done chan struct{}
	buf  bytes.Buffer

	base           string
	privileged     bool
	secret         string
	commandTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func openShell(ctx context.Context, client *ssh.Client, secret string, commandTimeout time.Duration) (*shellSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := sess.RequestPty("vt100", 24, ptyWidth, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("requesting pty: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("starting shell: %w", err)
	}

	s := &shellSession{
		client:         client,
		sess:           sess,
		stdin:          stdin,
		out:            make(chan []byte, 16),
		done:           make(chan struct{}),
		secret:         secret,
		commandTimeout: commandTimeout,
	}
	go s.readLoop(stdout)

	if err := s.write("\n"); err != nil {
		s.Close()
		return nil, err
	}
	raw, err := s.readUntil(ctx, func(b string) bool {
		_, ok := detectPrompt(b)
		return ok
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("waiting for prompt: %w", err)
	}
	prompt, _ := detectPrompt(raw)
	s.base = basePrompt(prompt)
	s.privileged = prompt[len(prompt)-1] == '#'

	if _, err := s.Run(ctx, "terminal length 0"); err != nil {
		s.Close()
		return nil, fmt.Errorf("disabling paging: %w", err)
	}
	return s, nil
}

func (s *shellSession) readLoop(r io.Reader) {
	defer close(s.out)
	b := make([]byte, 4096)
	for {
		n, err := r.Read(b)
		if n > 0 {
			chunk := append([]byte(nil), b[:n]...)
			select {
			case s.out <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *shellSession) write(text string) error {
	if _, err := io.WriteString(s.stdin, text); err != nil {
		return fmt.Errorf("writing to session: %w", err)
	}
	return nil
}

// readUntil accumulates device output until match reports true for the
// buffered text, then returns and clears the buffer.
func (s *shellSession) readUntil(ctx context.Context, match func(string) bool) (string, error) {
	for {
		if text := s.buf.String(); match(text) {
			s.buf.Reset()
			return text, nil
		}
		select {
		case chunk, ok := <-s.out:
			if !ok {
				return s.buf.String(), fmt.Errorf("session closed by device: %w", io.ErrUnexpectedEOF)
			}
			s.buf.Write(chunk)
		case <-ctx.Done():
			return s.buf.String(), ctx.Err()
		}
	}
}

func (s *shellSession) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.commandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.commandTimeout)
}

// Enable enters privileged mode, answering the password prompt with the
// enable secret. It is a no-op when the session is already privileged.
func (s *shellSession) Enable(ctx context.Context) error {
	if s.privileged {
		return nil
	}
	const cmd = "enable"
	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	if err := s.write(cmd + "\n"); err != nil {
		return &CommandError{Command: cmd, Err: err}
	}
	raw, err := s.readUntil(ctx, func(b string) bool {
		return isPasswordPrompt(b) || commandComplete(b, cmd, s.base)
	})
	if err != nil {
		return &CommandError{Command: cmd, Output: raw, Err: err}
	}

	if isPasswordPrompt(raw) {
		if err := s.write(s.secret + "\n"); err != nil {
			return &CommandError{Command: cmd, Err: err}
		}
		raw, err = s.readUntil(ctx, func(b string) bool {
			return isPasswordPrompt(b) || endsWithPrompt(b, s.base)
		})
		if err != nil {
			return &CommandError{Command: cmd, Output: raw, Err: err}
		}
	}

	if lastLine(raw) != s.base+"#" {
		return &CommandError{Command: cmd, Err: fmt.Errorf("enable mode refused: %w", ErrRejected)}
	}
	s.privileged = true
	return nil
}

// Run sends command and waits for the prompt to return.
func (s *shellSession) Run(ctx context.Context, command string) (string, error) {
	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	if err := s.write(command + "\n"); err != nil {
		return "", &CommandError{Command: command, Err: err}
	}
	raw, err := s.readUntil(ctx, func(b string) bool {
		return commandComplete(b, command, s.base)
	})
	if err != nil {
		return "", &CommandError{Command: command, Output: cleanOutput(raw, command), Err: err}
	}

	output := cleanOutput(raw, command)
	if line, bad := cliError(output); bad {
		return "", &CommandError{Command: command, Output: line, Err: ErrRejected}
	}
	return output, nil
}

// Close logs out and releases the connection. It is safe to call more than
// once.
func (s *shellSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.write("exit\n")
		close(s.done)
		_ = s.sess.Close()
		if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
