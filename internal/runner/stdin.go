package runner

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/netaudit/shapeaudit/internal/scanner"
)

// startStdinToggle starts a goroutine that reads single keypresses from
// stdin and toggles the pauser on Enter or Space. It returns a cleanup
// function that restores the terminal state. If stdin is not a terminal,
// it returns a nil pauser and a no-op cleanup.
func startStdinToggle(w io.Writer, quiet bool) (pauser *scanner.Pauser, cleanup func()) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return nil, func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		if !quiet {
			fmt.Fprintf(w, "[!] Could not enable raw terminal: %v\n", err)
		}
		return nil, func() {}
	}

	// MakeRaw disables OPOST, which breaks \n -> \r\n on the report and
	// progress output. Only raw input is needed.
	fixOutputProcessing(fd)

	pauser = scanner.NewPauser()

	cleanup = func() {
		_ = term.Restore(fd, oldState)
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}

			switch key := buf[0]; key {
			case 0x03:
				// Ctrl+C: restore the terminal and re-send SIGINT so the
				// signal context cancels the audit.
				_ = term.Restore(fd, oldState)
				sendInterrupt()
				return
			case '\r', '\n', ' ':
				nowPaused := pauser.Toggle()
				if quiet {
					continue
				}
				if nowPaused {
					fmt.Fprintf(w, "\r\033[K[*] Audit PAUSED, in-flight devices will finish. Press Enter or Space to resume\n")
				} else {
					fmt.Fprintf(w, "\r\033[K[*] Audit RESUMED\n")
				}
			}
		}
	}()

	return pauser, cleanup
}
