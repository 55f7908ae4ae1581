package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/netaudit/shapeaudit/internal/config"
	"github.com/netaudit/shapeaudit/internal/logging"
	"github.com/netaudit/shapeaudit/internal/output"
	"github.com/netaudit/shapeaudit/internal/runner"
	"github.com/netaudit/shapeaudit/pkg/version"
)

var opts config.Options

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGETS", []string{"devices", "address", "cidr"}},
	{"CREDENTIALS", []string{"credentials"}},
	{"SESSION", []string{"port", "connect-timeout", "command-timeout", "device-timeout"}},
	{"RATE-LIMIT", []string{"threads", "rate", "adaptive-throttle"}},
	{"POLICY", []string{"strict-tolerance", "timezone"}},
	{"OUTPUT", []string{"output", "format", "sort", "progress", "quiet", "no-color", "on-result"}},
	{"LOGGING", []string{"log-file", "log-level"}},
	{"CONFIGURATION", []string{"resume-file"}},
}

var rootCmd = &cobra.Command{
	Use:     "shapeaudit -d <devices.csv> -c <credentials.yaml> [flags]",
	Short:   "Audit shape average against interface bandwidth on Cisco routers",
	Version: version.Version,
	Long: `shapeaudit logs in to every router in a device list over SSH, compares the
configured "shape average" rate with the interface "bandwidth" statement and
writes one Pass, Fail or Skipped row per device to a CSV report.`,
	Example: `  shapeaudit -d devices.csv -c creds.yaml
  shapeaudit -d devices.csv -c creds.yaml -o report.csv --progress
  shapeaudit -a 10.0.0.1 -a 10.0.0.2 -c creds.yaml --format text
  shapeaudit --cidr 10.20.0.0/24 -c creds.yaml -t 32 --rate 10
  shapeaudit -d devices.csv -c creds.yaml --strict-tolerance --sort status
  shapeaudit -d devices.csv -c creds.yaml --resume-file audit.state
  shapeaudit -d devices.csv -c creds.yaml --on-result "logger -t shapeaudit {address} {status}"`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validate(&opts); err != nil {
			if strings.HasPrefix(err.Error(), "target required") {
				_ = cmd.Help()
				fmt.Fprintln(os.Stderr)
			}
			return err
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		// Once interrupted, restore default handling so a second Ctrl+C
		// terminates immediately.
		context.AfterFunc(ctx, stop)
		return runner.Run(ctx, &opts)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()

	// Targets
	f.StringVarP(&opts.DevicesFile, "devices", "d", "", "Device list (CSV with an ip/address column, or one address per line)")
	f.StringSliceVarP(&opts.Addresses, "address", "a", nil, "Device address to audit (repeatable, comma-separated)")
	f.StringVar(&opts.CIDRTargets, "cidr", "", "CIDR range to audit (e.g. 10.20.0.0/24)")

	// Credentials
	f.StringVarP(&opts.CredentialsFile, "credentials", "c", "", "YAML file with username, password and secret (env: "+config.EnvUsername+", "+config.EnvPassword+", "+config.EnvSecret+")")

	// Session
	f.IntVar(&opts.Port, "port", 22, "SSH port")
	f.DurationVar(&opts.ConnectTimeout, "connect-timeout", 30*time.Second, "TCP connect and SSH handshake timeout")
	f.DurationVar(&opts.CommandTimeout, "command-timeout", 60*time.Second, "Timeout for a single command")
	f.DurationVar(&opts.DeviceTimeout, "device-timeout", 2*time.Minute, "Timeout for the whole per-device audit (0 to disable)")

	// Performance
	f.IntVarP(&opts.Threads, "threads", "t", config.DefaultThreads, "Number of devices audited concurrently")
	f.Float64Var(&opts.Rate, "rate", 0, "Maximum new SSH connections per second (0 = unlimited)")
	f.BoolVar(&opts.AdaptiveThrottle, "adaptive-throttle", false, "Back off after repeated connection failures")

	// Policy
	f.BoolVar(&opts.StrictTolerance, "strict-tolerance", false, "Record bandwidth/shape mismatches beyond 1 bps as Fail")
	f.StringVar(&opts.Timezone, "timezone", config.DefaultTimezone, "IANA time zone for report timestamps")

	// Output
	f.StringVarP(&opts.OutputFile, "output", "o", "", "Report file path (default: stdout)")
	f.StringVar(&opts.OutputFormat, "format", "csv", "Report format: "+strings.Join(output.Formats, ", "))
	f.StringVar(&opts.SortBy, "sort", "", "Sort report rows: "+strings.Join(output.SortKeys, ", ")+" (buffers until the audit completes)")
	f.BoolVar(&opts.Progress, "progress", false, "Show a progress line; Enter pauses and resumes")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "Minimal output")
	f.BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")

	// Hooks
	f.StringVar(&opts.OnResultCmd, "on-result", "", "Shell command to run for each record (receives JSON on stdin)")

	// Logging
	f.StringVar(&opts.LogFile, "log-file", logging.DefaultFile, "Log file path (\"-\" for stderr)")
	f.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	// Resume
	f.StringVar(&opts.ResumeFile, "resume-file", "", "File to save/load audit progress for resume")

	// Custom help: categorized flags.
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		w := os.Stderr
		fmt.Fprint(w, helpBanner(cmd.Version))
		fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n", cmd.Long, cmd.UseLine())
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
		fmt.Fprintf(w, "\nFlags:\n")
		for _, g := range helpGroups {
			fmt.Fprintf(w, "\n%s:\n", g.title)
			for _, name := range g.flags {
				if f := cmd.Flags().Lookup(name); f != nil {
					fmt.Fprintln(w, formatFlag(f))
				}
			}
		}
		fmt.Fprintln(w)
	})
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// validate checks flag combinations that cobra cannot.
func validate(o *config.Options) error {
	if o.DevicesFile == "" && len(o.Addresses) == 0 && o.CIDRTargets == "" {
		return fmt.Errorf("target required: use -d, -a, or --cidr")
	}
	if o.OutputFormat != "" && !slices.Contains(output.Formats, o.OutputFormat) {
		return fmt.Errorf("--format must be one of: %s", strings.Join(output.Formats, ", "))
	}
	if o.SortBy != "" && !slices.Contains(output.SortKeys, o.SortBy) {
		return fmt.Errorf("--sort must be one of: %s", strings.Join(output.SortKeys, ", "))
	}
	if o.Threads < 1 {
		return fmt.Errorf("--threads must be at least 1")
	}
	if o.Rate < 0 {
		return fmt.Errorf("--rate must not be negative")
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	return nil
}

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}

	typ := f.Value.Type()
	if typ != "bool" {
		left += " " + typ
	}

	// Pad to fixed column width for aligned descriptions.
	const col = 36
	for len(left) < col {
		left += " "
	}

	right := f.Usage
	// Show default for non-zero values.
	def := f.DefValue
	if def != "" && def != "false" && def != "0" && def != "0s" && def != "[]" {
		right += fmt.Sprintf(" (default %s)", def)
	}

	return "   " + left + right
}

func helpBanner(ver string) string {
	if ver != "dev" && ver != "" && !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return fmt.Sprintf(`
        __                                  ___ __
   ___ / /  ___ ____  ___ ___ ___ _____ ___/ (_) /_
  (_-</ _ \/ _ '/ _ \/ -_) _ '/ // / _ '/ _  / / __/
 /___/_//_/\_,_/ .__/\__/\_,_/\_,_/\_,_/\_,_/_/\__/   %s
              /_/

`, ver)
}
