package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/servicestation/internal/config"
	"github.com/Paintersrp/servicestation/internal/host"
	"github.com/Paintersrp/servicestation/internal/service"
	"github.com/Paintersrp/servicestation/internal/store"
)

// Version is stamped into release builds with -ldflags.
var Version = "1.0.0"

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code  int
	Err   error
	Usage bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

var newInstaller = func(out io.Writer) *host.Installer {
	return &host.Installer{Store: store.Default(), Out: out}
}

var runHost = func(ctx stdcontext.Context, svc *service.Service) uint32 {
	return host.Run(ctx, svc, host.Options{Log: svc.Log})
}

type options struct {
	configPath string
	install    bool
	uninstall  bool
	remove     bool
	version    bool
}

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *options) {
	opts := &options{}

	root := &cobra.Command{
		Use:   "servicestation",
		Short: "Run a command line as a managed background service",
		Long: "servicestation runs the command line named in its configuration file as a\n" +
			"background service, restarting it whenever it exits.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &ExitError{Code: 1, Err: fmt.Errorf("invalid argument %q", args[0]), Usage: true}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.version:
				fmt.Fprintf(cmd.OutOrStdout(), "ServiceStation: v%s\n", Version)
				return nil
			case opts.install:
				return runInstall(cmd, opts, true)
			case opts.uninstall || opts.remove:
				return runInstall(cmd, opts, false)
			default:
				return runService(cmd, opts)
			}
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultFile, "Path to the configuration file")
	flags.BoolVarP(&opts.install, "install", "i", false, "Install the service")
	flags.BoolVarP(&opts.uninstall, "uninstall", "u", false, "Remove the service")
	flags.BoolVarP(&opts.remove, "remove", "r", false, "Remove the service (same as --uninstall)")
	flags.BoolVarP(&opts.version, "version", "v", false, "Print the ServiceStation version")
	root.MarkFlagsMutuallyExclusive("install", "uninstall", "remove")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: 1, Err: fmt.Errorf("invalid argument: %w", err), Usage: true}
	})
	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, opts
}

func runInstall(cmd *cobra.Command, opts *options, install bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := config.Load(opts.configPath)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	for _, w := range snap.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	inst := newInstaller(cmd.OutOrStdout())
	if install {
		err = inst.Install(ctx, snap)
	} else {
		err = inst.Uninstall(ctx, snap)
	}
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	return nil
}

func runService(cmd *cobra.Command, opts *options) error {
	svc := service.New(service.Options{
		ConfigPath:     opts.configPath,
		ExplicitConfig: cmd.Flags().Changed("config"),
		Store:          store.Default(),
		Version:        Version,
	})
	defer svc.Close()

	if code := runHost(cmd.Context(), svc); code != 0 {
		return &ExitError{Code: int(code)}
	}
	return nil
}

// normalizeArgs maps the legacy "-?" help switch onto --help.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == "-?" {
			arg = "--help"
		}
		out[i] = arg
	}
	return out
}

// Main runs the command line and returns the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	root, _ := newRootCommand()
	root.SetArgs(normalizeArgs(args))
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(stdcontext.Background())
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, exitErr.Err)
		}
		if exitErr.Usage {
			fmt.Fprint(stderr, root.UsageString())
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, err)
	fmt.Fprint(stderr, root.UsageString())
	return 1
}

// Execute runs the CLI entrypoint.
func Execute() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}
