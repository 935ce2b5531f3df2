package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"wexec"
	"wexec/internal/config"
	"wexec/internal/loop"
	"wexec/internal/version"

	"github.com/spf13/cobra"
)

type deps struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Getwd     func() (string, error)
	LookupEnv func(string) (string, bool)
	// Signals overrides the OS termination signal source.
	Signals <-chan os.Signal
	Context context.Context
}

func defaultDeps() deps {
	return deps{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Getwd:     os.Getwd,
		LookupEnv: os.LookupEnv,
		Context:   context.Background(),
	}
}

type flagValues struct {
	verbose         bool
	debounce        int
	clear           bool
	ignore          []string
	exts            []string
	onBusyUpdate    string
	signal          string
	noDefaultIgnore bool
	noGlobalIgnore  bool
	noProjectIgnore bool
	gracePeriod     int
	configPath      string
}

// run executes the CLI and returns the process exit code.
func run(args []string, d deps) int {
	exitCode := 0
	root := newRootCommand(d, &exitCode)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(d.Stderr, "wexec: %v\n", err)
		if exitCode == 0 {
			exitCode = loop.ExitFatal
		}
	}
	return exitCode
}

func newRootCommand(d deps, exitCode *int) *cobra.Command {
	flags := &flagValues{}
	cmd := &cobra.Command{
		Use:           "wexec [flags] [paths...] -- command [args...]",
		Short:         "Run a command and rerun it when files change",
		Long:          "wexec watches paths (the current directory by default) and reruns the command after matching files change.\nWithout --, every argument is part of the command.",
		Version:       version.GetVersionInfo().String(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, command := splitArgs(args, cmd.ArgsLenAtDash())
			settings, err := loadSettings(cmd, flags, paths, command, d)
			if err != nil {
				return err
			}
			result, err := runWatch(settings, d)
			*exitCode = result.ExitCode()
			return err
		},
	}
	cmd.SetOut(d.Stdout)
	cmd.SetErr(d.Stderr)

	f := cmd.Flags()
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "log every change and decision")
	f.IntVarP(&flags.debounce, "debounce", "d", 100, "quiet period in milliseconds before rerunning")
	f.BoolVarP(&flags.clear, "clear", "L", false, "clear the terminal before each run")
	f.StringArrayVarP(&flags.ignore, "ignore", "i", nil, "ignore paths matching this glob (repeatable)")
	f.StringSliceVarP(&flags.exts, "exts", "e", nil, "only rerun for these extensions, comma-separated")
	f.StringVar(&flags.onBusyUpdate, "on-busy-update", "signal", "when the command is still running: do-nothing, queue, or signal")
	f.StringVar(&flags.signal, "signal", "SIGTERM", "signal sent to stop the command: SIGHUP, SIGINT, SIGQUIT, or SIGTERM")
	f.BoolVar(&flags.noDefaultIgnore, "no-default-ignore", false, "do not ignore editor backups, .DS_Store, and .git")
	f.BoolVar(&flags.noGlobalIgnore, "no-global-ignore", false, "do not read the global gitignore")
	f.BoolVar(&flags.noProjectIgnore, "no-project-ignore", false, "do not read the project's .gitignore files")
	f.IntVar(&flags.gracePeriod, "grace-period", 3000, "milliseconds to wait after the stop signal before SIGKILL")
	f.StringVar(&flags.configPath, "config", "", "config file (default ./"+config.DefaultFileName+" when present)")
	return cmd
}

// splitArgs separates watch paths from the command at "--". Without "--" all
// arguments form the command.
func splitArgs(args []string, dash int) ([]string, []string) {
	if dash < 0 {
		return nil, args
	}
	return args[:dash], args[dash:]
}

func loadSettings(cmd *cobra.Command, flags *flagValues, paths, command []string, d deps) (config.Settings, error) {
	workDir, err := d.Getwd()
	if err != nil {
		return config.Settings{}, err
	}
	path, err := config.ResolveFile(flags.configPath, workDir)
	if err != nil {
		return config.Settings{}, err
	}
	defaultsPayload, err := fs.ReadFile(wexec.EmbeddedConfigFS, "config/defaults.toml")
	if err != nil {
		return config.Settings{}, err
	}
	env, err := config.EnvOverrides(d.LookupEnv)
	if err != nil {
		return config.Settings{}, err
	}

	settings, err := config.LoadSettings(path, defaultsPayload, config.MergeOverrides(env, flagOverrides(cmd, flags, paths, command)))
	if err != nil {
		return config.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		if errors.Is(err, config.ErrNoCommand) {
			return config.Settings{}, fmt.Errorf("%w; usage: %s", err, cmd.UseLine())
		}
		return config.Settings{}, err
	}
	return settings, nil
}

// flagOverrides includes only flags set on the command line, so file and
// environment values survive flag defaults.
func flagOverrides(cmd *cobra.Command, flags *flagValues, paths, command []string) map[string]any {
	overrides := map[string]any{}
	changed := cmd.Flags().Changed
	if changed("verbose") {
		overrides["verbose"] = flags.verbose
	}
	if changed("debounce") {
		overrides["debounce"] = flags.debounce
	}
	if changed("clear") {
		overrides["clear"] = flags.clear
	}
	if changed("ignore") {
		overrides["ignore"] = flags.ignore
	}
	if changed("exts") {
		overrides["exts"] = flags.exts
	}
	if changed("on-busy-update") {
		overrides["on-busy-update"] = flags.onBusyUpdate
	}
	if changed("signal") {
		overrides["signal"] = flags.signal
	}
	if changed("no-default-ignore") {
		overrides["no-default-ignore"] = flags.noDefaultIgnore
	}
	if changed("no-global-ignore") {
		overrides["no-global-ignore"] = flags.noGlobalIgnore
	}
	if changed("no-project-ignore") {
		overrides["no-project-ignore"] = flags.noProjectIgnore
	}
	if changed("grace-period") {
		overrides["supervisor.grace-period"] = flags.gracePeriod
	}
	if len(paths) > 0 {
		overrides["paths"] = paths
	}
	if len(command) > 0 {
		overrides["command"] = command
	}
	return overrides
}
