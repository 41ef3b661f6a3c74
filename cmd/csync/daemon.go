package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.klb.dev/csync/internal/clip"
	"go.klb.dev/csync/internal/config"
	"go.klb.dev/csync/internal/daemon"
	"go.klb.dev/csync/internal/syncer"
	"go.klb.dev/csync/internal/transport"
)

// startGrace is how long start waits before checking the child survived
// its own config and relay checks.
const startGrace = 300 * time.Millisecond

func newStartCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sync agent in the background",
		Long: `Validates the configuration and launches "csync run" as a detached
process. Its output is appended to the log file in the data directory.
Does nothing if the agent is already running.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStart(cmd, v) },
	}

	addSyncFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStart(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg.DataDir)
	if err != nil {
		return err
	}
	argv, env, err := childArgs(cmd, v)
	if err != nil {
		return err
	}
	d.Env = env

	pid, started, err := d.Start(argv)
	if err != nil {
		return err
	}
	if !started {
		fmt.Printf("csync already running (pid %d)\n", pid)
		return nil
	}
	return confirmStarted(d, pid)
}

func confirmStarted(d *daemon.Daemon, pid int) error {
	time.Sleep(startGrace)
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st.State != daemon.Running {
		return fmt.Errorf("csync exited right after start, see %s", d.LogPath())
	}
	fmt.Printf("csync started (pid %d), logs in %s\n", pid, d.LogPath())
	return nil
}

// secretFlags are forwarded to the child through its environment, so they
// never show up in the process list.
var secretFlags = map[string]string{
	config.KeyPassword: "CSYNC_PASSWORD",
	"redis-password":   "CSYNC_REDIS_PASSWORD",
}

// childArgs re-executes this binary with the hidden run command and every
// flag the user set explicitly. Secret flags come back as env entries.
func childArgs(cmd *cobra.Command, v *viper.Viper) (args, env []string, err error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("locate executable: %w", err)
	}
	args = []string{exe, "run"}
	if used := v.ConfigFileUsed(); used != "" {
		abs, err := filepath.Abs(used)
		if err != nil {
			return nil, nil, fmt.Errorf("config path: %w", err)
		}
		args = append(args, "--config="+abs)
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "no-background":
			return
		}
		if key, ok := secretFlags[f.Name]; ok {
			env = append(env, key+"="+f.Value.String())
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, s := range sv.GetSlice() {
				args = append(args, "--"+f.Name+"="+s)
			}
			return
		}
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args, env, nil
}

func newStopCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "stop",
		Short:   "Stop the background sync agent",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStop(v) },
	}

	addDataDirFlag(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStop(v *viper.Viper) error {
	d, err := daemon.New(dataDir(v))
	if err != nil {
		return err
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st.State == daemon.Running {
		fmt.Printf("stopping csync (pid %d)...\n", st.PID)
	}
	if err := d.Stop(); err != nil {
		return err
	}
	fmt.Println("csync stopped")
	return nil
}

func newRestartCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "restart",
		Short:   "Stop and start the background sync agent",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runRestart(cmd, v) },
	}

	addSyncFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runRestart(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg.DataDir)
	if err != nil {
		return err
	}
	argv, env, err := childArgs(cmd, v)
	if err != nil {
		return err
	}
	d.Env = env
	pid, err := d.Restart(argv)
	if err != nil {
		return err
	}
	return confirmStarted(d, pid)
}

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show whether the sync agent is running",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	addDataDirFlag(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	d, err := daemon.New(dataDir(v))
	if err != nil {
		return err
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	printStatus(os.Stdout, d, st)
	return nil
}

func printStatus(w io.Writer, d *daemon.Daemon, st daemon.Status) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	switch st.State {
	case daemon.Running:
		fmt.Fprintf(w, "csync %d, %s\n", st.PID, green("running"))
	case daemon.Stale:
		fmt.Fprintf(w, "csync %d, %s (stale pid file)\n", st.PID, red("not running"))
	default:
		fmt.Fprintf(w, "csync %s\n", red("not running"))
	}

	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Pid file:\t%s\n", d.PidPath())
	if fi, err := os.Stat(d.LogPath()); err == nil {
		fmt.Fprintf(tw, "Log file:\t%s (%s, updated %s)\n",
			d.LogPath(), humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
	} else {
		fmt.Fprintf(tw, "Log file:\t%s\n", d.LogPath())
	}
	_ = tw.Flush()
}

func newLogsCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "logs [--data-dir DIR] [--config FILE] [tail args]",
		Short: "Show the sync agent log",
		Long: `Runs tail on the agent log file. --data-dir and --config locate the
log file; every other argument is passed to tail as is:

  csync logs -f
  csync logs -n 200 --data-dir /var/lib/csync`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rest, err := applyLogsFlags(cmd, args)
			if err != nil {
				return err
			}
			if err := bindViper(cmd, v); err != nil {
				return err
			}
			return runLogs(v, rest)
		},
	}

	addDataDirFlag(cmd)
	addConfigFlag(cmd)

	return cmd
}

// applyLogsFlags sets the flags logs understands from raw args, which cobra
// leaves unparsed, and returns the remaining args for tail.
func applyLogsFlags(cmd *cobra.Command, args []string) ([]string, error) {
	var rest []string
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(args[i], "--"), "=")
		if !strings.HasPrefix(args[i], "--") || (name != config.KeyDataDir && name != "config") {
			rest = append(rest, args[i])
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag needs an argument: --%s", name)
			}
			i++
			value = args[i]
		}
		if err := cmd.Flags().Set(name, value); err != nil {
			return nil, err
		}
	}
	return rest, nil
}

func runLogs(v *viper.Viper, args []string) error {
	d, err := daemon.New(dataDir(v))
	if err != nil {
		return err
	}
	tail := exec.Command("tail", append(args, d.LogPath())...)
	tail.Stdin = os.Stdin
	tail.Stdout = os.Stdout
	tail.Stderr = os.Stderr
	return tail.Run()
}

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the sync agent in the foreground (internal use)",
		Hidden:  true,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runAgent(v) },
	}

	addSyncFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runAgent(v *viper.Viper) error {
	setupLogging(v)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	format, err := cfg.Formatter()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := clip.New()
	if err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	defer backend.Close()

	relay, err := transport.DialRedis(ctx, cfg.Redis.Options())
	if err != nil {
		return err
	}
	defer relay.Close()

	mode := syncer.ModeFor(cfg.ReadOnly, cfg.WriteOnly, cfg.Watch)
	slog.Info("csync starting",
		"version", Version,
		"name", cfg.Name,
		"relay", cfg.Redis.Addr(),
		"encrypted", cfg.Password != "",
		"mode", mode,
		"watch", cfg.Watch,
	)
	if len(cfg.Watch) == 0 && !cfg.ReadOnly {
		slog.Warn("no devices to watch, only publishing local changes")
	}

	client := transport.NewClient(relay, format, cfg.TransportConfig())
	loop := syncer.New(backend, client, syncer.Config{Mode: mode, Peers: cfg.Watch})
	if err := loop.Run(ctx); err != nil {
		slog.Error("sync loop stopped", "err", err)
		return err
	}
	slog.Info("csync stopped")
	return nil
}
