package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/csync/internal/config"
	"go.klb.dev/csync/internal/frame"
	"go.klb.dev/csync/internal/syncer"
	"go.klb.dev/csync/internal/transport"
)

func newRecvCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "recv [-f file] [-i image] [-a]",
		Short: "Receive frames from watched devices into files instead of the clipboard",
		Long: `Subscribes to the watched devices and writes what arrives into files.
Without --file received text is logged; without --image received images are
only reported. With --append each text is added below a header naming the
sender and the time.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runRecv(cmd, v) },
	}

	cmd.Flags().StringP("file", "f", "", "write received text to this file")
	cmd.Flags().StringP("image", "i", "", "write received images to this file")
	cmd.Flags().BoolP("append", "a", false, "append text to the file instead of overwriting it")
	addSyncFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runRecv(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if len(cfg.Watch) == 0 {
		return errors.New("nothing to receive: no devices in watch")
	}
	format, err := cfg.Formatter()
	if err != nil {
		return err
	}

	var s sink
	s.textPath, _ = cmd.Flags().GetString("file")
	s.imagePath, _ = cmd.Flags().GetString("image")
	s.appendTxt, _ = cmd.Flags().GetBool("append")
	s.now = time.Now
	if err := s.prepare(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, err := transport.DialRedis(ctx, cfg.Redis.Options())
	if err != nil {
		return err
	}
	defer relay.Close()

	client := transport.NewClient(relay, format, cfg.TransportConfig())
	frames, err := client.Subscribe(ctx, cfg.Watch)
	if err != nil {
		return err
	}
	for f := range frames {
		if err := s.handle(f); err != nil {
			slog.Error("write received frame failed", "from", f.Origin, "kind", f.Kind, "err", err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return syncer.ErrStreamClosed
}

// sink writes received frames to files.
type sink struct {
	textPath  string
	imagePath string
	appendTxt bool
	now       func() time.Time
}

func (s *sink) prepare() error {
	for _, p := range []string{s.textPath, s.imagePath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", p, err)
		}
	}
	return nil
}

func (s *sink) handle(f *frame.Frame) error {
	switch f.Kind {
	case frame.KindImage:
		if s.imagePath == "" {
			slog.Info("received image", "from", f.Origin, "size", humanize.Bytes(uint64(len(f.Payload))))
			return nil
		}
		start := time.Now()
		if err := os.WriteFile(s.imagePath, f.Payload, 0o644); err != nil {
			return err
		}
		slog.Info("image written", "from", f.Origin, "path", s.imagePath, "took", time.Since(start))
		return nil

	case frame.KindText:
		if s.textPath == "" {
			slog.Info("received text", "from", f.Origin, "text", strings.ReplaceAll(string(f.Payload), "\n", `\n`))
			return nil
		}
		return s.writeText(f)
	}
	return fmt.Errorf("unsupported kind %s", f.Kind)
}

func (s *sink) writeText(f *frame.Frame) error {
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	data := f.Payload
	if s.appendTxt {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		header := fmt.Sprintf(">>>> From: %s, Time: %s", f.Origin, s.now().Format("2006-01-02 15:04:05"))
		data = []byte(header + "\n" + string(f.Payload) + "\n\n")
	}

	file, err := os.OpenFile(s.textPath, flag, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
