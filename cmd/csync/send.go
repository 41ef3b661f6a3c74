package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/csync/internal/config"
	"go.klb.dev/csync/internal/frame"
	"go.klb.dev/csync/internal/logging"
	"go.klb.dev/csync/internal/transport"
)

var errNothingToSend = errors.New("nothing to send")

func newSendCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "send [-f file] [-i image] [text]",
		Short: "Publish text or an image to the devices watching this one",
		Long: `Publishes a text and/or an image frame on this device's channel without
touching the local clipboard.

Text comes from --file, else the argument, else stdin when it is not a
terminal. --image sends a PNG file as an image frame.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runSend(cmd, v, args) },
	}

	cmd.Flags().StringP("file", "f", "", "read the text to send from this file")
	cmd.Flags().StringP("image", "i", "", "read an image to send from this file")
	addSyncFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runSend(cmd *cobra.Command, v *viper.Viper, args []string) error {
	setupLogging(v)

	textFile, _ := cmd.Flags().GetString("file")
	imageFile, _ := cmd.Flags().GetString("image")
	frames, err := sendFrames(textFile, imageFile, args, os.Stdin, logging.IsTTY(os.Stdin))
	if err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	format, err := cfg.Formatter()
	if err != nil {
		return err
	}

	ctx := context.Background()
	relay, err := transport.DialRedis(ctx, cfg.Redis.Options())
	if err != nil {
		return err
	}
	defer relay.Close()

	client := transport.NewClient(relay, format, cfg.TransportConfig())
	for _, f := range frames {
		if err := client.Send(ctx, f); err != nil {
			return fmt.Errorf("send %s: %w", f.Kind, err)
		}
		logging.LogPayload("sent", f.Kind, "", f.Payload)
	}
	slog.Debug("send complete", "channel", client.Channel(), "frames", len(frames))
	return nil
}

// sendFrames collects the frames a send invocation publishes, image first.
func sendFrames(textFile, imageFile string, args []string, stdin io.Reader, stdinTTY bool) ([]*frame.Frame, error) {
	var frames []*frame.Frame
	if imageFile != "" {
		data, err := os.ReadFile(imageFile)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("image %s is empty", imageFile)
		}
		frames = append(frames, frame.NewImage(data))
	}

	var text []byte
	switch {
	case textFile != "":
		data, err := os.ReadFile(textFile)
		if err != nil {
			return nil, fmt.Errorf("read text: %w", err)
		}
		text = data
	case len(args) == 1:
		text = []byte(args[0])
	case imageFile == "" && !stdinTTY:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		text = data
	}
	if len(text) > 0 {
		frames = append(frames, frame.NewText(text))
	}

	if len(frames) == 0 {
		return nil, errNothingToSend
	}
	return frames, nil
}
