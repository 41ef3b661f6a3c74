package logging

import (
	"context"
	"log/slog"

	"github.com/dustin/go-humanize"

	"go.klb.dev/csync/internal/frame"
)

const previewLen = 120

// LogPayload logs a clipboard event at INFO (kind, origin, size) and at DEBUG
// a text preview of up to 120 bytes. Binary payloads only log their size.
func LogPayload(event string, kind frame.Kind, origin string, payload []byte) {
	attrs := []any{"kind", kind, "size", humanize.Bytes(uint64(len(payload)))}
	if origin != "" {
		attrs = append(attrs, "from", origin)
	}
	slog.Info(event, attrs...)

	if kind != frame.KindText || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug("clipboard text", "preview", Preview(payload))
}

// Preview truncates text for logs.
func Preview(text []byte) string {
	if len(text) > previewLen {
		return string(text[:previewLen]) + "…"
	}
	return string(text)
}
