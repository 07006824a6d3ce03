package logger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// SlogRecorder writes tracker events as structured log lines. Events
// whose name ends in "failed" are logged at warn level, the rest at info.
type SlogRecorder struct {
	log *slog.Logger
}

func NewSlogRecorder(log *slog.Logger) *SlogRecorder {
	return &SlogRecorder{log: log.With("component", "tracker")}
}

func (r *SlogRecorder) Record(event string, fields map[string]any) {
	level := slog.LevelInfo
	if strings.HasSuffix(event, "failed") {
		level = slog.LevelWarn
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	r.log.LogAttrs(context.Background(), level, event, attrs...)
}
