package sim

import (
	"context"
	"log/slog"
)

// A LogHook writes a structured record every time it is invoked.
type LogHook struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogHook creates a LogHook that logs at the given level.
func NewLogHook(logger *slog.Logger, level slog.Level) *LogHook {
	return &LogHook{
		logger: logger,
		level:  level,
	}
}

// Func logs the hook position and what is known about the item.
func (h *LogHook) Func(ctx HookCtx) {
	attrs := []any{"pos", ctx.Pos.Name}

	switch item := ctx.Item.(type) {
	case StepInfo:
		attrs = append(attrs,
			"step", item.Index,
			"total", item.Total,
			"time", uint64(item.Time))
	case uint64:
		attrs = append(attrs, "step", item)
	}

	h.logger.Log(context.Background(), h.level, "hook", attrs...)
}
