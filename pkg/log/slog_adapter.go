package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders protocol events as debug records of an slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter returns an adapter logging at slog.LevelDebug.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// Log writes event as a single "protocol" record.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("dir", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.ApplianceID != "" {
		attrs = append(attrs, slog.String("appliance", event.ApplianceID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs, slog.Int("size", event.Frame.Size))
		if event.Frame.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.String("action", m.Action),
			slog.String("resource", m.Resource),
		)
		if m.MsgID != nil {
			attrs = append(attrs, slog.Int64("msg_id", *m.MsgID))
		}
		if m.Code != nil {
			attrs = append(attrs, slog.Int("code", *m.Code))
		}
		if len(m.Payload) > 0 {
			attrs = append(attrs, slog.Int("items", len(m.Payload)))
		}
		if m.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("took", *m.ProcessingTime))
		}
	case event.StateChange != nil:
		sc := event.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState),
		)
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("control", event.ControlMsg.Type.String()))
		if event.ControlMsg.CloseCode != nil {
			attrs = append(attrs, slog.Int("close_code", *event.ControlMsg.CloseCode))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error", event.Error.Message),
			slog.String("context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(ctx, a.level, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
