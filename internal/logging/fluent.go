package logging

import (
	"context"
	"log/slog"
	"time"
)

// poster is the part of *fluent.Fluent used for forwarding.
type poster interface {
	PostWithTime(tag string, tm time.Time, message interface{}) error
}

// fluentHandler forwards records to Fluent Bit as flat maps.
type fluentHandler struct {
	client poster
	tag    string
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

func newFluentHandler(client poster, tag string, level slog.Leveler) *fluentHandler {
	return &fluentHandler{client: client, tag: tag, level: level}
}

func (h *fluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *fluentHandler) Handle(_ context.Context, r slog.Record) error {
	msg := map[string]any{
		"level":   r.Level.String(),
		"message": r.Message,
	}
	for _, a := range h.attrs {
		addAttr(msg, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(msg, h.group, a)
		return true
	})
	return h.client.PostWithTime(h.tag, r.Time, msg)
}

func (h *fluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *fluentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func addAttr(m map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(m, key, ga)
		}
		return
	}
	switch a.Value.Kind() {
	case slog.KindString, slog.KindInt64, slog.KindUint64, slog.KindFloat64, slog.KindBool:
		m[key] = a.Value.Any()
	case slog.KindTime:
		m[key] = a.Value.Time().Format(time.RFC3339Nano)
	default:
		m[key] = a.Value.String()
	}
}
