package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrRemoteAttached is returned when a remote sink is attached twice.
var ErrRemoteAttached = errors.New("remote log sink already attached")

// fanoutHandler broadcasts each record to every handler that accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	filtered := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	switch len(filtered) {
	case 0:
		return slog.DiscardHandler
	case 1:
		return filtered[0]
	default:
		return &fanoutHandler{handlers: filtered}
	}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	last := len(h.handlers) - 1
	for idx, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if idx < last {
			rec = record.Clone()
		}
		if err := handler.Handle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// TeeLogger duplicates log output from base into the provided handlers.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(TeeHandler(handlers...))
	}
	all := append([]slog.Handler{base.Handler()}, handlers...)
	return slog.New(TeeHandler(all...))
}

// TeeHandler creates a handler that duplicates log output to multiple handlers.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	return newFanoutHandler(handlers...)
}

// Remote is a sink whose destination is attached at most once after the
// process logger has been built. Until then it is disabled and records are
// only seen by the local handlers it is teed with.
//
// Loggers derived with With or WithGroup before Attach keep their attributes:
// the derivations are recorded and replayed onto the destination per record.
type Remote struct {
	target *atomic.Pointer[slog.Handler]
	derive []func(slog.Handler) slog.Handler
}

// NewRemote returns an unattached remote sink.
func NewRemote() *Remote {
	return &Remote{target: new(atomic.Pointer[slog.Handler])}
}

// Attach sets the destination. Only the first call succeeds.
func (r *Remote) Attach(h slog.Handler) error {
	if h == nil {
		return errors.New("attach nil remote handler")
	}
	if !r.target.CompareAndSwap(nil, &h) {
		return ErrRemoteAttached
	}
	return nil
}

// Attached reports whether a destination has been set.
func (r *Remote) Attached() bool {
	return r.target.Load() != nil
}

func (r *Remote) resolve() slog.Handler {
	ptr := r.target.Load()
	if ptr == nil {
		return nil
	}
	h := *ptr
	for _, fn := range r.derive {
		h = fn(h)
	}
	return h
}

func (r *Remote) Enabled(ctx context.Context, level slog.Level) bool {
	ptr := r.target.Load()
	return ptr != nil && (*ptr).Enabled(ctx, level)
}

func (r *Remote) Handle(ctx context.Context, record slog.Record) error {
	h := r.resolve()
	if h == nil {
		return nil
	}
	return h.Handle(ctx, record)
}

func (r *Remote) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return r
	}
	captured := append([]slog.Attr(nil), attrs...)
	return r.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(captured) })
}

func (r *Remote) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	return r.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (r *Remote) with(fn func(slog.Handler) slog.Handler) *Remote {
	derive := make([]func(slog.Handler) slog.Handler, len(r.derive), len(r.derive)+1)
	copy(derive, r.derive)
	return &Remote{target: r.target, derive: append(derive, fn)}
}

// WithRemote tees base with a fresh remote sink and returns both. The
// returned logger is the process-wide logger; attach the destination later.
func WithRemote(base *slog.Logger) (*slog.Logger, *Remote) {
	remote := NewRemote()
	return TeeLogger(base, remote), remote
}
