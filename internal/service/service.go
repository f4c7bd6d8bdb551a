// Package service exposes the mutation and query operations of sessions,
// projects and channels. Every mutation appends one event to the entity's
// partition and replays the partition into its view while holding that
// partition's lock, so concurrent writers in one process cannot leave a
// stale view behind. Across processes the store keeps whichever view has
// folded the most events.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/foreman/internal/telemetry"
	"github.com/user/foreman/internal/types"
	"github.com/user/foreman/internal/view"
)

const scopeName = "github.com/user/foreman/service"

// Store is the slice of the durable store the services write through.
type Store interface {
	types.EventStore
	types.ViewStore
}

// Services bundles the three entity services over one store.
type Services struct {
	Sessions *Sessions
	Projects *Projects
	Channels *Channels
}

// Option configures the services.
type Option func(*writer)

// WithLockDir enables cross-process file locks for session ordinal
// allocation. Lock files are created in dir.
func WithLockDir(dir string) Option {
	return func(w *writer) { w.lockDir = dir }
}

// WithClock sets the clock used to stamp appended messages.
func WithClock(now func() time.Time) Option {
	return func(w *writer) { w.now = now }
}

// New creates the services over store.
func New(store Store, opts ...Option) *Services {
	w := &writer{
		events:   store,
		views:    store,
		mat:      view.NewMaterializer(store, store),
		locks:    make(map[string]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   telemetry.Tracer(scopeName),
		appended: telemetry.Counter(scopeName, telemetry.EventsAppended),
	}
	for _, opt := range opts {
		opt(w)
	}
	return &Services{
		Sessions: &Sessions{w: w},
		Projects: &Projects{w: w},
		Channels: &Channels{w: w},
	}
}

// writer performs append-then-materialize under a per-partition lock.
type writer struct {
	events  types.EventStore
	views   types.ViewStore
	mat     *view.Materializer
	lockDir string
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	tracer   trace.Tracer
	appended metric.Int64Counter
}

// getLock returns the mutex for key, creating one if it doesn't exist.
func (w *writer) getLock(key string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	if lock, ok := w.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	w.locks[key] = lock
	return lock
}

// mutate appends one event and rematerializes the partition, decoding the
// resulting state into out.
func (w *writer) mutate(ctx context.Context, partition, kind string, payload, out any) error {
	lock := w.getLock(partition)
	lock.Lock()
	defer lock.Unlock()
	return w.mutateLocked(ctx, partition, kind, payload, out)
}

// mutateLocked is mutate for callers already holding the partition lock.
func (w *writer) mutateLocked(ctx context.Context, partition, kind string, payload, out any) (err error) {
	ctx, span := w.tracer.Start(ctx, "service."+kind,
		trace.WithAttributes(attribute.String("partition", partition)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	b, err := types.Encode(payload)
	if err != nil {
		return err
	}
	if _, err := w.events.Append(ctx, partition, kind, b); err != nil {
		return fmt.Errorf("append %s: %w", kind, err)
	}
	w.appended.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))

	v, err := w.mat.Materialize(ctx, partition)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", partition, err)
	}
	if err := types.Decode(v.State, out); err != nil {
		return fmt.Errorf("decode %s: %w", v.Key, err)
	}
	return nil
}

// exists reports whether the entity already has a view.
func (w *writer) exists(ctx context.Context, kind types.EntityKind, id string) (bool, error) {
	_, err := w.views.GetView(ctx, types.ViewKey(kind, id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, types.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// get loads the cached state of one entity.
func get[T any](ctx context.Context, views types.ViewStore, kind types.EntityKind, id string) (*T, error) {
	out := new(T)
	if _, err := view.Load(ctx, views, kind, id, out); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return out, nil
}

// list loads every cached state of one entity kind in discovery order.
func list[T any](ctx context.Context, views types.ViewStore, kind types.EntityKind) ([]*T, error) {
	vs, err := views.ListViews(ctx, string(kind)+":")
	if err != nil {
		return nil, fmt.Errorf("list %s views: %w", kind, err)
	}
	out := make([]*T, 0, len(vs))
	for _, v := range vs {
		item := new(T)
		if err := types.Decode(v.State, item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", v.Key, err)
		}
		out = append(out, item)
	}
	return out, nil
}
