// Package relay mirrors entity changes to an external messaging surface.
// It polls the global event stream past its cursor, translates each
// partition's new events into posts, and advances the cursor once per batch.
// Delivery is at-least-once: a crash before the cursor write redelivers the
// whole batch.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/user/foreman/internal/delivery"
	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/telemetry"
	"github.com/user/foreman/internal/types"
)

const (
	scopeName     = "github.com/user/foreman/relay"
	threadKeyBase = "thread:"
)

// Config holds the relay settings.
type Config struct {
	// LogChannel is the address handler failures are reported to. Empty
	// disables the side channel.
	LogChannel string
	// BatchLimit caps the events read per tick; 0 reads everything new.
	BatchLimit int
	// ChannelPrefix is prepended to project ids to name new channels.
	ChannelPrefix string
}

// Store is the slice of the durable store the relay reads and writes.
type Store interface {
	types.EventStore
	types.KVStore
}

// Loop is the relay consumer.
type Loop struct {
	events   types.EventStore
	kv       types.KVStore
	cursor   *Cursor
	channels *service.Channels
	sessions *service.Sessions
	target   delivery.Target
	cfg      Config

	relayed  metric.Int64Counter
	failures metric.Int64Counter
}

func New(store Store, svc *service.Services, target delivery.Target, cfg Config) *Loop {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "foreman-"
	}
	return &Loop{
		events:   store,
		kv:       store,
		cursor:   NewCursor(store),
		channels: svc.Channels,
		sessions: svc.Sessions,
		target:   target,
		cfg:      cfg,
		relayed:  telemetry.Counter(scopeName, telemetry.RelayEvents),
		failures: telemetry.Counter(scopeName, telemetry.RelayErrors),
	}
}

// Result summarizes one tick.
type Result struct {
	Events int
	Groups int
	Failed int
	Cursor int64
}

// Tick relays every event past the cursor. Handler failures are reported
// and do not stop the batch; store failures abort the tick without moving
// the cursor.
func (l *Loop) Tick(ctx context.Context) (Result, error) {
	after, _, err := l.cursor.Get(ctx)
	if err != nil {
		return Result{}, err
	}
	events, err := l.events.Scan(ctx, types.ScanOptions{
		After:       after,
		ExcludeKind: types.EventInit,
		Limit:       l.cfg.BatchLimit,
	})
	if err != nil {
		return Result{Cursor: after}, fmt.Errorf("scan events after %d: %w", after, err)
	}
	if len(events) == 0 {
		return Result{Cursor: after}, nil
	}

	groups, order := groupByPartition(events)
	res := Result{Events: len(events), Groups: len(order)}
	for _, partition := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		group := groups[partition]
		if err := l.handleGroup(ctx, partition, group); err != nil {
			res.Failed++
			l.report(ctx, partition, group, err)
			continue
		}
		l.relayed.Add(ctx, int64(len(group)))
	}

	res.Cursor = events[len(events)-1].Seq
	if err := l.cursor.Set(ctx, res.Cursor); err != nil {
		return res, err
	}
	slog.Info("relay tick", "events", res.Events, "groups", res.Groups, "failed", res.Failed, "cursor", res.Cursor)
	return res, nil
}

// groupByPartition keeps event order within each group and orders groups by
// their first event.
func groupByPartition(events []*types.Event) (map[string][]*types.Event, []string) {
	groups := make(map[string][]*types.Event)
	var order []string
	for _, e := range events {
		if _, ok := groups[e.Partition]; !ok {
			order = append(order, e.Partition)
		}
		groups[e.Partition] = append(groups[e.Partition], e)
	}
	return groups, order
}

func (l *Loop) handleGroup(ctx context.Context, partition string, group []*types.Event) error {
	for _, e := range group {
		if err := l.handle(ctx, e); err != nil {
			return fmt.Errorf("%w: %s seq %d: %w", types.ErrRelayHandler, e.Kind, e.Seq, err)
		}
	}
	return nil
}

func (l *Loop) handle(ctx context.Context, e *types.Event) error {
	switch e.Kind {
	case types.EventProjectCreated:
		var p types.ProjectCreated
		if err := e.DecodePayload(&p); err != nil {
			return err
		}
		if p.Name == nil {
			p.Name = types.Ptr(e.Partition)
		}
		return l.postToChannel(ctx, types.ProjectID(e.Partition), formatProjectCreated(p))

	case types.EventProjectUpdated:
		var p types.ProjectUpdated
		if err := e.DecodePayload(&p); err != nil {
			return err
		}
		return l.postToChannel(ctx, types.ProjectID(e.Partition), formatProjectUpdated(e.Partition, p))

	case types.EventSessionCreated:
		var p types.SessionCreated
		if err := e.DecodePayload(&p); err != nil {
			return err
		}
		_, err := l.thread(ctx, types.SessionID(e.Partition), deref(p.Title))
		return err

	case types.EventSessionUpdated:
		var p types.SessionUpdated
		if err := e.DecodePayload(&p); err != nil {
			return err
		}
		text := formatSessionUpdated(p)
		if text == "" {
			return nil
		}
		thread, err := l.thread(ctx, types.SessionID(e.Partition), "")
		if err != nil {
			return err
		}
		if _, err := l.target.Post(ctx, thread, text); err != nil {
			return err
		}
		if p.Status != nil && *p.Status == types.StatusDone {
			return l.target.Archive(ctx, thread)
		}
		return nil

	case types.EventSessionAppendMessages:
		var p types.SessionAppendMessages
		if err := e.DecodePayload(&p); err != nil {
			return err
		}
		if len(p.Messages) == 0 {
			return nil
		}
		thread, err := l.thread(ctx, types.SessionID(e.Partition), "")
		if err != nil {
			return err
		}
		for _, m := range p.Messages {
			if _, err := l.target.Post(ctx, thread, formatMessage(m)); err != nil {
				return err
			}
		}
		return nil

	case types.EventChannelCreated, types.EventChannelUpdated:
		// Written by the relay itself.
		return nil
	}
	slog.Debug("relay skipping unknown event kind", "kind", e.Kind, "seq", e.Seq)
	return nil
}

func (l *Loop) postToChannel(ctx context.Context, project types.ProjectID, text string) error {
	addr, err := l.channel(ctx, project)
	if err != nil {
		return err
	}
	_, err = l.target.Post(ctx, addr, text)
	return err
}

// channel returns the project's channel address, creating the channel on
// the target and recording it on first use.
func (l *Loop) channel(ctx context.Context, project types.ProjectID) (string, error) {
	ch, err := l.channels.Get(ctx, project)
	if err == nil {
		return ch.ExternalID, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return "", err
	}
	name := l.cfg.ChannelPrefix + string(project)
	addr, err := l.target.CreateChannel(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create channel for %s: %w", project, err)
	}
	if _, err := l.channels.Create(ctx, project, addr, name); err != nil {
		return "", err
	}
	slog.Info("relay channel created", "project", project, "address", addr)
	return addr, nil
}

// thread returns the session's thread address, starting the thread with a
// header post on first use.
func (l *Loop) thread(ctx context.Context, id types.SessionID, title string) (string, error) {
	key := threadKeyBase + string(id)
	b, err := l.kv.Get(ctx, key)
	if err == nil {
		return string(b), nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return "", err
	}

	project, _, err := id.Split()
	if err != nil {
		return "", err
	}
	if title == "" {
		if sess, err := l.sessions.Get(ctx, id); err == nil {
			title = sess.Title
		}
	}
	channel, err := l.channel(ctx, project)
	if err != nil {
		return "", err
	}
	thread, err := l.target.Post(ctx, channel, formatSessionHeader(id, title))
	if err != nil {
		return "", err
	}
	if err := l.kv.Set(ctx, key, []byte(thread)); err != nil {
		return "", err
	}
	return thread, nil
}

// report logs a failed group and posts it to the side channel.
func (l *Loop) report(ctx context.Context, partition string, group []*types.Event, err error) {
	id := types.NewReportID()
	l.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("partition", partition)))
	slog.Error("relay handler failed",
		"report_id", id,
		"partition", partition,
		"first_seq", group[0].Seq,
		"last_seq", group[len(group)-1].Seq,
		"error", err,
	)
	if l.cfg.LogChannel == "" {
		return
	}
	text := fmt.Sprintf("⚠️ relay error `%s` in %s (seq %d-%d): %v",
		id, partition, group[0].Seq, group[len(group)-1].Seq, err)
	if _, perr := l.target.Post(ctx, l.cfg.LogChannel, text); perr != nil {
		slog.Warn("relay side channel post failed", "report_id", id, "error", perr)
	}
}

// ThreadOf returns the recorded thread address of a session.
func ThreadOf(ctx context.Context, kv types.KVStore, id types.SessionID) (string, error) {
	b, err := kv.Get(ctx, threadKeyBase+string(id))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
