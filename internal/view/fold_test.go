package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/foreman/internal/types"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type eventLog struct {
	t         *testing.T
	partition string
	events    []*types.Event
}

func (l *eventLog) add(kind string, payload any) *eventLog {
	l.t.Helper()
	b, err := types.Encode(payload)
	require.NoError(l.t, err)
	n := len(l.events) + 1
	l.events = append(l.events, &types.Event{
		Seq:       int64(n * 10),
		Partition: l.partition,
		Kind:      kind,
		Payload:   b,
		CreatedAt: t0.Add(time.Duration(n) * time.Minute),
	})
	return l
}

func foldSession(t *testing.T, events []*types.Event) *types.Session {
	t.Helper()
	f, err := Fold(events)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, types.KindSession, f.Kind)
	return f.State.(*types.Session)
}

func TestFoldEmptyPartition(t *testing.T) {
	f, err := Fold(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestFoldCreateKeepsSetFields(t *testing.T) {
	log := &eventLog{t: t, partition: "P-1"}
	log.add(types.EventSessionCreated, types.SessionCreated{
		ID:      types.Ptr(types.SessionID("P-1")),
		Project: types.Ptr(types.ProjectID("P")),
		Status:  types.Ptr(types.StatusReady),
	})
	log.add(types.EventSessionCreated, types.SessionCreated{ID: types.Ptr(types.SessionID("P-1"))})

	s := foldSession(t, log.events)
	assert.Equal(t, types.StatusReady, s.Status)
	assert.Equal(t, types.ProjectID("P"), s.Project)
}

func TestFoldUpdateMergesDefinedFields(t *testing.T) {
	log := &eventLog{t: t, partition: "P-1"}
	log.add(types.EventSessionCreated, types.SessionCreated{
		Project: types.Ptr(types.ProjectID("P")),
		Status:  types.Ptr(types.StatusReady),
		Title:   types.Ptr("fix login"),
	})
	log.add(types.EventSessionUpdated, types.SessionUpdated{Status: types.Ptr(types.StatusInProgress)})

	s := foldSession(t, log.events)
	assert.Equal(t, types.StatusInProgress, s.Status)
	assert.Equal(t, types.ProjectID("P"), s.Project)
	assert.Equal(t, "fix login", s.Title)
}

func TestFoldAppendAccumulates(t *testing.T) {
	log := &eventLog{t: t, partition: "P-1"}
	log.add(types.EventSessionCreated, types.SessionCreated{Status: types.Ptr(types.StatusReady)})
	log.add(types.EventSessionAppendMessages, types.SessionAppendMessages{
		Messages: []types.Message{{Role: "user", Content: "first", At: t0}},
	})
	log.add(types.EventSessionAppendMessages, types.SessionAppendMessages{
		Messages: []types.Message{{Role: "assistant", Content: "second", At: t0}},
	})

	s := foldSession(t, log.events)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "first", s.Messages[0].Content)
	assert.Equal(t, "second", s.Messages[1].Content)
}

func TestFoldTimestamps(t *testing.T) {
	log := &eventLog{t: t, partition: "P-1"}
	log.add(types.EventSessionCreated, types.SessionCreated{Status: types.Ptr(types.StatusReady)})
	log.add(types.EventSessionUpdated, types.SessionUpdated{Status: types.Ptr(types.StatusDone)})

	f, err := Fold(log.events)
	require.NoError(t, err)
	s := f.State.(*types.Session)
	assert.Equal(t, log.events[0].CreatedAt, s.CreatedAt)
	assert.Equal(t, log.events[1].CreatedAt, s.UpdatedAt)
	assert.Equal(t, log.events[1].Seq, f.LastSeq)
}

func TestFoldIsDeterministic(t *testing.T) {
	log := &eventLog{t: t, partition: "P"}
	log.add(types.EventProjectCreated, types.ProjectCreated{
		ID:         types.Ptr(types.ProjectID("P")),
		Name:       types.Ptr("Payments"),
		Repository: types.Ptr("/src/payments"),
	})
	log.add(types.EventProjectUpdated, types.ProjectUpdated{Description: types.Ptr("billing")})

	first, err := Fold(log.events)
	require.NoError(t, err)
	second, err := Fold(log.events)
	require.NoError(t, err)

	a, err := types.Encode(first.State)
	require.NoError(t, err)
	b, err := types.Encode(second.State)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, types.KindProject, first.Kind)
}

func TestFoldChannel(t *testing.T) {
	log := &eventLog{t: t, partition: "#P"}
	log.add(types.EventChannelCreated, types.ChannelCreated{
		ID:         types.Ptr(types.ChannelID("#P")),
		Project:    types.Ptr(types.ProjectID("P")),
		ExternalID: types.Ptr("slack:C123"),
	})
	log.add(types.EventChannelUpdated, types.ChannelUpdated{Archived: types.Ptr(true)})

	f, err := Fold(log.events)
	require.NoError(t, err)
	c := f.State.(*types.Channel)
	assert.Equal(t, types.KindChannel, f.Kind)
	assert.Equal(t, "slack:C123", c.ExternalID)
	assert.True(t, c.Archived)
}

func TestFoldRejectsMixedKinds(t *testing.T) {
	log := &eventLog{t: t, partition: "P"}
	log.add(types.EventProjectCreated, types.ProjectCreated{Name: types.Ptr("x")})
	log.add(types.EventSessionUpdated, types.SessionUpdated{Status: types.Ptr(types.StatusDone)})

	_, err := Fold(log.events)
	assert.Error(t, err)
}

func TestFoldRejectsUnknownOpeningKind(t *testing.T) {
	log := &eventLog{t: t, partition: "boot"}
	log.add(types.EventInit, struct{}{})

	_, err := Fold(log.events)
	assert.Error(t, err)
}
