// internal/types/models.go
package types

import (
	"fmt"
	"time"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// ParseStatus validates a user-supplied status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusReady, StatusInProgress, StatusReview, StatusDone:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q (want ready, in-progress, review or done)", s)
}

// EntityKind is the view key prefix of an entity kind.
type EntityKind string

const (
	KindSession EntityKind = "session"
	KindProject EntityKind = "project"
	KindChannel EntityKind = "channel"
)

// Event is an immutable fact in a partition of the event log. Seq is
// assigned by the store and orders events both within a partition and
// globally.
type Event struct {
	Seq       int64     `json:"seq"`
	Partition string    `json:"partition"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// View is the cached, materialized state of one entity.
type View struct {
	Key       string    `json:"key"`
	State     []byte    `json:"-"`
	LastSeq   int64     `json:"last_seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	Role    string    `msgpack:"role" json:"role"`
	Content string    `msgpack:"content" json:"content"`
	At      time.Time `msgpack:"timestamp" json:"timestamp"`
}

type Session struct {
	ID          SessionID `msgpack:"id" json:"id"`
	Project     ProjectID `msgpack:"project" json:"project"`
	Title       string    `msgpack:"title" json:"title,omitempty"`
	Status      Status    `msgpack:"status" json:"status"`
	Preset      string    `msgpack:"preset" json:"preset,omitempty"`
	ResumeToken string    `msgpack:"resume_token" json:"resume_token,omitempty"`
	Messages    []Message `msgpack:"messages" json:"messages"`
	CreatedAt   time.Time `msgpack:"created_at" json:"created_at"`
	UpdatedAt   time.Time `msgpack:"updated_at" json:"updated_at"`
}

type Project struct {
	ID          ProjectID `msgpack:"id" json:"id"`
	Name        string    `msgpack:"name" json:"name"`
	Repository  string    `msgpack:"repository" json:"repository"`
	Description string    `msgpack:"description" json:"description,omitempty"`
	CreatedAt   time.Time `msgpack:"created_at" json:"created_at"`
	UpdatedAt   time.Time `msgpack:"updated_at" json:"updated_at"`
}

// Channel records the external relay channel of a project.
type Channel struct {
	ID         ChannelID `msgpack:"id" json:"id"`
	Project    ProjectID `msgpack:"project" json:"project"`
	ExternalID string    `msgpack:"external_id" json:"external_id"`
	Name       string    `msgpack:"name" json:"name"`
	Archived   bool      `msgpack:"archived" json:"archived"`
	CreatedAt  time.Time `msgpack:"created_at" json:"created_at"`
	UpdatedAt  time.Time `msgpack:"updated_at" json:"updated_at"`
}
