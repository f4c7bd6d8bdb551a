package types

// Event kinds. The first event of a partition fixes its entity kind.
const (
	EventSessionCreated        = "session_created"
	EventSessionUpdated        = "session_updated"
	EventSessionAppendMessages = "session_append_messages"
	EventProjectCreated        = "project_created"
	EventProjectUpdated        = "project_updated"
	EventChannelCreated        = "channel_created"
	EventChannelUpdated        = "channel_updated"

	// EventInit is never relayed.
	EventInit = "init"
)

// Payloads use pointer fields: a nil field was not set by the writer and
// never overwrites existing state when folded.

type SessionCreated struct {
	ID      *SessionID `msgpack:"id,omitempty"`
	Project *ProjectID `msgpack:"project,omitempty"`
	Title   *string    `msgpack:"title,omitempty"`
	Status  *Status    `msgpack:"status,omitempty"`
	Preset  *string    `msgpack:"preset,omitempty"`
}

type SessionUpdated struct {
	Title       *string `msgpack:"title,omitempty"`
	Status      *Status `msgpack:"status,omitempty"`
	Preset      *string `msgpack:"preset,omitempty"`
	ResumeToken *string `msgpack:"resume_token,omitempty"`
}

type SessionAppendMessages struct {
	Messages []Message `msgpack:"messages"`
}

type ProjectCreated struct {
	ID          *ProjectID `msgpack:"id,omitempty"`
	Name        *string    `msgpack:"name,omitempty"`
	Repository  *string    `msgpack:"repository,omitempty"`
	Description *string    `msgpack:"description,omitempty"`
}

type ProjectUpdated struct {
	Name        *string `msgpack:"name,omitempty"`
	Repository  *string `msgpack:"repository,omitempty"`
	Description *string `msgpack:"description,omitempty"`
}

type ChannelCreated struct {
	ID         *ChannelID `msgpack:"id,omitempty"`
	Project    *ProjectID `msgpack:"project,omitempty"`
	ExternalID *string    `msgpack:"external_id,omitempty"`
	Name       *string    `msgpack:"name,omitempty"`
}

type ChannelUpdated struct {
	ExternalID *string `msgpack:"external_id,omitempty"`
	Name       *string `msgpack:"name,omitempty"`
	Archived   *bool   `msgpack:"archived,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
