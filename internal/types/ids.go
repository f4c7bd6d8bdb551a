// internal/types/ids.go
package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type SessionID string
type ProjectID string
type ChannelID string
type RunID string

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// NewReportID returns an identifier for a relay side-channel report.
func NewReportID() string {
	return uuid.New().String()[:8]
}

// ValidateProjectID rejects ids that could collide with session or channel
// partitions. Project ids may not contain '-' or '#'.
func ValidateProjectID(id ProjectID) error {
	if !projectIDPattern.MatchString(string(id)) {
		return fmt.Errorf("%w: project id %q must match %s", ErrInvalidID, id, projectIDPattern)
	}
	return nil
}

// NewSessionID builds "<project>-<ordinal>".
func NewSessionID(project ProjectID, ordinal int) SessionID {
	return SessionID(fmt.Sprintf("%s-%d", project, ordinal))
}

// Split returns the project and ordinal encoded in a session id.
func (id SessionID) Split() (ProjectID, int, error) {
	i := strings.LastIndexByte(string(id), '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: session id %q", ErrInvalidID, id)
	}
	n, err := strconv.Atoi(string(id[i+1:]))
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("%w: session id %q", ErrInvalidID, id)
	}
	return ProjectID(id[:i]), n, nil
}

// ChannelFor returns the channel entity id of a project's relay channel.
func ChannelFor(project ProjectID) ChannelID {
	return ChannelID("#" + string(project))
}

// ViewKey builds "<kind-prefix>:<entityId>".
func ViewKey(kind EntityKind, entityID string) string {
	return string(kind) + ":" + entityID
}
