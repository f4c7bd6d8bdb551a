package view

import (
	"time"

	"github.com/user/foreman/internal/types"
)

func init() {
	register(sessionFold, types.EventSessionCreated, types.EventSessionUpdated, types.EventSessionAppendMessages)
	register(projectFold, types.EventProjectCreated, types.EventProjectUpdated)
	register(channelFold, types.EventChannelCreated, types.EventChannelUpdated)
}

var sessionFold = &entityFold[types.Session]{
	kind: types.KindSession,
	reducers: map[string]reducer[types.Session]{
		types.EventSessionCreated: func(s *types.Session, e *types.Event) error {
			var p types.SessionCreated
			if err := e.DecodePayload(&p); err != nil {
				return err
			}
			install(&s.ID, p.ID)
			install(&s.Project, p.Project)
			install(&s.Title, p.Title)
			install(&s.Status, p.Status)
			install(&s.Preset, p.Preset)
			return nil
		},
		types.EventSessionUpdated: func(s *types.Session, e *types.Event) error {
			var p types.SessionUpdated
			if err := e.DecodePayload(&p); err != nil {
				return err
			}
			install(&s.Title, p.Title)
			install(&s.Status, p.Status)
			install(&s.Preset, p.Preset)
			install(&s.ResumeToken, p.ResumeToken)
			return nil
		},
		types.EventSessionAppendMessages: func(s *types.Session, e *types.Event) error {
			var p types.SessionAppendMessages
			if err := e.DecodePayload(&p); err != nil {
				return err
			}
			s.Messages = append(s.Messages, p.Messages...)
			return nil
		},
	},
	stamp: func(s *types.Session, created, updated time.Time) {
		s.CreatedAt, s.UpdatedAt = created, updated
	},
}

var projectFold = &entityFold[types.Project]{
	kind: types.KindProject,
	reducers: map[string]reducer[types.Project]{
		types.EventProjectCreated: func(p *types.Project, e *types.Event) error {
			var c types.ProjectCreated
			if err := e.DecodePayload(&c); err != nil {
				return err
			}
			install(&p.ID, c.ID)
			install(&p.Name, c.Name)
			install(&p.Repository, c.Repository)
			install(&p.Description, c.Description)
			return nil
		},
		types.EventProjectUpdated: func(p *types.Project, e *types.Event) error {
			var u types.ProjectUpdated
			if err := e.DecodePayload(&u); err != nil {
				return err
			}
			install(&p.Name, u.Name)
			install(&p.Repository, u.Repository)
			install(&p.Description, u.Description)
			return nil
		},
	},
	stamp: func(p *types.Project, created, updated time.Time) {
		p.CreatedAt, p.UpdatedAt = created, updated
	},
}

var channelFold = &entityFold[types.Channel]{
	kind: types.KindChannel,
	reducers: map[string]reducer[types.Channel]{
		types.EventChannelCreated: func(c *types.Channel, e *types.Event) error {
			var p types.ChannelCreated
			if err := e.DecodePayload(&p); err != nil {
				return err
			}
			install(&c.ID, p.ID)
			install(&c.Project, p.Project)
			install(&c.ExternalID, p.ExternalID)
			install(&c.Name, p.Name)
			return nil
		},
		types.EventChannelUpdated: func(c *types.Channel, e *types.Event) error {
			var p types.ChannelUpdated
			if err := e.DecodePayload(&p); err != nil {
				return err
			}
			install(&c.ExternalID, p.ExternalID)
			install(&c.Name, p.Name)
			install(&c.Archived, p.Archived)
			return nil
		},
	},
	stamp: func(c *types.Channel, created, updated time.Time) {
		c.CreatedAt, c.UpdatedAt = created, updated
	},
}
