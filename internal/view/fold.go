package view

import (
	"fmt"
	"time"

	"github.com/user/foreman/internal/types"
)

// Folded is the result of replaying one partition.
type Folded struct {
	Kind    types.EntityKind
	State   any
	LastSeq int64
}

// folder replays a partition into the state of one entity kind.
type folder interface {
	entity() types.EntityKind
	fold(events []*types.Event) (any, error)
}

// reducer applies one event to a state of type S.
type reducer[S any] func(s *S, e *types.Event) error

type entityFold[S any] struct {
	kind     types.EntityKind
	reducers map[string]reducer[S]
	stamp    func(s *S, created, updated time.Time)
}

func (f *entityFold[S]) entity() types.EntityKind { return f.kind }

func (f *entityFold[S]) fold(events []*types.Event) (any, error) {
	s := new(S)
	created := events[0].CreatedAt
	for _, e := range events {
		r, ok := f.reducers[e.Kind]
		if !ok {
			return nil, fmt.Errorf("%s partition %q: unexpected %s event at seq %d",
				f.kind, e.Partition, e.Kind, e.Seq)
		}
		if err := r(s, e); err != nil {
			return nil, fmt.Errorf("apply %s seq %d: %w", e.Kind, e.Seq, err)
		}
		f.stamp(s, created, e.CreatedAt)
	}
	return s, nil
}

// registry maps every event kind to the fold of the entity kind it opens.
// Only the first event of a partition is looked up here.
var registry = map[string]folder{}

func register(f folder, kinds ...string) {
	for _, k := range kinds {
		registry[k] = f
	}
}

// Fold replays events, which must belong to a single partition in
// ascending sequence order. It returns nil for an empty partition. Fold
// consults nothing but its input, so equal inputs produce equal states.
func Fold(events []*types.Event) (*Folded, error) {
	if len(events) == 0 {
		return nil, nil
	}
	f, ok := registry[events[0].Kind]
	if !ok {
		return nil, fmt.Errorf("partition %q: no entity kind opens with %s", events[0].Partition, events[0].Kind)
	}
	state, err := f.fold(events)
	if err != nil {
		return nil, err
	}
	return &Folded{
		Kind:    f.entity(),
		State:   state,
		LastSeq: events[len(events)-1].Seq,
	}, nil
}

// install copies *src over *dst when src is set.
func install[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
