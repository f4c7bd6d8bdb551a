package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/user/foreman/internal/types"
)

// CursorKey is the key/value entry holding the relay position.
const CursorKey = "relay:cursor"

// Cursor is the persisted position of the relay in the global event stream.
type Cursor struct {
	kv  types.KVStore
	key string
}

func NewCursor(kv types.KVStore) *Cursor {
	return &Cursor{kv: kv, key: CursorKey}
}

// Get returns the last fully relayed sequence id. ok is false when the
// relay has never completed a batch.
func (c *Cursor) Get(ctx context.Context) (seq int64, ok bool, err error) {
	b, err := c.kv.Get(ctx, c.key)
	if errors.Is(err, types.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	seq, err = strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor %q: %w", b, err)
	}
	return seq, true, nil
}

func (c *Cursor) Set(ctx context.Context, seq int64) error {
	if err := c.kv.Set(ctx, c.key, []byte(strconv.FormatInt(seq, 10))); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}
