package contextcompressor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arclight-labs/maker/internal/kv"
)

// Save serialises the compressor's state to the KV store under the
// session's namespaced key, with the standard session TTL (spec §4.5
// "persisted alongside the session record").
func Save(ctx context.Context, store kv.Store, c *Compressor) error {
	data, err := json.Marshal(c.ToState())
	if err != nil {
		return fmt.Errorf("contextcompressor: marshal state: %w", err)
	}
	return store.Set(ctx, kv.SessionKey(c.sessionID)+":context", data, kv.TTLSession)
}

// Load restores a compressor verbatim from the KV store. Returns
// kv.ErrNotFound if no context has been saved for sessionID yet.
func Load(ctx context.Context, store kv.Store, sessionID string, cfg Config, summarizer Summarizer) (*Compressor, error) {
	data, err := store.Get(ctx, kv.SessionKey(sessionID)+":context")
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("contextcompressor: unmarshal state: %w", err)
	}
	return FromState(state, cfg, summarizer), nil
}
