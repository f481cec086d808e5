package hmn

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/model"
)

const persistMaxRetries = 3

// Persist serialises state under an optimistic lock on the code graph's
// version counter, mirroring
// original_source/orchestrator/code_graph.py's persist_to_redis: read the
// current version, write state + v<N+1> + a "latest" pointer, retry up to
// three times on conflict. kv.Store's transaction primitive watches a
// single key, so the version counter is that watched key; the state write,
// the versioned copy, and the latest pointer ride inside the same retry
// loop rather than one Redis MULTI/EXEC covering all four keys.
func (n *Network) Persist(ctx context.Context, state model.CodeGraphState) error {
	return kv.WithRetry(ctx, n.kv, kv.CodeGraphVersionKey, persistMaxRetries, func(current []byte, found bool) ([]byte, time.Duration, error) {
		version := 1
		if found {
			if v, err := strconv.Atoi(string(current)); err == nil {
				version = v + 1
			}
		}
		state.Version = version

		payload, err := json.Marshal(state)
		if err != nil {
			return nil, 0, fmt.Errorf("hmn: marshal code graph state: %w", err)
		}

		if err := n.kv.Set(ctx, kv.CodeGraphStateKey, payload, 0); err != nil {
			return nil, 0, fmt.Errorf("hmn: write code graph state: %w", err)
		}

		versionedKey := kv.CodeGraphVersionKeyN(version)
		if err := n.kv.Set(ctx, versionedKey, payload, kv.TTLGraphVersion); err != nil {
			return nil, 0, fmt.Errorf("hmn: write versioned code graph copy: %w", err)
		}
		if err := n.kv.Set(ctx, kv.CodeGraphLatestKey, []byte(versionedKey), kv.TTLGraphVersion); err != nil {
			return nil, 0, fmt.Errorf("hmn: write latest code graph pointer: %w", err)
		}

		return []byte(strconv.Itoa(version)), 0, nil
	})
}

// Load reads the most recently persisted code graph state via the "latest"
// pointer and caches it on the Network, mirroring code_graph.py's
// load_from_redis.
func (n *Network) Load(ctx context.Context) (model.CodeGraphState, error) {
	pointer, err := n.kv.Get(ctx, kv.CodeGraphLatestKey)
	if err != nil {
		return model.CodeGraphState{}, fmt.Errorf("hmn: read latest pointer: %w", err)
	}

	payload, err := n.kv.Get(ctx, string(pointer))
	if err != nil {
		return model.CodeGraphState{}, fmt.Errorf("hmn: read code graph at %s: %w", pointer, err)
	}

	var state model.CodeGraphState
	if err := json.Unmarshal(payload, &state); err != nil {
		return model.CodeGraphState{}, fmt.Errorf("hmn: unmarshal code graph state: %w", err)
	}
	n.state = state
	return state, nil
}
