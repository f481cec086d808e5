package skillstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arclight-labs/maker/internal/kv"
	"github.com/arclight-labs/maker/internal/model"
)

// RegistryEntry is one skill's usage/success bookkeeping (spec §4.6
// "Registry"), persisted as a JSON map under skills:registry.
type RegistryEntry struct {
	UsageCount   int       `json:"usage_count"`
	SuccessCount int       `json:"success_count"`
	SuccessRate  float64   `json:"success_rate"`
	LastUsed     time.Time `json:"last_used"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Registry is the KV-backed per-skill counter table.
type Registry struct {
	mu    sync.Mutex
	store kv.Store
}

// NewRegistry wraps a kv.Store for the skills:registry key.
func NewRegistry(store kv.Store) *Registry {
	return &Registry{store: store}
}

func (r *Registry) load(ctx context.Context) (map[string]RegistryEntry, error) {
	data, err := r.store.Get(ctx, kv.SkillsRegistryKey)
	if err != nil {
		if err == kv.ErrNotFound {
			return map[string]RegistryEntry{}, nil
		}
		return nil, err
	}
	var entries map[string]RegistryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("skillstore: unmarshal registry: %w", err)
	}
	return entries, nil
}

// Get returns a single skill's registry entry, defaulting success_rate to
// 0.5 when unrecorded (spec §4.6's matching formula default).
func (r *Registry) Get(ctx context.Context, name string) (RegistryEntry, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return RegistryEntry{}, err
	}
	entry, ok := entries[name]
	if !ok {
		return RegistryEntry{SuccessRate: 0.5}, nil
	}
	return entry, nil
}

// UpdateStats increments a skill's usage counters and recomputes its
// success rate (spec §4.6 "update_stats(name, success)").
func (r *Registry) UpdateStats(ctx context.Context, name string, success bool) error {
	return kv.WithRetry(ctx, r.store, kv.SkillsRegistryKey, 3, func(current []byte, found bool) ([]byte, time.Duration, error) {
		entries := map[string]RegistryEntry{}
		if found {
			if err := json.Unmarshal(current, &entries); err != nil {
				return nil, 0, fmt.Errorf("skillstore: unmarshal registry: %w", err)
			}
		}

		entry := entries[name]
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		entry.UsageCount++
		if success {
			entry.SuccessCount++
		}
		entry.SuccessRate = float64(entry.SuccessCount) / float64(entry.UsageCount)
		entry.LastUsed = time.Now().UTC()
		entry.Version++
		entries[name] = entry

		data, err := json.Marshal(entries)
		return data, 0, err
	})
}

// Merge sums nameDrop's counters into nameKeep, keeping the earlier
// creation time, and removes nameDrop (spec §4.6 "merge(name_keep,
// name_drop)").
func (r *Registry) Merge(ctx context.Context, nameKeep, nameDrop string) error {
	return kv.WithRetry(ctx, r.store, kv.SkillsRegistryKey, 3, func(current []byte, found bool) ([]byte, time.Duration, error) {
		entries := map[string]RegistryEntry{}
		if found {
			if err := json.Unmarshal(current, &entries); err != nil {
				return nil, 0, fmt.Errorf("skillstore: unmarshal registry: %w", err)
			}
		}

		keep := entries[nameKeep]
		drop, ok := entries[nameDrop]
		if !ok {
			data, err := json.Marshal(entries)
			return data, 0, err
		}

		keep.UsageCount += drop.UsageCount
		keep.SuccessCount += drop.SuccessCount
		if keep.UsageCount > 0 {
			keep.SuccessRate = float64(keep.SuccessCount) / float64(keep.UsageCount)
		}
		if drop.CreatedAt.Before(keep.CreatedAt) || keep.CreatedAt.IsZero() {
			keep.CreatedAt = drop.CreatedAt
		}
		keep.Version++
		entries[nameKeep] = keep
		delete(entries, nameDrop)

		data, err := json.Marshal(entries)
		return data, 0, err
	})
}

// Deprecate lists skills with usage_count >= 3 and success_rate < threshold
// (spec §4.6 "deprecate(threshold)").
func (r *Registry) Deprecate(ctx context.Context, threshold float64) ([]string, error) {
	entries, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for name, entry := range entries {
		if entry.UsageCount >= 3 && entry.SuccessRate < threshold {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Scored pairs a skill name with its relevance score for find_relevant.
type Scored struct {
	Name  string
	Score float64
}

// EmbeddingBackend computes semantic similarity between a task and a
// skill's applies_to keywords, per spec §4.6's optional embedding hook.
type EmbeddingBackend interface {
	Similarity(task string, appliesTo []string) float64
}

// FindRelevant scores every cached skill against task using spec §4.6's
// weighted formula and returns the top_k results sorted descending.
func FindRelevant(ctx context.Context, skillStore *Store, registry *Registry, task string, topK int, embed EmbeddingBackend) ([]Scored, error) {
	skillStore.mu.Lock()
	skills := make([]*model.Skill, 0, len(skillStore.cache))
	for _, s := range skillStore.cache {
		skills = append(skills, s)
	}
	skillStore.mu.Unlock()

	results := make([]Scored, 0, len(skills))
	for _, skill := range skills {
		entry, err := registry.Get(ctx, skill.Name)
		if err != nil {
			return nil, err
		}

		keywordMatch := keywordMatchScore(task, skill.AppliesTo)
		semanticSimilarity := jaccardSimilarity(task, skill.AppliesTo)
		if embed != nil {
			semanticSimilarity = embed.Similarity(task, skill.AppliesTo)
		}
		usageFactor := float64(entry.UsageCount) / 10
		if usageFactor > 1 {
			usageFactor = 1
		}

		score := 0.3*keywordMatch + 0.4*semanticSimilarity + 0.2*entry.SuccessRate + 0.1*usageFactor
		results = append(results, Scored{Name: skill.Name, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func keywordMatchScore(task string, appliesTo []string) float64 {
	if len(appliesTo) == 0 {
		return 0
	}
	lowerTask := strings.ToLower(task)
	matched := 0
	for _, kw := range appliesTo {
		if strings.Contains(lowerTask, strings.ToLower(strings.TrimSpace(kw))) {
			matched++
		}
	}
	return float64(matched) / float64(len(appliesTo))
}

func jaccardSimilarity(task string, appliesTo []string) float64 {
	taskWords := wordSet(task)
	skillWords := make(map[string]struct{}, len(appliesTo))
	for _, kw := range appliesTo {
		for w := range wordSet(kw) {
			skillWords[w] = struct{}{}
		}
	}
	if len(taskWords) == 0 || len(skillWords) == 0 {
		return 0
	}

	intersection := 0
	union := make(map[string]struct{}, len(taskWords)+len(skillWords))
	for w := range taskWords {
		union[w] = struct{}{}
		if _, ok := skillWords[w]; ok {
			intersection++
		}
	}
	for w := range skillWords {
		union[w] = struct{}{}
	}
	return float64(intersection) / float64(len(union))
}

func wordSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
