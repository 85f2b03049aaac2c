package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	json "github.com/petrijr/wireflow/internal/xjson"
	"github.com/petrijr/wireflow/pkg/api"
)

// DefaultRedisPrefix is used when no key prefix is configured.
const DefaultRedisPrefix = "wireflow:"

// RedisStore keeps one list per run:
//
//	<prefix>run:<run id>  => LIST of JSON-encoded events
//	<prefix>runs          => SET of run ids
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

type redisEvent struct {
	RunID    string        `json:"run_id"`
	At       int64         `json:"at"`
	Type     api.EventType `json:"type"`
	FlowID   api.ElementID `json:"flow_id"`
	NodeID   api.ElementID `json:"node_id"`
	NodeType string        `json:"node_type,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}

// NewRedisStore creates a RedisStore. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyRun(runID string) string {
	return s.prefix + "run:" + runID
}

func (s *RedisStore) keyRuns() string {
	return s.prefix + "runs"
}

func (s *RedisStore) Append(ctx context.Context, ev api.RuntimeEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	data, err := json.Marshal(redisEvent{
		RunID:    ev.RunID,
		At:       at.UnixNano(),
		Type:     ev.Type,
		FlowID:   ev.FlowID,
		NodeID:   ev.NodeID,
		NodeType: ev.NodeType,
		Detail:   ev.Detail,
	})
	if err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.keyRun(ev.RunID), data)
		p.SAdd(ctx, s.keyRuns(), ev.RunID)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context, runID string) ([]api.RuntimeEvent, error) {
	items, err := s.client.LRange(ctx, s.keyRun(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]api.RuntimeEvent, 0, len(items))
	for _, item := range items {
		var re redisEvent
		if err := json.Unmarshal([]byte(item), &re); err != nil {
			return nil, fmt.Errorf("decode journal event: %w", err)
		}
		out = append(out, api.RuntimeEvent{
			RunID:    re.RunID,
			At:       time.Unix(0, re.At),
			Type:     re.Type,
			FlowID:   re.FlowID,
			NodeID:   re.NodeID,
			NodeType: re.NodeType,
			Detail:   re.Detail,
		})
	}
	return out, nil
}

// Runs returns the ids of every run recorded under the prefix.
func (s *RedisStore) Runs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.keyRuns()).Result()
}
