package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gridmind/swarmplan/internal/planning"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisOpTimeout = 3 * time.Second

// RedisStore persists negotiation groups as JSON records under
// "dap:<YYYYMMDD>:" key prefixes.
type RedisStore struct {
	client *redis.Client
	log    *logrus.Entry

	mu      sync.Mutex
	prefix  string
	names   map[string]string
	pending []StatsRow
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(addr, password string, db int, log *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", addr, err)
	}
	return &RedisStore{
		client: client,
		log:    log.WithField("component", "monitoring"),
	}, nil
}

// Setup opens the key prefix for a negotiation start date.
func (s *RedisStore) Setup(start time.Time, names map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefix = "dap:" + GroupKey(start)
	s.names = names
	s.pending = nil
	return nil
}

// StoreTopology writes the topology edge list.
func (s *RedisStore) StoreTopology(edges [][2]string) error {
	s.mu.Lock()
	prefix := s.prefix
	s.mu.Unlock()
	return s.setJSON(prefix+":topology", edges)
}

// Append buffers one statistics row; rows are written on Flush.
func (s *RedisStore) Append(row StatsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, row)
	return nil
}

// Flush writes target, weights, solution and the buffered rows.
func (s *RedisStore) Flush(target, weights []float64, solution *planning.Candidate) error {
	s.mu.Lock()
	prefix := s.prefix
	names := s.names
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	ts := make([][2]float64, len(target))
	for i := range target {
		ts[i] = [2]float64{target[i], weights[i]}
	}
	if err := s.setJSON(prefix+":ts", ts); err != nil {
		return err
	}
	if err := s.setJSON(prefix+":cs", solution.ClusterSchedule()); err != nil {
		return err
	}
	if err := s.setJSON(prefix+":agents", agentDetails(solution, names)); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	pipe := s.client.Pipeline()
	for _, row := range pending {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal stats row: %w", err)
		}
		pipe.RPush(ctx, prefix+":dap_data", data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write stats rows: %w", err)
	}
	s.log.WithFields(logrus.Fields{"prefix": prefix, "rows": len(pending)}).Debug("Flushed negotiation results")
	return nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) setJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
