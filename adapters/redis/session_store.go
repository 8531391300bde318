// Package redis persists per-analysis session state: the raw input, the
// tool-call audit log, the running context, and the final report.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"phenodx/domain/core"
	"phenodx/domain/report"
	"phenodx/ports"
)

// SessionTTL bounds session retention. Sessions are a debugging and replay
// aid, not a system of record.
const SessionTTL = time.Hour

// SessionStore implements ports.SessionStore on Redis. Callers treat every
// write as best-effort; errors are returned for logging only.
type SessionStore struct {
	rdb *redis.Client
	log *logrus.Logger
	ttl time.Duration
}

// NewSessionStore builds a store from a Redis connection URL
// (redis://user:pw@host:port/db) and verifies connectivity.
func NewSessionStore(url string, log *logrus.Logger) (*SessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.WithField("addr", opts.Addr).Info("session store connected")
	return &SessionStore{rdb: rdb, log: log, ttl: SessionTTL}, nil
}

// Close releases the connection pool.
func (s *SessionStore) Close() error { return s.rdb.Close() }

// SaveInput stores the original request under session:{id}:input.
func (s *SessionStore) SaveInput(ctx context.Context, id core.SessionID, input report.PatientInput) error {
	return s.setJSON(ctx, s.key(id, "input"), input)
}

// SaveToolCall appends one audit record to the session's tool log.
func (s *SessionStore) SaveToolCall(ctx context.Context, id core.SessionID, record report.ToolCallRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode tool call: %w", err)
	}
	key := s.key(id, "tools")
	if err := s.rdb.RPush(ctx, key, encoded).Err(); err != nil {
		return fmt.Errorf("append tool call: %w", err)
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

// SaveContext overwrites the running pipeline context blob.
func (s *SessionStore) SaveContext(ctx context.Context, id core.SessionID, blob any) error {
	return s.setJSON(ctx, s.key(id, "context"), blob)
}

// SaveOutput caches the final report.
func (s *SessionStore) SaveOutput(ctx context.Context, id core.SessionID, output *report.AgentOutput) error {
	return s.setJSON(ctx, s.key(id, "output"), output)
}

// LoadOutput returns the cached final report, or core.ErrSessionNotFound
// when the session is absent or expired.
func (s *SessionStore) LoadOutput(ctx context.Context, id core.SessionID) (*report.AgentOutput, error) {
	raw, err := s.rdb.Get(ctx, s.key(id, "output")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load output: %w", err)
	}
	var out report.AgentOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	return &out, nil
}

// ToolLog returns the session's audit records in append order.
func (s *SessionStore) ToolLog(ctx context.Context, id core.SessionID) ([]report.ToolCallRecord, error) {
	items, err := s.rdb.LRange(ctx, s.key(id, "tools"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load tool log: %w", err)
	}
	records := make([]report.ToolCallRecord, 0, len(items))
	for _, item := range items {
		var rec report.ToolCallRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.log.WithError(err).Warn("skipping undecodable tool-call record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *SessionStore) setJSON(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) key(id core.SessionID, suffix string) string {
	return fmt.Sprintf("session:%s:%s", id, suffix)
}

var _ ports.SessionStore = (*SessionStore)(nil)
