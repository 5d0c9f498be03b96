package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Redis key layout: one hash per session plus one list for chat. Result maps
// become prefixed hash fields so writers merge by field, same as the memory
// store.
const (
	sessionKeyPrefix = "pressbox:session:"
	chatKeyPrefix    = "pressbox:chat:"

	fieldMeta     = "meta"
	fieldFragment = "frag:"
	fieldPartial  = "partial:"
	fieldCategory = "category:"
	fieldFinal    = "final"
)

// RedisStore is a Store backed by a Redis hash per session. It exists so a
// deployment can survive restarts without changing the orchestrator.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// redisMeta is the scalar slice of a session, stored as one hash field.
type redisMeta struct {
	ID        string    `json:"id"`
	FixtureID string    `json:"fixture_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRedisStore connects to Redis at url (redis://host:port/db) and verifies
// the connection. A non-positive ttl falls back to DefaultTTL.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Create(ctx context.Context, sess *Session) error {
	key := sessionKeyPrefix + sess.ID
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("session: redis exists: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("session: id %s already exists", sess.ID)
	}
	if err := r.writeMeta(ctx, sess.ID, metaOf(sess)); err != nil {
		return err
	}
	return r.touch(ctx, sess.ID, sess.CreatedAt)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	var meta redisMeta
	if err := sonic.Unmarshal([]byte(fields[fieldMeta]), &meta); err != nil {
		return nil, fmt.Errorf("session: decode meta for %s: %w", id, err)
	}
	sess := New(meta.ID, meta.FixtureID, meta.CreatedAt)
	sess.Status = meta.Status
	sess.Error = meta.Error
	sess.UpdatedAt = meta.UpdatedAt

	for field, value := range fields {
		switch {
		case strings.HasPrefix(field, fieldFragment):
			sess.CollectedData[strings.TrimPrefix(field, fieldFragment)] = json.RawMessage(value)
		case strings.HasPrefix(field, fieldPartial):
			sess.PartialResults[strings.TrimPrefix(field, fieldPartial)] = json.RawMessage(value)
		case strings.HasPrefix(field, fieldCategory):
			sess.CategoryResults[strings.TrimPrefix(field, fieldCategory)] = json.RawMessage(value)
		case field == fieldFinal:
			sess.FinalArtifact = json.RawMessage(value)
		}
	}

	turns, err := r.client.LRange(ctx, chatKeyPrefix+id, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis lrange: %w", err)
	}
	for _, raw := range turns {
		var turn ChatTurn
		if err := sonic.Unmarshal([]byte(raw), &turn); err != nil {
			return nil, fmt.Errorf("session: decode chat turn for %s: %w", id, err)
		}
		sess.ChatHistory = append(sess.ChatHistory, turn)
	}
	return sess, nil
}

func (r *RedisStore) SetStatus(ctx context.Context, id, status string) error {
	meta, err := r.readMeta(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(meta.Status, status); err != nil {
		return err
	}
	meta.Status = status
	if err := r.writeMeta(ctx, id, meta); err != nil {
		return err
	}
	return r.touch(ctx, id, meta.CreatedAt)
}

func (r *RedisStore) Fail(ctx context.Context, id, message string) error {
	meta, err := r.readMeta(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(meta.Status, StatusError); err != nil {
		return err
	}
	meta.Status = StatusError
	meta.Error = message
	if err := r.writeMeta(ctx, id, meta); err != nil {
		return err
	}
	return r.touch(ctx, id, meta.CreatedAt)
}

func (r *RedisStore) SetFragment(ctx context.Context, id, name string, data json.RawMessage) error {
	return r.setField(ctx, id, fieldFragment+name, data)
}

func (r *RedisStore) PutPartial(ctx context.Context, id, signal string, result json.RawMessage) error {
	return r.setField(ctx, id, fieldPartial+signal, result)
}

func (r *RedisStore) PutCategory(ctx context.Context, id, category string, result json.RawMessage) error {
	return r.setField(ctx, id, fieldCategory+category, result)
}

func (r *RedisStore) SetFinal(ctx context.Context, id string, artifact json.RawMessage) error {
	return r.setField(ctx, id, fieldFinal, artifact)
}

func (r *RedisStore) AppendChat(ctx context.Context, id string, turn ChatTurn) error {
	meta, err := r.readMeta(ctx, id)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(turn)
	if err != nil {
		return fmt.Errorf("session: encode chat turn: %w", err)
	}
	if err := r.client.RPush(ctx, chatKeyPrefix+id, data).Err(); err != nil {
		return fmt.Errorf("session: redis rpush: %w", err)
	}
	return r.touch(ctx, id, meta.CreatedAt)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+id, chatKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// setField writes one hash field after checking the session is live and not
// terminal, then refreshes the TTL.
func (r *RedisStore) setField(ctx context.Context, id, field string, data json.RawMessage) error {
	meta, err := r.readMeta(ctx, id)
	if err != nil {
		return err
	}
	if Terminal(meta.Status) {
		return fmt.Errorf("session: %s is terminal", id)
	}
	if err := r.client.HSet(ctx, sessionKeyPrefix+id, field, string(data)).Err(); err != nil {
		return fmt.Errorf("session: redis hset: %w", err)
	}
	meta.UpdatedAt = time.Now()
	if err := r.writeMeta(ctx, id, meta); err != nil {
		return err
	}
	return r.touch(ctx, id, meta.CreatedAt)
}

func (r *RedisStore) readMeta(ctx context.Context, id string) (redisMeta, error) {
	raw, err := r.client.HGet(ctx, sessionKeyPrefix+id, fieldMeta).Result()
	if err == redis.Nil {
		return redisMeta{}, ErrNotFound
	}
	if err != nil {
		return redisMeta{}, fmt.Errorf("session: redis hget: %w", err)
	}
	var meta redisMeta
	if err := sonic.Unmarshal([]byte(raw), &meta); err != nil {
		return redisMeta{}, fmt.Errorf("session: decode meta for %s: %w", id, err)
	}
	return meta, nil
}

func (r *RedisStore) writeMeta(ctx context.Context, id string, meta redisMeta) error {
	data, err := sonic.Marshal(meta)
	if err != nil {
		return fmt.Errorf("session: encode meta: %w", err)
	}
	if err := r.client.HSet(ctx, sessionKeyPrefix+id, fieldMeta, data).Err(); err != nil {
		return fmt.Errorf("session: redis hset meta: %w", err)
	}
	return nil
}

// touch pins both of a session's keys to the same absolute deadline, TTL
// after creation, so later writes never extend the session's lifetime.
func (r *RedisStore) touch(ctx context.Context, id string, createdAt time.Time) error {
	deadline := createdAt.Add(r.ttl)
	if err := r.client.ExpireAt(ctx, sessionKeyPrefix+id, deadline).Err(); err != nil {
		return fmt.Errorf("session: redis expire: %w", err)
	}
	// The chat list may not exist yet; expiring a missing key is a no-op.
	if err := r.client.ExpireAt(ctx, chatKeyPrefix+id, deadline).Err(); err != nil {
		return fmt.Errorf("session: redis expire chat: %w", err)
	}
	return nil
}

func metaOf(sess *Session) redisMeta {
	return redisMeta{
		ID:        sess.ID,
		FixtureID: sess.FixtureID,
		Status:    sess.Status,
		Error:     sess.Error,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}
