package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Roles of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	defaultMaxTurns    = 20
	defaultMaxSessions = 10000
	defaultSessionTTL  = 24 * time.Hour
)

// Turn is one message of a conversation.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// NewSessionID returns a fresh opaque session id.
func NewSessionID() string {
	return uuid.NewString()
}

// ParseSessionID checks that id is a UUID and returns it in canonical form,
// so every spelling of one id maps to the same session.
func ParseSessionID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrInvalidSession
	}
	return parsed.String(), nil
}

// ValidSessionID reports whether id looks like an id from NewSessionID.
func ValidSessionID(id string) bool {
	_, err := ParseSessionID(id)
	return err == nil
}

// Store keeps the turns of every session.
type Store interface {
	History(ctx context.Context, session string) ([]Turn, error)
	Append(ctx context.Context, session string, turns ...Turn) error
	Reset(ctx context.Context, session string) error
}

// MemoryStore is an in-process Store. Only the last maxTurns turns of a
// session are kept. Sessions idle for longer than the TTL are dropped, and
// once maxSessions are live the least recently used one makes room.
type MemoryStore struct {
	mu          sync.Mutex
	maxTurns    int
	maxSessions int
	ttl         time.Duration
	now         func() time.Time
	sessions    map[string]*memorySession
}

type memorySession struct {
	turns []Turn
	seen  time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIdleTTL drops sessions not used for ttl.
func WithIdleTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// NewMemoryStore creates a MemoryStore. maxTurns <= 0 uses the default.
func NewMemoryStore(maxTurns int, opts ...MemoryOption) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	m := &MemoryStore{
		maxTurns:    maxTurns,
		maxSessions: defaultMaxSessions,
		ttl:         defaultSessionTTL,
		now:         time.Now,
		sessions:    make(map[string]*memorySession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(m.now())
	return len(m.sessions)
}

func (m *MemoryStore) History(_ context.Context, session string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.lookup(session, m.now())
	if sess == nil {
		return []Turn{}, nil
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, session string, turns ...Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sess := m.lookup(session, now)
	if sess == nil {
		m.makeRoom(now)
		sess = &memorySession{}
		m.sessions[session] = sess
	}

	all := append(sess.turns, turns...)
	if len(all) > m.maxTurns {
		all = append([]Turn(nil), all[len(all)-m.maxTurns:]...)
	}
	sess.turns = all
	sess.seen = now
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, session)
	return nil
}

// lookup returns a live session, dropping it when it has expired.
func (m *MemoryStore) lookup(session string, now time.Time) *memorySession {
	sess, ok := m.sessions[session]
	if !ok {
		return nil
	}
	if now.Sub(sess.seen) > m.ttl {
		delete(m.sessions, session)
		return nil
	}
	return sess
}

func (m *MemoryStore) expire(now time.Time) {
	for id, sess := range m.sessions {
		if now.Sub(sess.seen) > m.ttl {
			delete(m.sessions, id)
		}
	}
}

// makeRoom must be called with mu held before a new session is added.
func (m *MemoryStore) makeRoom(now time.Time) {
	if len(m.sessions) < m.maxSessions {
		return
	}

	m.expire(now)
	for len(m.sessions) >= m.maxSessions {
		var (
			oldest   string
			oldestAt time.Time
		)
		for id, sess := range m.sessions {
			if oldest == "" || sess.seen.Before(oldestAt) {
				oldest, oldestAt = id, sess.seen
			}
		}
		delete(m.sessions, oldest)
	}
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	MaxTurns int           `mapstructure:"max-turns"`
}

// RedisStore keeps every session as a Redis list of JSON encoded turns. The
// list expires TTL after the last append.
type RedisStore struct {
	client   redis.Cmdable
	prefix   string
	ttl      time.Duration
	maxTurns int
}

// NewRedisStore creates a RedisStore over client.
func NewRedisStore(client redis.Cmdable, cfg RedisConfig) *RedisStore {
	s := &RedisStore{
		client:   client,
		prefix:   cfg.Prefix,
		ttl:      cfg.TTL,
		maxTurns: cfg.MaxTurns,
	}
	if s.prefix == "" {
		s.prefix = "career-match:chat:"
	}
	if s.ttl <= 0 {
		s.ttl = defaultSessionTTL
	}
	if s.maxTurns <= 0 {
		s.maxTurns = defaultMaxTurns
	}
	return s
}

// DialRedis connects to the configured server and checks it answers.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(session string) string {
	return s.prefix + session
}

func (s *RedisStore) History(ctx context.Context, session string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", session, err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decoding turn of session %s: %w", session, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, session string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
		values = append(values, string(data))
	}

	key := s.key(session)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending to session %s: %w", session, err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, s.key(session)).Err(); err != nil {
		return fmt.Errorf("resetting session %s: %w", session, err)
	}
	return nil
}
