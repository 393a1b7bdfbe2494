package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-match/internal/domain"
)

type mockRedisKVClient struct {
	data       map[string][]byte
	lastSetKey string
	lastSetTTL time.Duration
	lastDel    []string

	setErr error
	getErr error
}

func newMockRedisKV() *mockRedisKVClient {
	return &mockRedisKVClient{data: make(map[string][]byte)}
}

func (m *mockRedisKVClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.lastSetKey = key
	m.lastSetTTL = expiration
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	if b, ok := value.([]byte); ok {
		m.data[key] = b
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisKVClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	b, ok := m.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(b))
	return cmd
}

func (m *mockRedisKVClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.lastDel = keys
	for _, k := range keys {
		delete(m.data, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func sampleSession() domain.IntakeSession {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := domain.NewIntakeSession("sess-1", "subject-1", 3, now)
	s.Responses[0] = &domain.Response{
		QuestionOrdinal: 1,
		Transcript:      "mornings",
		Attributes:      domain.Attributes{Tone: "calm", Confidence: 0.7, Sentiment: "positive", Keywords: []string{"morning"}},
		CapturedAt:      now,
	}
	s.CurrentIndex = 1
	return s
}

func TestMemoryIntakeSessionStore_Basics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIntakeSessionStore(time.Minute)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	session := sampleSession()
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// mutar la copia original no debe afectar lo guardado
	session.Responses[0].Transcript = "changed"

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Responses[0].Transcript != "mornings" || got.CurrentIndex != 1 {
		t.Fatalf("unexpected stored session %+v", got)
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be missing, got %v", err)
	}
}

func TestMemoryIntakeSessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIntakeSessionStore(time.Minute).(*memoryIntakeSessionStore)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestMemoryIntakeSessionStore_EmptyID(t *testing.T) {
	store := NewMemoryIntakeSessionStore(0)
	if err := store.Save(context.Background(), domain.IntakeSession{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRedisIntakeSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockRedisKV()
	store := &redisIntakeSessionStore{client: mock, ttl: time.Hour, prefix: "intake:session:"}

	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if mock.lastSetKey != "intake:session:sess-1" || mock.lastSetTTL != time.Hour {
		t.Fatalf("unexpected set key/ttl %q %v", mock.lastSetKey, mock.lastSetTTL)
	}
	var raw map[string]any
	if err := json.Unmarshal(mock.data["intake:session:sess-1"], &raw); err != nil {
		t.Fatalf("expected JSON payload, got %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SubjectID != "subject-1" || len(got.Responses) != 3 || got.Responses[0] == nil || got.Responses[1] != nil {
		t.Fatalf("unexpected session after round trip %+v", got)
	}
	if got.Responses[0].Attributes.Keywords[0] != "morning" {
		t.Fatalf("expected keywords preserved, got %v", got.Responses[0].Attributes.Keywords)
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(mock.lastDel) != 1 || mock.lastDel[0] != "intake:session:sess-1" {
		t.Fatalf("unexpected del keys %+v", mock.lastDel)
	}
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestRedisIntakeSessionStore_Errors(t *testing.T) {
	ctx := context.Background()
	mock := newMockRedisKV()
	mock.setErr = errors.New("set failed")
	mock.getErr = errors.New("get failed")
	store := &redisIntakeSessionStore{client: mock, ttl: time.Hour, prefix: "intake:session:"}

	if err := store.Save(ctx, sampleSession()); err == nil {
		t.Fatalf("expected save error")
	}
	_, err := store.Get(ctx, "sess-1")
	if err == nil || errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected redis error, got %v", err)
	}
	if _, err := store.Get(ctx, " "); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected empty id to be not found, got %v", err)
	}
}

func TestNewRedisIntakeSessionStoreNilClient(t *testing.T) {
	if NewRedisIntakeSessionStore(nil, time.Hour) != nil {
		t.Fatalf("expected nil store without client")
	}
}
