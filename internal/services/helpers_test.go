package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mobilechat/internal/auth"
	"mobilechat/internal/config"
	"mobilechat/internal/keylock"
	"mobilechat/internal/retry"
	"mobilechat/internal/storage"
	"mobilechat/internal/subscription"
)

type sentMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

// recordingProducer keeps every message it is asked to send.
type recordingProducer struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (p *recordingProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{Topic: topic, Key: string(key), Payload: payload})
	return nil
}

func (p *recordingProducer) Close() {}

func (p *recordingProducer) onTopic(topic string) []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sentMessage
	for _, m := range p.sent {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

var testKafka = config.KafkaConfig{
	Enabled:            true,
	NotificationsTopic: "notifications",
	PurgeTopic:         "purge",
}

type testEnv struct {
	ctx      context.Context
	store    *storage.MemoryStore
	locks    *keylock.Locker
	hub      *subscription.Hub
	producer *recordingProducer
	blobs    *storage.LocalStorageService

	graph    FriendGraphService
	dir      UserDirectory
	rooms    RoomRegistry
	messages MessageLog
}

func newTestEnv(t *testing.T, opts ...MessageLogOption) *testEnv {
	t.Helper()
	log := zap.NewNop()
	env := &testEnv{
		ctx:      context.Background(),
		store:    storage.NewMemoryStore(),
		locks:    keylock.New(),
		hub:      subscription.NewHub(100, log),
		producer: &recordingProducer{},
	}
	t.Cleanup(env.hub.Close)

	storageCfg := config.StorageConfig{LocalPath: t.TempDir(), BaseURL: "http://files.test", MaxFileSizeMB: 1}
	blobs, err := storage.NewLocalStorageService(storageCfg)
	if err != nil {
		t.Fatalf("NewLocalStorageService() error = %v", err)
	}
	env.blobs = blobs

	policy := retry.None()
	env.graph = NewFriendGraphService(env.store, env.locks, env.hub, env.producer, testKafka, policy, log)
	env.dir = NewUserDirectory(env.store, env.locks, env.graph, env.producer, testKafka, policy, log)
	env.rooms = NewRoomRegistry(env.store, env.locks, env.hub, auth.NewPasswordHasher(bcrypt.MinCost), policy, log)
	env.messages = NewMessageLog(env.store, env.locks, env.hub, env.dir, blobs, storageCfg, env.producer, testKafka, policy, log, opts...)
	return env
}

func (e *testEnv) mustUser(t *testing.T, id, email, name string) {
	t.Helper()
	if _, err := e.dir.CreateUser(e.ctx, id, email, name, ""); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", id, err)
	}
}

func (e *testEnv) mustFriends(t *testing.T, a, b string) {
	t.Helper()
	if err := e.graph.SendRequest(e.ctx, a, b); err != nil {
		t.Fatalf("SendRequest(%s, %s) error = %v", a, b, err)
	}
	if err := e.graph.AcceptRequest(e.ctx, b, a); err != nil {
		t.Fatalf("AcceptRequest(%s, %s) error = %v", b, a, err)
	}
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// snapshots collects deliveries of one subscription.
type snapshots struct {
	ch chan subscription.Snapshot
}

func newSnapshots() *snapshots {
	return &snapshots{ch: make(chan subscription.Snapshot, 64)}
}

func (s *snapshots) handle(snap subscription.Snapshot) { s.ch <- snap }

func (s *snapshots) next(t *testing.T) subscription.Snapshot {
	t.Helper()
	select {
	case snap := <-s.ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return subscription.Snapshot{}
	}
}
