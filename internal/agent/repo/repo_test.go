package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
)

// fakeRedis implements the handful of commands the repository uses.
type fakeRedis struct {
	redis.Cmdable

	mu        sync.Mutex
	data      map[string]string
	ttls      map[string]time.Duration
	err       error
	refreshes int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Eval runs the lock scripts. Each acts only while KEYS[1] holds ARGV[1].
func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	if f.data[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case releaseScript:
		delete(f.data, keys[0])
	case refreshScript:
		f.ttls[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
		f.refreshes++
	case saveScript:
		f.data[keys[1]] = args[1].(string)
		f.ttls[keys[1]] = time.Duration(args[2].(int64)) * time.Millisecond
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func (f *fakeRedis) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeRedis) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func sampleState() *model.ConversationState {
	st := model.NewConversationState("conv-repo")
	st.Append(
		model.NewUserMessage("What is 2 + 2?"),
		model.NewAssistantMessage("", []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "add", Arguments: `{"a":2,"b":2}`}}}),
		model.NewToolMessage(`{"result":4}`, "call_1", "add"),
		model.NewAssistantMessage("4", nil),
	)
	st.Remove(st.Live[0])
	st.Summary = "The user asked for a sum."
	st.SetContext("wikipedia", "<document>Addition</document>")
	st.Turns = 3
	return st
}

func repositories() map[string]model.StateRepository {
	return map[string]model.StateRepository{
		"memory": NewMemoryStateRepository(),
		"redis":  NewRedisStateRepository(newFakeRedis(), time.Hour, time.Minute),
	}
}

func TestLoadMissingReturnsFreshState(t *testing.T) {
	for name, r := range repositories() {
		t.Run(name, func(t *testing.T) {
			st, err := r.Load(context.Background(), "new")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if st.ConversationID != "new" || st.Len() != 0 || st.RetrievedContext == nil {
				t.Errorf("Load() = %+v, want an empty state for new", st)
			}
		})
	}
}

func TestSaveLoadClear(t *testing.T) {
	for name, r := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleState()
			if err := r.Save(ctx, want); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := r.Load(ctx, want.ConversationID)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(got.Log) != 4 || got.Len() != 3 {
				t.Errorf("log/live = %d/%d, want 4/3", len(got.Log), got.Len())
			}
			if got.Summary != want.Summary || got.Turns != 3 || got.RetrievedContext["wikipedia"] == "" {
				t.Errorf("Load() = %+v, want %+v", got, want)
			}
			msgs := got.Messages()
			if !msgs[0].IsToolRequest() || msgs[0].ToolCalls[0].ID != "call_1" {
				t.Errorf("tool request lost: %+v", msgs[0].Message)
			}
			if msgs[1].ToolCallID != "call_1" || msgs[1].ID != want.Messages()[1].ID {
				t.Errorf("tool result = %+v, want ids preserved", msgs[1])
			}

			if err := r.Clear(ctx, want.ConversationID); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			got, _ = r.Load(ctx, want.ConversationID)
			if got.Len() != 0 {
				t.Errorf("Load() after Clear = %d messages, want 0", got.Len())
			}
		})
	}
}

func TestLockSerializesTurns(t *testing.T) {
	for name, r := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			lock, err := r.Lock(ctx, "c1")
			if err != nil {
				t.Fatalf("Lock() error = %v", err)
			}
			if _, err := r.Lock(ctx, "c1"); !errors.Is(err, model.ErrTurnInFlight) {
				t.Errorf("second Lock() error = %v, want ErrTurnInFlight", err)
			}
			other, err := r.Lock(ctx, "c2")
			if err != nil {
				t.Errorf("Lock() on another conversation error = %v", err)
			} else {
				_ = other.Release(ctx)
			}

			if err := lock.Release(ctx); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if err := lock.Release(ctx); err != nil {
				t.Errorf("second Release() error = %v", err)
			}
			again, err := r.Lock(ctx, "c1")
			if err != nil {
				t.Fatalf("Lock() after release error = %v", err)
			}
			_ = again.Release(ctx)
		})
	}
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	rdb := newFakeRedis()
	r := NewRedisStateRepository(rdb, time.Hour, time.Minute)
	ctx := context.Background()

	lock, err := r.Lock(ctx, "c1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if rdb.ttls["conversation:c1:lock"] != time.Minute {
		t.Errorf("lock ttl = %v, want 1m", rdb.ttls["conversation:c1:lock"])
	}
	// the lock expired and another host took it
	rdb.set("conversation:c1:lock", "someone-else")

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if v, _ := rdb.get("conversation:c1:lock"); v != "someone-else" {
		t.Errorf("release removed a lock it does not own")
	}
}

func TestRedisErrorsAreStorageErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	r := NewRedisStateRepository(rdb, time.Hour, time.Minute)

	_, err := r.Load(context.Background(), "c1")
	if errx.KindOf(err) != errx.KindStorage {
		t.Errorf("Load() error = %v, want storage error", err)
	}
}

func TestRedisSaveSetsTTL(t *testing.T) {
	rdb := newFakeRedis()
	r := NewRedisStateRepository(rdb, 24*time.Hour, time.Minute)
	if err := r.Save(context.Background(), sampleState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := rdb.ttls["conversation:conv-repo:state"]; got != 24*time.Hour {
		t.Errorf("state ttl = %v, want 24h", got)
	}
}

func TestMemoryLoadIsIsolated(t *testing.T) {
	r := NewMemoryStateRepository()
	ctx := context.Background()
	_ = r.Save(ctx, sampleState())

	st, _ := r.Load(ctx, "conv-repo")
	st.Append(model.NewUserMessage("extra"))
	st.Summary = "changed"

	again, _ := r.Load(ctx, "conv-repo")
	if again.Len() != 3 || again.Summary == "changed" {
		t.Errorf("stored state changed through a loaded copy")
	}
}

func TestLockedSaveRefusedAfterTakeover(t *testing.T) {
	for name, r := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stale, err := r.Lock(ctx, "conv-repo")
			if err != nil {
				t.Fatalf("Lock() error = %v", err)
			}
			if err := stale.Save(ctx, sampleState()); err != nil {
				t.Fatalf("Save() while held error = %v", err)
			}

			// the first holder loses the lock and a second turn commits
			if err := stale.Release(ctx); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			current, err := r.Lock(ctx, "conv-repo")
			if err != nil {
				t.Fatalf("Lock() after release error = %v", err)
			}
			defer current.Release(ctx)
			winner := sampleState()
			winner.Summary = "second turn"
			if err := current.Save(ctx, winner); err != nil {
				t.Fatalf("Save() by the new holder error = %v", err)
			}

			loser := sampleState()
			loser.Summary = "stale turn"
			if err := stale.Save(ctx, loser); !errors.Is(err, model.ErrLockLost) {
				t.Errorf("stale Save() error = %v, want ErrLockLost", err)
			}
			got, _ := r.Load(ctx, "conv-repo")
			if got.Summary != "second turn" {
				t.Errorf("stored summary = %q, want the second turn's", got.Summary)
			}
		})
	}
}

func TestRedisLockExpiredMidTurn(t *testing.T) {
	rdb := newFakeRedis()
	r := NewRedisStateRepository(rdb, time.Hour, time.Minute)
	ctx := context.Background()

	lock, err := r.Lock(ctx, "conv-repo")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer lock.Release(ctx)

	// the key expired and another host's SET NX took it
	rdb.set("conversation:conv-repo:lock", "other-host")

	if err := lock.Save(ctx, sampleState()); !errors.Is(err, model.ErrLockLost) {
		t.Errorf("Save() error = %v, want ErrLockLost", err)
	}
	if _, ok := rdb.get("conversation:conv-repo:state"); ok {
		t.Errorf("state written without holding the lock")
	}
}

func TestRedisLockIsRefreshedWhileHeld(t *testing.T) {
	rdb := newFakeRedis()
	r := NewRedisStateRepository(rdb, time.Hour, 30*time.Millisecond)
	ctx := context.Background()

	lock, err := r.Lock(ctx, "c1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for rdb.refreshCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := rdb.refreshCount(); n < 2 {
		t.Fatalf("refreshes = %d, want at least 2", n)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	after := rdb.refreshCount()
	time.Sleep(60 * time.Millisecond)
	if n := rdb.refreshCount(); n != after {
		t.Errorf("refreshes after Release = %d, want %d", n, after)
	}
	if _, ok := rdb.get("conversation:c1:lock"); ok {
		t.Errorf("lock key still present after Release")
	}
}

func TestRedisLockedSaveSetsTTL(t *testing.T) {
	rdb := newFakeRedis()
	r := NewRedisStateRepository(rdb, 24*time.Hour, time.Minute)
	ctx := context.Background()

	lock, err := r.Lock(ctx, "conv-repo")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer lock.Release(ctx)
	if err := lock.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rdb.mu.Lock()
	ttl := rdb.ttls["conversation:conv-repo:state"]
	rdb.mu.Unlock()
	if ttl != 24*time.Hour {
		t.Errorf("state ttl = %v, want 24h", ttl)
	}
	got, err := r.Load(ctx, "conv-repo")
	if err != nil || got.Turns != 3 {
		t.Errorf("Load() = %+v, %v, want the saved state", got, err)
	}
}
