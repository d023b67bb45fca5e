// Package repo keeps conversation state between turns on behalf of the host.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/convoengine/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/convoengine/internal/core/error"
	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// Lock scripts act only while KEYS[1] still holds the caller's token (ARGV[1]).
const (
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`
	refreshScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) end return 0`
	saveScript    = `if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1`
)

type RedisStateRepository struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	lockTTL time.Duration
}

func NewRedisStateRepository(rdb redis.Cmdable, ttl, lockTTL time.Duration) *RedisStateRepository {
	return &RedisStateRepository{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

func (r *RedisStateRepository) stateKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:state", conversationID)
}

func (r *RedisStateRepository) lockKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:lock", conversationID)
}

func (r *RedisStateRepository) Load(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	key := r.stateKey(conversationID)

	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.NewConversationState(conversationID), nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation state from redis")
		return nil, errx.WrapRedis(err)
	}

	var st model.ConversationState
	if err := json.Unmarshal(b, &st); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to unmarshal conversation state")
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	if st.RetrievedContext == nil {
		st.RetrievedContext = map[string]string{}
	}
	return &st, nil
}

// Save replaces the stored state and extends its TTL.
func (r *RedisStateRepository) Save(ctx context.Context, state *model.ConversationState) error {
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", state.ConversationID).Msg("failed to marshal conversation state")
		return fmt.Errorf("marshal conversation state: %w", err)
	}
	key := r.stateKey(state.ConversationID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save conversation state to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisStateRepository) Clear(ctx context.Context, conversationID string) error {
	key := r.stateKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete conversation state from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// Lock takes the conversation's turn lock with SET NX. The lock expires after
// lockTTL so a crashed host cannot hold a conversation forever; while held it
// is refreshed every lockTTL/3.
func (r *RedisStateRepository) Lock(ctx context.Context, conversationID string) (model.TurnLock, error) {
	key := r.lockKey(conversationID)
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, key, token, r.lockTTL).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to acquire conversation lock")
		return nil, errx.WrapRedis(err)
	}
	if !ok {
		return nil, model.ErrTurnInFlight
	}

	l := &redisTurnLock{
		r:              r,
		conversationID: conversationID,
		key:            key,
		token:          token,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if r.lockTTL > 0 {
		go l.keepAlive(context.WithoutCancel(ctx), r.lockTTL/3)
	} else {
		close(l.done)
	}
	return l, nil
}

// redisTurnLock is one held lock, identified by its token.
type redisTurnLock struct {
	r              *RedisStateRepository
	conversationID string
	key            string
	token          string

	stop chan struct{}
	done chan struct{}
	once sync.Once
	lost atomic.Bool
}

// keepAlive extends the lock until Release, or until the lock turns out to be
// held by someone else.
func (l *redisTurnLock) keepAlive(ctx context.Context, every time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, every)
			n, err := l.r.rdb.Eval(callCtx, refreshScript, []string{l.key}, l.token, l.r.lockTTL.Milliseconds()).Int64()
			cancel()
			if err != nil {
				logx.Warn().Err(err).Str("key", l.key).Msg("failed to refresh conversation lock")
				continue
			}
			if n == 0 {
				l.lost.Store(true)
				logx.Warn().Str("key", l.key).Msg("conversation lock lost while the turn was running")
				return
			}
		}
	}
}

// Save stores state and extends its TTL in one script that first checks the
// lock still holds this token.
func (l *redisTurnLock) Save(ctx context.Context, state *model.ConversationState) error {
	if state.ConversationID != l.conversationID || l.lost.Load() {
		return model.ErrLockLost
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", state.ConversationID).Msg("failed to marshal conversation state")
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	stateKey := l.r.stateKey(state.ConversationID)
	n, err := l.r.rdb.Eval(ctx, saveScript, []string{l.key, stateKey}, l.token, string(b), l.r.ttl.Milliseconds()).Int64()
	if err != nil {
		logx.Error().Err(err).Str("key", stateKey).Msg("failed to save conversation state to redis")
		return errx.WrapRedis(err)
	}
	if n == 0 {
		l.lost.Store(true)
		logx.Warn().Str("key", l.key).Msg("refusing to save: conversation lock is no longer held")
		return model.ErrLockLost
	}
	return nil
}

func (l *redisTurnLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		if l.r.lockTTL > 0 {
			close(l.stop)
		}
	})
	<-l.done

	if err := l.r.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		logx.Warn().Err(err).Str("key", l.key).Msg("failed to release conversation lock")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.StateRepository = (*RedisStateRepository)(nil)
