package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockNotAcquired means another request holds the slot right now.
var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker serializes work on one booking slot across api-server replicas.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// SlotLocker keeps one short-lived Redis key per slot. It only sheds
// contention early: when Redis is unreachable fn still runs and the store's
// conditional insert decides the race.
type SlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewSlotLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *SlotLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SlotLocker{client: client, ttl: ttl, log: logger}
}

var _ Locker = (*SlotLocker)(nil)

type heldLock struct {
	key   string
	token string
}

func slotLockKey(slotKey string) string {
	return "lock:slot:" + slotKey
}

func (l *SlotLocker) acquire(ctx context.Context, slotKey string) (*heldLock, error) {
	held := &heldLock{key: slotLockKey(slotKey), token: uuid.NewString()}

	ok, err := l.client.SetNX(ctx, held.key, held.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return held, nil
}

func (l *SlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	held, err := l.acquire(ctx, slotKey)
	switch {
	case errors.Is(err, ErrLockNotAcquired):
		return err
	case err != nil:
		if ctx.Err() != nil {
			return err
		}
		l.log.Warn().Err(err).Str("slot", slotKey).Msg("slot lock unavailable, relying on store")
		return fn(ctx)
	}

	defer func() {
		if err := l.release(context.WithoutCancel(ctx), held.key, held.token); err != nil {
			l.log.Warn().Err(err).Str("slot", slotKey).Msg("slot lock not released, will expire")
		}
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// unlockScript deletes the key only while it still carries our token, so an
// expired lock re-taken by another request is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *SlotLocker) release(ctx context.Context, key, token string) error {
	err := unlockScript.Run(ctx, l.client, []string{key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
