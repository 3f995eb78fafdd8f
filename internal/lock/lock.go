package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

// Locker hands out named leases backed by redis SET NX. A nil *Locker grants
// every lease, which is the single-replica behaviour.
type Locker struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

// Lease is a held lock. Release only deletes the key while this lease still owns it.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(releaseScript),
		prefix: "carebill:lock:",
	}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Acquire reports false without error when another holder owns key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}
	if !l.Enabled() {
		return &Lease{key: key}, true, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{locker: l, key: key, token: token}, true, nil
}

func (le *Lease) Key() string {
	if le == nil {
		return ""
	}
	return le.key
}

func (le *Lease) Release(ctx context.Context) error {
	if le == nil || !le.locker.Enabled() || le.token == "" {
		return nil
	}
	return le.locker.script.Run(ctx, le.locker.client, []string{le.locker.prefix + le.key}, le.token).Err()
}
