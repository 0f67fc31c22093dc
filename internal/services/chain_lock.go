package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const chainLockName = "role_chain"

// ChainLocker serializes mutations of one project's role chain across processes.
type ChainLocker interface {
	// Lock blocks until the project's lock is held or ctx is done.
	// The returned release func must be called exactly once.
	Lock(ctx context.Context, projectID uint) (release func(), err error)
	// TTL is how long a lock stays valid after Lock returns.
	TTL() time.Duration
}

func lockTimeoutError(projectID uint, cause error) error {
	return fmt.Errorf("%w: %v", &RoleChainError{
		Kind:    KindConflict,
		Subject: "chain_locked",
		ID:      projectID,
		Message: "role chain is being modified by another request",
	}, cause)
}

func leaseExpiredError(projectID uint, held, ttl time.Duration) error {
	return &RoleChainError{
		Kind:    KindConflict,
		Subject: "chain_lock_expired",
		ID:      projectID,
		Message: fmt.Sprintf("role chain change took %s, longer than the %s lock lease", held.Round(time.Millisecond), ttl),
	}
}

// NewChainLocker picks the Redis lock when Redis is reachable and falls back
// to the database lease otherwise.
func NewChainLocker(cfg *config.Config, db *gorm.DB) ChainLocker {
	ttl := time.Duration(cfg.Chain.LockTTLSeconds) * time.Second
	wait := time.Duration(cfg.Chain.LockWaitSeconds) * time.Second
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("[ChainLock] Redis unavailable, using database locks: %v", err)
			_ = client.Close()
		} else {
			logger.Infof("[ChainLock] Using Redis locks at %s", cfg.Redis.Addr)
			return NewRedisChainLocker(client, ttl, wait)
		}
	}
	return NewDBChainLocker(db, ttl, wait)
}

// DBChainLocker leases a scheduler_locks row per project.
type DBChainLocker struct {
	db   *gorm.DB
	ttl  time.Duration
	wait time.Duration
	poll time.Duration
}

func NewDBChainLocker(db *gorm.DB, ttl, wait time.Duration) *DBChainLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &DBChainLocker{db: db, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

func (l *DBChainLocker) Lock(ctx context.Context, projectID uint) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	key := strconv.FormatUint(uint64(projectID), 10)
	owner := uuid.NewString()
	start := time.Now()
	for {
		ok, err := l.tryAcquire(ctx, key, owner)
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire chain lock for project %d: %w", projectID, err)
		}
		if ok {
			chainLockWait.Observe(time.Since(start).Seconds())
			return func() { l.release(key, owner) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, lockTimeoutError(projectID, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

func (l *DBChainLocker) TTL() time.Duration { return l.ttl }

func (l *DBChainLocker) tryAcquire(ctx context.Context, key, owner string) (bool, error) {
	return tryAcquireLease(ctx, l.db, chainLockName, key, owner, l.ttl)
}

func (l *DBChainLocker) release(key, owner string) {
	releaseLease(l.db, chainLockName, key, owner)
}

// tryAcquireLease claims the scheduler_locks row (name, key) for owner,
// clearing it first if its lease has lapsed.
func tryAcquireLease(ctx context.Context, db *gorm.DB, name, key, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	var held []models.SchedulerLock
	if err := db.WithContext(ctx).Where("lock_name = ? AND lock_key = ?", name, key).Limit(1).Find(&held).Error; err != nil {
		return false, err
	}
	if len(held) > 0 {
		if !held[0].Expired(now) {
			return false, nil
		}
		// by id, so a lease another owner took since the read survives
		err := db.WithContext(ctx).
			Where("id = ?", held[0].ID).
			Delete(&models.SchedulerLock{}).Error
		if err != nil {
			return false, err
		}
	}

	lock := models.SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  owner,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	result := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func releaseLease(db *gorm.DB, name, key, owner string) {
	err := db.
		Where("lock_name = ? AND lock_key = ? AND locked_by = ?", name, key, owner).
		Delete(&models.SchedulerLock{}).Error
	if err != nil {
		logger.Warnf("[ChainLock] Failed to release %s/%s: %v", name, key, err)
	}
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisChainLocker uses SET NX PX with a per-acquisition token.
type RedisChainLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

func NewRedisChainLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisChainLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &RedisChainLocker{client: client, ttl: ttl, wait: wait, poll: 25 * time.Millisecond}
}

func (l *RedisChainLocker) TTL() time.Duration { return l.ttl }

func redisLockKey(projectID uint) string {
	return fmt.Sprintf("emergex:%s:%d", chainLockName, projectID)
}

func (l *RedisChainLocker) Lock(ctx context.Context, projectID uint) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	key := redisLockKey(projectID)
	token := uuid.NewString()
	start := time.Now()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("acquire chain lock for project %d: %w", projectID, err)
		}
		if ok {
			chainLockWait.Observe(time.Since(start).Seconds())
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, lockTimeoutError(projectID, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

func (l *RedisChainLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		logger.Warnf("[ChainLock] Failed to release lock %s: %v", key, err)
	}
}
