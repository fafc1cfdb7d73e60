package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLocked is returned when another process holds the run lock.
var ErrLocked = errors.New("run lock held by another process")

// RunLock is a row in the run lock table. One row exists per held lock.
type RunLock struct {
	Name       string    `gorm:"primaryKey;size:191"`
	Owner      string    `gorm:"size:64;not null"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName overrides the default table name.
func (RunLock) TableName() string {
	return "sync_run_locks"
}

// Locker coordinates runs across processes through the run lock table.
// A lock that outlives its TTL is considered abandoned and can be taken over.
type Locker struct {
	db    *gorm.DB
	owner string
	ttl   time.Duration
	renew time.Duration
	now   func() time.Time
}

// NewLocker creates a locker acting on behalf of owner.
func NewLocker(db *gorm.DB, owner string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Locker{db: db, owner: owner, ttl: ttl, renew: ttl / 3, now: time.Now}
}

// Migrate creates the run lock table if needed.
func (l *Locker) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&RunLock{}); err != nil {
		return fmt.Errorf("failed to migrate run lock table: %w", err)
	}
	return nil
}

// Acquire takes the named lock. It returns ErrLocked when another owner
// holds a lock that has not expired.
func (l *Locker) Acquire(ctx context.Context, name string) error {
	now := l.now().UTC()
	db := l.db.WithContext(ctx)

	// Drop an expired lock, or our own leftover from a crashed run.
	if err := db.Where("name = ? AND (expires_at < ? OR owner = ?)", name, now, l.owner).
		Delete(&RunLock{}).Error; err != nil {
		return fmt.Errorf("failed to clear stale run lock: %w", err)
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&RunLock{
		Name:       name,
		Owner:      l.owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(l.ttl),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to acquire run lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLocked
	}
	return nil
}

// Release frees the named lock if this owner holds it.
func (l *Locker) Release(ctx context.Context, name string) error {
	if err := l.db.WithContext(ctx).Where("name = ? AND owner = ?", name, l.owner).
		Delete(&RunLock{}).Error; err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Renew extends a lock held by this owner by another TTL. It returns
// ErrLocked when the lock is no longer ours.
func (l *Locker) Renew(ctx context.Context, name string) error {
	res := l.db.WithContext(ctx).Model(&RunLock{}).
		Where("name = ? AND owner = ?", name, l.owner).
		Update("expires_at", l.now().UTC().Add(l.ttl))
	if res.Error != nil {
		return fmt.Errorf("failed to renew run lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLocked
	}
	return nil
}

// WithLock runs fn while holding the named lock. The lock is renewed while fn
// runs, so a run may outlast the TTL. If the lock is lost anyway, fn's context
// is cancelled with ErrLocked as its cause.
func (l *Locker) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := l.Acquire(ctx, name); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(runCtx, name, cancel)
	}()
	defer func() {
		cancel(nil)
		<-done
		_ = l.Release(context.WithoutCancel(ctx), name)
	}()
	return fn(runCtx)
}

// keepAlive renews the lock until ctx is done. Failed renewals are retried on
// the next tick; only a lost lock stops the run.
func (l *Locker) keepAlive(ctx context.Context, name string, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Renew(ctx, name); errors.Is(err, ErrLocked) {
				cancel(err)
				return
			}
		}
	}
}
