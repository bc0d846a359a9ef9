package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrLockHeld is returned when another run holds the lock.
var ErrLockHeld = errors.New("lock held")

// RunLock allows one matching run at a time. It takes an in-process mutex
// and, when a Store is configured, a "run in progress" marker shared by all
// processes. The marker expires after ttl so a crashed holder cannot block
// runs forever; while the holder is alive its TTL is refreshed every ttl/3.
type RunLock struct {
	mu    sync.Mutex
	store Store
	key   string
	ttl   time.Duration
}

// NewRunLock creates a lock. A nil store gives an in-process lock only.
func NewRunLock(store Store, key string, ttl time.Duration) *RunLock {
	return &RunLock{store: store, key: key, ttl: ttl}
}

// TryAcquire takes the lock without waiting. The returned release func must
// be called once the run is over.
func (l *RunLock) TryAcquire(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrLockHeld
	}
	if l.store == nil {
		return l.mu.Unlock, nil
	}

	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("acquire run marker: %w", err)
	}
	if !ok {
		l.mu.Unlock()
		return nil, ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	return func() {
		close(stop)
		<-done

		// the run's context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			log.Warn().Err(err).Str("key", l.key).Msg("failed to release run marker")
		}
		l.mu.Unlock()
	}, nil
}

// keepAlive extends the marker until stop is closed.
func (l *RunLock) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := l.store.CompareAndExpire(ctx, l.key, token, l.ttl)
			cancel()
			switch {
			case err != nil:
				log.Warn().Err(err).Str("key", l.key).Msg("failed to extend run marker")
			case !ok:
				log.Error().Str("key", l.key).Msg("run marker lost while run in progress")
				return
			}
		case <-stop:
			return
		}
	}
}
