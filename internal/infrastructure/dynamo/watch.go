package dynamo

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/youme-api/internal/domain"
)

type profileGetter interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// ProfileWatcher emulates a live document listener by polling GetItem.
// DynamoDB Streams would need a shard reader per table, which is more
// machinery than a single-document subscription warrants.
type ProfileWatcher struct {
	repo     profileGetter
	interval time.Duration
}

func NewProfileWatcher(repo profileGetter, interval time.Duration) *ProfileWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProfileWatcher{repo: repo, interval: interval}
}

// Watch reports the profile through onChange on the first successful read and
// after every change; a missing document is reported as nil. Read failures go
// to onError. Polling stops when ctx ends or the returned cancel is called.
func (w *ProfileWatcher) Watch(ctx context.Context, userID string, onChange func(*domain.UserProfile), onError func(error)) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var last *domain.UserProfile
		seen := false
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			p, err := w.repo.Get(ctx, userID)
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, domain.ErrProfileNotFound):
				if !seen || last != nil {
					onChange(nil)
				}
				last, seen = nil, true
			case err != nil:
				onError(err)
			case !seen || !reflect.DeepEqual(last, p):
				onChange(p)
				last, seen = p, true
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		stop()
		wg.Wait()
	}
}
