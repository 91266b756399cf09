package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/infrastructure/portalapi"
	"github.com/civicportal/resident-portal/internal/pkg/metrics"
)

// FeedSource fetches the data the portal polls for.
type FeedSource interface {
	Notifications(ctx context.Context) ([]portalapi.Notification, error)
	Announcements(ctx context.Context) ([]portalapi.Announcement, error)
}

// SessionSource publishes session snapshots.
type SessionSource interface {
	Subscribe() (<-chan domain.Snapshot, func())
}

// Feeds is the latest polled data.
type Feeds struct {
	Notifications []portalapi.Notification `json:"notifications"`
	Announcements []portalapi.Announcement `json:"announcements"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// FeedWatcher polls notifications and announcements for as long as the
// session is authenticated and drops what it has when the session ends.
type FeedWatcher struct {
	src      FeedSource
	interval time.Duration
	log      zerolog.Logger

	mu    sync.RWMutex
	feeds Feeds
}

func NewFeedWatcher(src FeedSource, interval time.Duration, log zerolog.Logger) *FeedWatcher {
	return &FeedWatcher{src: src, interval: interval, log: log}
}

// Latest returns a copy of the most recent feeds.
func (w *FeedWatcher) Latest() Feeds {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Feeds{
		Notifications: append([]portalapi.Notification(nil), w.feeds.Notifications...),
		Announcements: append([]portalapi.Announcement(nil), w.feeds.Announcements...),
		UpdatedAt:     w.feeds.UpdatedAt,
	}
}

// Run follows the session until ctx is cancelled. Pollers are always
// stopped before Run returns. Snapshots can be coalesced, so a change of user
// between two authenticated snapshots also drops the feeds and restarts
// polling.
func (w *FeedWatcher) Run(ctx context.Context, sessions SessionSource) error {
	updates, unsubscribe := sessions.Subscribe()
	defer unsubscribe()

	var (
		stop   func()
		userID string
	)
	stopPolling := func() {
		if stop == nil {
			return
		}
		stop()
		stop = nil
		userID = ""
		w.reset()
		w.log.Debug().Msg("feed polling stopped")
	}
	defer stopPolling()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if !snap.Authenticated() {
				stopPolling()
				continue
			}
			if stop != nil && snap.User.ID == userID {
				continue
			}
			stopPolling()
			stop = w.startPolling(ctx)
			userID = snap.User.ID
			w.log.Debug().Str("user_id", userID).Dur("interval", w.interval).Msg("feed polling started")
		}
	}
}

func (w *FeedWatcher) startPolling(ctx context.Context) func() {
	notifications := New("notifications", w.interval, func(ctx context.Context) error {
		items, err := w.src.Notifications(ctx)
		if err != nil {
			metrics.PollsTotal.WithLabelValues("notifications", "error").Inc()
			return err
		}
		metrics.PollsTotal.WithLabelValues("notifications", "ok").Inc()
		w.publish(ctx, func(f *Feeds) { f.Notifications = items })
		return nil
	}, w.log)

	announcements := New("announcements", w.interval, func(ctx context.Context) error {
		items, err := w.src.Announcements(ctx)
		if err != nil {
			metrics.PollsTotal.WithLabelValues("announcements", "error").Inc()
			return err
		}
		metrics.PollsTotal.WithLabelValues("announcements", "ok").Inc()
		w.publish(ctx, func(f *Feeds) { f.Announcements = items })
		return nil
	}, w.log)

	stopNotifications := notifications.Start(ctx)
	stopAnnouncements := announcements.Start(ctx)
	return func() {
		stopNotifications()
		stopAnnouncements()
	}
}

func (w *FeedWatcher) publish(ctx context.Context, apply func(*Feeds)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	apply(&w.feeds)
	w.feeds.UpdatedAt = time.Now().UTC()
}

func (w *FeedWatcher) reset() {
	w.mu.Lock()
	w.feeds = Feeds{}
	w.mu.Unlock()
}
