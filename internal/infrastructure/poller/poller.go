package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultInterval = 60 * time.Second

// FetchFunc performs one poll.
type FetchFunc func(ctx context.Context) error

// Poller runs a FetchFunc immediately and then on every tick until stopped.
// Polls never overlap.
type Poller struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	log      zerolog.Logger
}

// New creates a Poller. If interval <= 0, defaultInterval is used.
func New(name string, interval time.Duration, fetch FetchFunc, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{name: name, interval: interval, fetch: fetch, log: log}
}

// Start launches the polling goroutine. The returned stop function cancels
// it and waits until the goroutine has exited, so no fetch runs or publishes
// after stop returns. stop is safe to call more than once. Cancelling ctx
// also ends polling.
func (p *Poller) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		p.run(ctx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.fetch(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Str("poller", p.name).Msg("poll failed")
	}
}
