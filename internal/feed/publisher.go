package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/recebi/internal/metrics"
	"github.com/and161185/recebi/internal/repository"
)

// Config tunes the outbox poller.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher drains the history outbox into a Producer.
type Publisher struct {
	uow      repository.UnitOfWork
	producer Producer
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPublisher constructs a Publisher. Zero config values fall back to sane defaults.
func NewPublisher(uow repository.UnitOfWork, producer Producer, cfg Config, log *zap.Logger) *Publisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Publisher{
		uow:      uow,
		producer: producer,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Run polls until ctx is done or Shutdown is called.
func (p *Publisher) Run(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()
	p.log.Info("history feed started", zap.Duration("poll", p.cfg.PollInterval))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := p.ProcessBatch(ctx)
			if err != nil {
				p.log.Error("history feed batch", zap.Error(err))
			} else if n > 0 {
				p.log.Debug("history feed batch", zap.Int("published", n))
			}
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown stops Run, waits for the in-flight batch and closes the producer.
func (p *Publisher) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stop)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			p.log.Warn("history feed shutdown timed out")
		}
		err = p.producer.Close()
	})
	return err
}

// ProcessBatch claims pending messages and sends them while holding their row locks.
// A failed send is recorded on the row and does not abort the batch.
func (p *Publisher) ProcessBatch(ctx context.Context) (int, error) {
	published := 0
	err := p.uow.Do(ctx, func(ctx context.Context, r repository.Repos) error {
		published = 0
		msgs, err := r.Outbox.ClaimBatch(ctx, p.cfg.BatchSize, p.cfg.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox: %w", err)
		}
		for _, m := range msgs {
			if sendErr := p.producer.SendMessage(ctx, m.Topic, m.Key, m.Payload); sendErr != nil {
				metrics.FeedFailuresTotal.Inc()
				p.log.Warn("history feed send",
					zap.String("id", m.ID.String()),
					zap.Int("attempt", m.Attempts+1),
					zap.Error(sendErr),
				)
				if err := r.Outbox.MarkFailed(ctx, m.ID, sendErr.Error()); err != nil {
					return err
				}
				continue
			}
			if err := r.Outbox.MarkPublished(ctx, m.ID, p.now().UTC()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.FeedPublishedTotal.Add(float64(published))
	return published, nil
}
