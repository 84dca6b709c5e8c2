package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/repository"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []model.OutboxMessage
	published map[uuid.UUID]time.Time
	failed    map[uuid.UUID]string
	claimErr  error
}

func (o *fakeOutbox) ClaimBatch(_ context.Context, limit, maxAttempts int) ([]model.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.claimErr != nil {
		return nil, o.claimErr
	}
	var out []model.OutboxMessage
	for _, m := range o.pending {
		if _, done := o.published[m.ID]; done || m.Attempts >= maxAttempts {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published[id] = at
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastErr string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[id] = lastErr
	for i := range o.pending {
		if o.pending[i].ID == id {
			o.pending[i].Attempts++
		}
	}
	return nil
}

type fakeUoW struct{ outbox *fakeOutbox }

func (u fakeUoW) Do(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	return fn(ctx, repository.Repos{Outbox: u.outbox})
}

type fakeProducer struct {
	mu     sync.Mutex
	sent   []string
	failOn map[string]bool
	closed bool
}

func (p *fakeProducer) SendMessage(_ context.Context, topic string, key, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[string(key)] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, topic+"/"+string(key))
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func msg(key string, attempts int) model.OutboxMessage {
	return model.OutboxMessage{
		ID:       uuid.Must(uuid.NewV4()),
		Topic:    "recebi.history",
		Key:      []byte(key),
		Payload:  []byte(`{}`),
		Attempts: attempts,
	}
}

func newFakes(msgs ...model.OutboxMessage) (*fakeOutbox, *fakeProducer) {
	return &fakeOutbox{
		pending:   msgs,
		published: map[uuid.UUID]time.Time{},
		failed:    map[uuid.UUID]string{},
	}, &fakeProducer{failOn: map[string]bool{}}
}

func TestPublisher_ProcessBatch(t *testing.T) {
	a, b, dead := msg("a", 0), msg("b", 0), msg("dead", 5)
	ob, prod := newFakes(a, b, dead)
	prod.failOn["b"] = true
	p := NewPublisher(fakeUoW{ob}, prod, Config{BatchSize: 10, MaxAttempts: 5}, zaptest.NewLogger(t))

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"recebi.history/a"}, prod.sent)
	require.Contains(t, ob.published, a.ID)
	require.Equal(t, "broker unavailable", ob.failed[b.ID])
	require.NotContains(t, ob.failed, dead.ID, "exhausted messages are not retried")

	delete(prod.failOn, "b")
	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, ob.published, b.ID)
}

func TestPublisher_ProcessBatch_ClaimError(t *testing.T) {
	ob, prod := newFakes()
	ob.claimErr = errors.New("db down")
	p := NewPublisher(fakeUoW{ob}, prod, Config{}, zaptest.NewLogger(t))

	_, err := p.ProcessBatch(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestPublisher_RunAndShutdown(t *testing.T) {
	ob, prod := newFakes(msg("a", 0))
	p := NewPublisher(fakeUoW{ob}, prod, Config{PollInterval: 5 * time.Millisecond}, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		ob.mu.Lock()
		defer ob.mu.Unlock()
		return len(ob.published) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	<-done
	require.True(t, prod.closed)
	require.NoError(t, p.Shutdown(ctx), "second shutdown is a no-op")
}
