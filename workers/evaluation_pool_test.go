package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-scoring-engine/events"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/services"
	"contest-scoring-engine/testutils"
)

type fakeEvaluator struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
}

func (f *fakeEvaluator) EvaluateGame(_ context.Context, gameID string) (*services.EvaluationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, gameID)
	if err := f.errs[gameID]; err != nil {
		return nil, err
	}
	return &services.EvaluationReport{GameIDs: []string{gameID}, Resolved: 1}, nil
}

func (f *fakeEvaluator) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	fail error
}

func (r *recordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.keys = append(r.keys, key)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func addFinalized(t *testing.T, store *repository.Store, gameID string, at time.Time) events.GameFinalized {
	t.Helper()
	ev := events.GameFinalized{GameID: gameID, HomeScore: 21, AwayScore: 14, ConfirmedAt: at}
	row, err := store.Outbox.Add(context.Background(), models.TopicGameFinalized, gameID, ev, at)
	require.NoError(t, err)
	ev.OutboxID = row.ID
	return ev
}

func TestEvaluationPool_Handle(t *testing.T) {
	ctx := context.Background()
	store := repository.New(testutils.NewDB(t))
	clk := clock.NewMock()
	clk.Set(testutils.Epoch)

	eval := &fakeEvaluator{errs: map[string]error{
		"blocked": fmt.Errorf("%w: stat missing", services.ErrUnresolvedData),
		"broken":  errors.New("db gone"),
	}}
	pub := &recordingPublisher{}
	pool := &EvaluationPool{Store: store, Clock: clk, Evaluator: eval, Publisher: pub, Queue: events.NewQueue(4)}

	tests := map[string]struct {
		gameID        string
		wantErr       bool
		wantProcessed bool
	}{
		"clean evaluation closes the event": {gameID: "ok", wantProcessed: true},
		"unresolved data leaves it open":    {gameID: "blocked"},
		"failure is recorded for replay":    {gameID: "broken", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ev := addFinalized(t, store, tc.gameID, clk.Now())
			err := pool.Handle(ctx, ev)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			row, err := store.Outbox.Get(ctx, ev.OutboxID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantProcessed, row.Processed)
			if tc.wantErr {
				assert.Equal(t, 1, row.Attempts)
				assert.Equal(t, "db gone", row.LastError)
			}
		})
	}
	assert.Equal(t, []string{models.TopicGameFinalized}, pub.keys)
}

func TestEvaluationPool_RunDrainsQueue(t *testing.T) {
	store := repository.New(testutils.NewDB(t))
	clk := clock.NewMock()
	clk.Set(testutils.Epoch)
	eval := &fakeEvaluator{}
	q := events.NewQueue(8)
	pool := &EvaluationPool{Store: store, Clock: clk, Evaluator: eval, Queue: q, Workers: 3}

	for _, id := range []string{"g1", "g2", "g3", "g4"} {
		q.Publish(addFinalized(t, store, id, clk.Now()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool { return len(eval.called()) == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"g1", "g2", "g3", "g4"}, eval.called())
}

func TestOutboxRelay(t *testing.T) {
	ctx := context.Background()
	store := repository.New(testutils.NewDB(t))
	clk := clock.NewMock()
	clk.Set(testutils.Epoch)
	q := events.NewQueue(8)
	pub := &recordingPublisher{}
	relay := &OutboxRelay{Store: store, Clock: clk, Queue: q, Publisher: pub, Grace: time.Minute}

	old := addFinalized(t, store, "g1", clk.Now().Add(-5*time.Minute))
	addFinalized(t, store, "g2", clk.Now())

	n, err := relay.ReplayFinalized(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "events inside the grace period are still in flight")
	ev := <-q.C()
	assert.Equal(t, old.OutboxID, ev.OutboxID)
	assert.Equal(t, "g1", ev.GameID)

	_, err = store.Outbox.Add(ctx, models.TopicContestCompleted, "c1", events.ContestCompleted{ContestID: "c1"}, clk.Now())
	require.NoError(t, err)
	_, err = store.Outbox.Add(ctx, models.TopicPayoutSent, "p1", events.PayoutSent{ContestID: "c1", UserID: "u1"}, clk.Now())
	require.NoError(t, err)

	pub.fail = errors.New("channel closed")
	sent, err := relay.PublishPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	pub.fail = nil
	sent, err = relay.PublishPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{models.TopicContestCompleted, models.TopicPayoutSent}, pub.keys)

	sent, err = relay.PublishPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "published events are not sent twice")
}
