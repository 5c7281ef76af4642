package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"pkg.world.dev/world-engine/arena/match"
	"pkg.world.dev/world-engine/arena/rules"
	"pkg.world.dev/world-engine/arena/storage"
	"pkg.world.dev/world-engine/arena/storage/redis"
	"pkg.world.dev/world-engine/arena/testutils"
	"pkg.world.dev/world-engine/arena/types"
)

var t0 = time.Unix(1_700_000_000, 0)

type recorder struct {
	mu        sync.Mutex
	snapshots []*types.Match
	retracted []string
}

func (r *recorder) Publish(m *types.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, m)
}

func (r *recorder) Retract(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retracted = append(r.retracted, matchID)
}

func (r *recorder) retractions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.retracted...)
}

func (r *recorder) all() []*types.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Match(nil), r.snapshots...)
}

// flaky fails or panics on the first calls to ApplyTurn.
type flaky struct {
	rules.Engine
	failures int
	panics   bool
	calls    int
}

func (f *flaky) ApplyTurn(board types.Board, field types.Field, turn int, actions []types.Action) (
	types.Field, []types.AppliedAction, error,
) {
	f.calls++
	if f.calls <= f.failures {
		if f.panics {
			panic("engine exploded")
		}
		return types.Field{}, nil, errors.New("engine unavailable")
	}
	return f.Engine.ApplyTurn(board, field, turn, actions)
}

// failingStorage fails the first saves.
type failingStorage struct {
	storage.MatchStorage
	failures int
	calls    int
}

func (f *failingStorage) SaveMatch(ctx context.Context, m *types.Match) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("storage unavailable")
	}
	return f.MatchStorage.SaveMatch(ctx, m)
}

type fixture struct {
	clock      *clock.Mock
	table      *match.Table
	scheduler  *Scheduler
	reconciler *match.Reconciler
	notifier   *recorder
	storage    *redis.Storage
}

func newFixture(t *testing.T, engine rules.Engine, opts ...Option) *fixture {
	rs, _ := testutils.NewRedisStorage(t, "scheduler-test")

	clk := clock.NewMock()
	clk.Set(t0)
	table := match.NewTable()
	notifier := &recorder{}
	if engine == nil {
		engine = rules.NewBasic()
	}
	opts = append([]Option{
		WithClock(clk),
		WithNotifier(notifier),
		WithStorage(rs),
		WithRetryInterval(500 * time.Millisecond),
	}, opts...)
	return &fixture{
		clock:      clk,
		table:      table,
		scheduler:  New(table, engine, opts...),
		reconciler: match.NewReconciler(table, clk),
		notifier:   notifier,
		storage:    rs,
	}
}

func testSpec() MatchSpec {
	return MatchSpec{
		Name:     "friendly",
		Category: "test",
		Board: types.Board{
			Name:              "3x3",
			Width:             3,
			Height:            3,
			Points:            []int{1, 1, 1, 1, 1, 1, 1, 1, 1},
			Seats:             2,
			AgentsPerSeat:     1,
			TotalTurns:        3,
			OperationSeconds:  1,
			TransitionSeconds: 1,
		},
	}
}

// arm creates a match and attaches two players at t0.
func (f *fixture) arm(t *testing.T) (string, string, string) {
	ctx := context.Background()
	m, err := f.scheduler.CreateMatch(ctx, testSpec())
	require.NoError(t, err)
	_, tokenA, err := f.scheduler.Attach(ctx, m.ID, match.SeatRequest{PlayerID: "alice"})
	require.NoError(t, err)
	_, tokenB, err := f.scheduler.Attach(ctx, m.ID, match.SeatRequest{PlayerID: "bob"})
	require.NoError(t, err)
	return m.ID, tokenA, tokenB
}

func (f *fixture) at(d time.Duration) {
	f.clock.Set(t0.Add(d))
}

func (f *fixture) get(t *testing.T, id string) *types.Match {
	m, err := f.table.Get(id)
	require.NoError(t, err)
	return m
}

func TestScheduler_CreateMatch(t *testing.T) {
	f := newFixture(t, nil)
	m, err := f.scheduler.CreateMatch(context.Background(), testSpec())
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, types.PhaseOpen, m.Phase)
	assert.Equal(t, 0, m.Turn)
	assert.Nil(t, m.StartUnixTime)
	assert.Equal(t, t0.UnixMilli(), m.CreatedAt)
	assert.Len(t, m.Field.Tiles, 9)
	require.Len(t, f.notifier.all(), 1)
	assert.Equal(t, 0, f.scheduler.Pending())

	spec := testSpec()
	spec.Board.Points = nil
	_, err = f.scheduler.CreateMatch(context.Background(), spec)
	assert.Error(t, err)
}

func TestScheduler_FullRosterArmsOnce(t *testing.T) {
	f := newFixture(t, nil)
	id, _, _ := f.arm(t)

	m := f.get(t, id)
	assert.Equal(t, types.PhaseArmed, m.Phase)
	require.NotNil(t, m.StartUnixTime)
	assert.Equal(t, t0.Unix()+5, *m.StartUnixTime)
	assert.Equal(t, 1, f.scheduler.Pending())

	f.at(2 * time.Second)
	_, _, err := f.scheduler.Attach(context.Background(), id, match.SeatRequest{PlayerID: "carol"})
	assert.ErrorIs(t, err, match.ErrRosterFull)
	assert.Equal(t, t0.Unix()+5, f.get(t, id).Start())
	assert.Equal(t, 1, f.scheduler.Pending())

	_, err = f.scheduler.ForceArm(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, t0.Unix()+5, f.get(t, id).Start())
}

func TestScheduler_PlaysMatchToConclusion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id, tokenA, _ := f.arm(t)
	put := types.Action{AgentID: 0, Type: types.ActionPut, X: 0, Y: 0}

	_, err := f.reconciler.SubmitWithToken(id, tokenA, put)
	retry, ok := match.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 5, retry)

	f.at(4 * time.Second)
	assert.Equal(t, 0, f.scheduler.RunDue(ctx))
	_, err = f.reconciler.SubmitWithToken(id, tokenA, put)
	retry, _ = match.RetryAfter(err)
	assert.Equal(t, 1, retry)

	f.at(5 * time.Second)
	assert.Equal(t, 1, f.scheduler.RunDue(ctx))
	m := f.get(t, id)
	assert.Equal(t, types.PhaseLive, m.Phase)
	assert.Equal(t, 1, m.Turn)

	f.at(5500 * time.Millisecond)
	_, err = f.reconciler.SubmitWithToken(id, tokenA, put)
	require.NoError(t, err)

	f.at(6 * time.Second)
	assert.Equal(t, 1, f.scheduler.RunDue(ctx))
	m = f.get(t, id)
	assert.Equal(t, 1, m.Turn)
	require.Len(t, m.Log, 1)
	assert.Equal(t, 1, m.Log[0].Turn)
	assert.Equal(t, t0.Add(6*time.Second).UnixMilli(), m.Log[0].AppliedAt)
	assert.Equal(t, types.OutcomeApplied, m.Log[0].Actions[0].Outcome)
	assert.Equal(t, types.ActionPut, m.Log[0].Actions[0].Type)
	assert.Empty(t, m.PendingActions)
	assert.Equal(t, []types.Position{{X: 0, Y: 0}}, m.Players[0].Agents)
	assert.Equal(t, 1, m.Field.Scores[0].Wall)

	f.at(6500 * time.Millisecond)
	_, err = f.reconciler.SubmitWithToken(id, tokenA, types.Action{AgentID: 0, Type: types.ActionStay})
	assert.ErrorIs(t, err, match.ErrUnacceptableTime)

	f.at(7 * time.Second)
	f.scheduler.RunDue(ctx)
	assert.Equal(t, 2, f.get(t, id).Turn)

	// Turn 2 closes at start+3 and turn 3 at start+5. A late scheduler catches up in one pass.
	f.at(11 * time.Second)
	assert.Equal(t, 3, f.scheduler.RunDue(ctx))

	assert.Equal(t, 0, f.table.Len())
	assert.Equal(t, 0, f.scheduler.Pending())

	saved, err := f.storage.LoadMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseConcluded, saved.Phase)
	assert.Equal(t, 3, saved.Turn)
	assert.Len(t, saved.Log, 3)
	assert.Equal(t, t0.Add(11*time.Second).UnixMilli(), saved.ConcludedAt)

	turn := 0
	for _, snap := range f.notifier.all() {
		assert.GreaterOrEqual(t, snap.Turn, turn, "turn must never decrease")
		turn = snap.Turn
	}
	last := f.notifier.all()[len(f.notifier.all())-1]
	assert.Equal(t, types.PhaseConcluded, last.Phase)
}

func TestScheduler_FailedTurnIsRetried(t *testing.T) {
	ctx := context.Background()
	engine := &flaky{Engine: rules.NewBasic(), failures: 1}
	f := newFixture(t, engine)
	id, tokenA, _ := f.arm(t)

	f.at(5 * time.Second)
	f.scheduler.RunDue(ctx)
	f.at(5500 * time.Millisecond)
	_, err := f.reconciler.SubmitWithToken(id, tokenA, types.Action{AgentID: 0, Type: types.ActionPut, X: 1, Y: 1})
	require.NoError(t, err)

	f.at(6 * time.Second)
	f.scheduler.RunDue(ctx)
	m := f.get(t, id)
	assert.Equal(t, 1, m.Turn)
	assert.Empty(t, m.Log)
	assert.Len(t, m.PendingActions, 1, "a failed turn must leave pending actions untouched")

	f.at(6500 * time.Millisecond)
	f.scheduler.RunDue(ctx)
	m = f.get(t, id)
	require.Len(t, m.Log, 1)
	assert.Equal(t, types.OutcomeApplied, m.Log[0].Actions[0].Outcome)
	assert.Equal(t, 2, engine.calls)
}

func TestScheduler_FailedBoundaryIsTraced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	ctx := context.Background()
	engine := &flaky{Engine: rules.NewBasic(), failures: 1}
	f := newFixture(t, engine, WithTracer(provider.Tracer("test")))
	id, _, _ := f.arm(t)

	f.at(6 * time.Second)
	f.scheduler.RunDue(ctx)

	var failed []sdktrace.ReadOnlySpan
	for _, span := range exporter.GetSpans().Snapshots() {
		if span.Name() == "scheduler.operation" && span.Status().Code == codes.Error {
			failed = append(failed, span)
		}
	}
	require.Len(t, failed, 1)
	require.NotEmpty(t, failed[0].Events())
	assert.Equal(t, "exception", failed[0].Events()[0].Name)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "Boundary failed") {
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
		}
	}
	require.NotNil(t, entry, "the failure is logged")
	assert.Equal(t, id, entry["match_id"])
	assert.Equal(t, failed[0].SpanContext().TraceID().String(), entry["trace_id"])
	assert.Contains(t, entry["message"], "engine unavailable")
	assert.NotContains(t, entry, "error", "the error is only rendered once, in the message")
}

func TestScheduler_PanicIsRecovered(t *testing.T) {
	ctx := context.Background()
	engine := &flaky{Engine: rules.NewBasic(), failures: 1, panics: true}
	f := newFixture(t, engine)
	id, _, _ := f.arm(t)

	f.at(6 * time.Second)
	assert.NotPanics(t, func() { f.scheduler.RunDue(ctx) })
	assert.Empty(t, f.get(t, id).Log)

	f.at(6500 * time.Millisecond)
	f.scheduler.RunDue(ctx)
	assert.Len(t, f.get(t, id).Log, 1)
}

func TestScheduler_FailedSaveKeepsMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	st := &failingStorage{MatchStorage: f.storage, failures: 1}
	f.scheduler.storage = st
	id, _, _ := f.arm(t)

	f.at(10 * time.Second)
	f.scheduler.RunDue(ctx)
	m := f.get(t, id)
	assert.Equal(t, types.PhaseConcluded, m.Phase)
	assert.Equal(t, 1, f.scheduler.Pending())

	f.at(10500 * time.Millisecond)
	f.scheduler.RunDue(ctx)
	assert.Equal(t, 0, f.table.Len())
	assert.Equal(t, 2, st.calls)
	_, err := f.storage.LoadMatch(ctx, id)
	require.NoError(t, err)
}

func TestScheduler_RemoveCancelsDeadlines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id, _, _ := f.arm(t)
	other, _, _ := f.arm(t)
	assert.Equal(t, 2, f.scheduler.Pending())

	assert.True(t, f.scheduler.Remove(id))
	assert.Equal(t, 1, f.scheduler.Pending())
	assert.Equal(t, []string{id}, f.notifier.retractions())
	assert.False(t, f.scheduler.Remove(id))
	assert.Equal(t, []string{id}, f.notifier.retractions(), "an unknown match is not retracted again")

	f.at(5 * time.Second)
	assert.Equal(t, 1, f.scheduler.RunDue(ctx))
	assert.Equal(t, types.PhaseLive, f.get(t, other).Phase)
	_, err := f.table.Get(id)
	assert.ErrorIs(t, err, match.ErrNotFound)
}

func TestScheduler_ForceArmFillsGuests(t *testing.T) {
	f := newFixture(t, nil, WithArmDelay(3*time.Second))
	m, err := f.scheduler.CreateMatch(context.Background(), testSpec())
	require.NoError(t, err)
	_, _, err = f.scheduler.Attach(context.Background(), m.ID, match.SeatRequest{PlayerID: "alice"})
	require.NoError(t, err)

	armed, err := f.scheduler.ForceArm(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseArmed, armed.Phase)
	assert.Equal(t, t0.Unix()+3, armed.Start())
	require.Len(t, armed.Players, 2)
	assert.Equal(t, types.PlayerKindGuest, armed.Players[1].Kind)
}

func TestScheduler_Run(t *testing.T) {
	f := newFixture(t, nil)
	id, _, _ := f.arm(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.clock.Add(100 * time.Millisecond)
		m, err := f.table.Get(id)
		return err == nil && m.Phase == types.PhaseLive
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
