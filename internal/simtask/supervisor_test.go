package simtask

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

type fakeSimStore struct {
	mu    sync.Mutex
	tasks map[string]*types.SimulationTask
}

func newFakeSimStore() *fakeSimStore {
	return &fakeSimStore{tasks: make(map[string]*types.SimulationTask)}
}

func (f *fakeSimStore) InsertSimulationTask(ctx context.Context, task *types.SimulationTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.ID] = &cp
	return nil
}

func (f *fakeSimStore) FindSimulationTaskByID(ctx context.Context, id string) (*types.SimulationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeSimStore) FindActiveByParamHash(ctx context.Context, hash string) (*types.SimulationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ParamsHash == hash && (t.Status == types.SimulationPending || t.Status == types.SimulationRunning) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSimStore) FindStuckRunning(ctx context.Context, ownerInstance string) ([]types.SimulationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.SimulationTask
	for _, t := range f.tasks {
		if t.Status == types.SimulationRunning && t.OwnerInstance == ownerInstance {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeSimStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = types.SimulationRunning
	f.tasks[id].StartedAt = startedAt
	return nil
}

func (f *fakeSimStore) UpdateProgress(ctx context.Context, id string, done, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].ProgressDone = done
	f.tasks[id].ProgressTotal = total
	return nil
}

func (f *fakeSimStore) CompleteSimulationTask(ctx context.Context, id string, resultJSON string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = types.SimulationCompleted
	f.tasks[id].ResultJSON = resultJSON
	f.tasks[id].FinishedAt = finishedAt
	return nil
}

func (f *fakeSimStore) FailSimulationTask(ctx context.Context, id string, errText string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = types.SimulationFailed
	f.tasks[id].Error = errText
	f.tasks[id].FinishedAt = finishedAt
	return nil
}

func (f *fakeSimStore) CancelSimulationTask(ctx context.Context, id string, finishedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = types.SimulationCancelled
	f.tasks[id].FinishedAt = finishedAt
	return nil
}

func (f *fakeSimStore) RequestCancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].CancelRequested = true
	return nil
}

func (f *fakeSimStore) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id].CancelRequested, nil
}

func (f *fakeSimStore) get(id string) *types.SimulationTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id]
}

func newTestSupervisor(t *testing.T, store Store) *Supervisor {
	pool := worker.NewPool(zap.NewNop(), worker.DefaultPoolConfig("simtask-test"))
	t.Cleanup(func() { _ = pool.Stop(time.Second) })
	return New(zap.NewNop(), store, pool, "instance-1")
}

func waitForTerminal(t *testing.T, store *fakeSimStore, id string) *types.SimulationTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task := store.get(id)
		if task != nil && task.IsTerminal() {
			return task
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state in time", id)
	return nil
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	store := newFakeSimStore()
	sup := newTestSupervisor(t, store)

	job := func(ctx context.Context, reportProgress ProgressFunc, cancelled CancelledFunc) (string, error) {
		reportProgress(1, 1)
		return `{"ok":true}`, nil
	}

	task, err := sup.Submit(context.Background(), "BACKTEST", map[string]string{"strategy": "trend_following"}, []string{"KRW-BTC"}, job)
	require.NoError(t, err)
	require.Equal(t, types.SimulationPending, task.Status)

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.SimulationCompleted, final.Status)
	assert.Equal(t, `{"ok":true}`, final.ResultJSON)
	assert.Equal(t, 1, final.ProgressDone)
}

func TestSubmitMarksFailedOnJobError(t *testing.T) {
	store := newFakeSimStore()
	sup := newTestSupervisor(t, store)

	job := func(ctx context.Context, reportProgress ProgressFunc, cancelled CancelledFunc) (string, error) {
		return "", assert.AnError
	}

	task, err := sup.Submit(context.Background(), "BACKTEST", map[string]string{"strategy": "rsi_reversal"}, []string{"KRW-ETH"}, job)
	require.NoError(t, err)

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.SimulationFailed, final.Status)
	assert.NotEmpty(t, final.Error)
}

func TestSubmitMarksCancelledWhenJobObservesCancellation(t *testing.T) {
	store := newFakeSimStore()
	sup := newTestSupervisor(t, store)

	job := func(ctx context.Context, reportProgress ProgressFunc, cancelled CancelledFunc) (string, error) {
		for !cancelled() {
			time.Sleep(time.Millisecond)
		}
		return "", fmt.Errorf("job stopped early: %w", ErrCancelled)
	}

	task, err := sup.Submit(context.Background(), "BACKTEST", map[string]string{"strategy": "bollinger_breakout"}, []string{"KRW-BTC"}, job)
	require.NoError(t, err)
	require.NoError(t, sup.Cancel(context.Background(), task.ID))

	final := waitForTerminal(t, store, task.ID)
	assert.Equal(t, types.SimulationCancelled, final.Status)
}

func TestSubmitDedupsByParamHash(t *testing.T) {
	store := newFakeSimStore()
	sup := newTestSupervisor(t, store)

	block := make(chan struct{})
	job := func(ctx context.Context, reportProgress ProgressFunc, cancelled CancelledFunc) (string, error) {
		<-block
		return "{}", nil
	}

	params := map[string]string{"strategy": "vwap_reversion"}
	markets := []string{"KRW-BTC"}

	first, err := sup.Submit(context.Background(), "BACKTEST", params, markets, job)
	require.NoError(t, err)

	second, err := sup.Submit(context.Background(), "BACKTEST", params, markets, job)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	close(block)
	waitForTerminal(t, store, first.ID)
}

func TestReclaimFailsStuckRunningTasks(t *testing.T) {
	store := newFakeSimStore()
	store.tasks["stuck-1"] = &types.SimulationTask{
		ID: "stuck-1", Type: "BACKTEST", Status: types.SimulationRunning, OwnerInstance: "instance-1",
	}
	sup := newTestSupervisor(t, store)

	require.NoError(t, sup.Reclaim(context.Background()))

	final := store.get("stuck-1")
	assert.Equal(t, types.SimulationFailed, final.Status)
	assert.Equal(t, "interrupted", final.Error)
}

func TestHashParamsStableAcrossMapOrder(t *testing.T) {
	a := HashParams("BACKTEST", map[string]string{"x": "1", "y": "2"}, []string{"KRW-BTC", "KRW-ETH"})
	b := HashParams("BACKTEST", map[string]string{"y": "2", "x": "1"}, []string{"KRW-ETH", "KRW-BTC"})
	assert.Equal(t, a, b)

	c := HashParams("BACKTEST", map[string]string{"x": "1", "y": "3"}, []string{"KRW-BTC", "KRW-ETH"})
	assert.NotEqual(t, a, c)
}
