// Package simtask supervises long-running backtest/tune requests
// submitted from outside the replay loop itself (SPEC_FULL.md §4.9):
// dedup by parameter hash, dispatch onto the worker pool, progress and
// cancellation bookkeeping, and startup reclaim of rows left RUNNING
// by a crashed instance.
package simtask

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// ErrCancelled is the sentinel a Job should wrap its returned error
// with when it stops early because cancelled() returned true, so run
// can tell a cooperative cancellation from a genuine failure.
var ErrCancelled = errors.New("simtask: job cancelled")

// Store is the persistence slice the supervisor drives.
type Store interface {
	InsertSimulationTask(ctx context.Context, task *types.SimulationTask) error
	FindSimulationTaskByID(ctx context.Context, id string) (*types.SimulationTask, error)
	FindActiveByParamHash(ctx context.Context, hash string) (*types.SimulationTask, error)
	FindStuckRunning(ctx context.Context, ownerInstance string) ([]types.SimulationTask, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, done, total int) error
	CompleteSimulationTask(ctx context.Context, id string, resultJSON string, finishedAt time.Time) error
	FailSimulationTask(ctx context.Context, id string, errText string, finishedAt time.Time) error
	CancelSimulationTask(ctx context.Context, id string, finishedAt time.Time) error
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
}

// ProgressFunc reports how many of total units of work are done.
type ProgressFunc func(done, total int)

// CancelledFunc reports whether the caller has asked this task to stop.
type CancelledFunc func() bool

// Job is the unit of work a submitted task runs under supervision.
// Implementations should call reportProgress periodically and check
// cancelled between markets/iterations, returning early when it's true.
type Job func(ctx context.Context, reportProgress ProgressFunc, cancelled CancelledFunc) (resultJSON string, err error)

// Supervisor owns task submission, dedup, and lifecycle bookkeeping
// for jobs run on the shared worker pool.
type Supervisor struct {
	logger     *zap.Logger
	store      Store
	pool       *worker.Pool
	instanceID string
}

// New builds a supervisor. instanceID tags rows this process owns, so
// Reclaim can find work orphaned by a prior crash of the same process
// identity (e.g. a fixed deployment slot name).
func New(logger *zap.Logger, store Store, pool *worker.Pool, instanceID string) *Supervisor {
	return &Supervisor{
		logger:     logger.Named("simtask"),
		store:      store,
		pool:       pool,
		instanceID: instanceID,
	}
}

// Reclaim marks any row left RUNNING under this instance's identity as
// FAILED "interrupted". Call once at startup before accepting submissions.
func (s *Supervisor) Reclaim(ctx context.Context) error {
	stuck, err := s.store.FindStuckRunning(ctx, s.instanceID)
	if err != nil {
		return fmt.Errorf("simtask: reclaim: %w", err)
	}
	for _, task := range stuck {
		s.logger.Warn("reclaiming stuck task", zap.String("id", task.ID), zap.String("type", task.Type))
		if err := s.store.FailSimulationTask(ctx, task.ID, "interrupted", time.Now()); err != nil {
			s.logger.Error("reclaim failed", zap.String("id", task.ID), zap.Error(err))
		}
	}
	return nil
}

// HashParams normalizes a param set into a stable dedup key. Order of
// insertion into the map doesn't affect the hash.
func HashParams(taskType string, params map[string]string, markets []string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sortedMarkets := append([]string(nil), markets...)
	sort.Strings(sortedMarkets)

	h := sha256.New()
	h.Write([]byte(taskType))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(params[k]))
	}
	for _, m := range sortedMarkets {
		h.Write([]byte{0})
		h.Write([]byte(m))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Submit dedups against an existing PENDING/RUNNING task with the same
// param hash, returning that task untouched if found; otherwise it
// inserts a new PENDING row and dispatches job onto the pool.
func (s *Supervisor) Submit(ctx context.Context, taskType string, params map[string]string, markets []string, job Job) (*types.SimulationTask, error) {
	hash := HashParams(taskType, params, markets)

	existing, err := s.store.FindActiveByParamHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("simtask: dedup lookup: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	task := &types.SimulationTask{
		ID:            uuid.NewString(),
		Type:          taskType,
		Status:        types.SimulationPending,
		ParamsHash:    hash,
		Params:        params,
		Markets:       markets,
		ProgressTotal: len(markets),
		OwnerInstance: s.instanceID,
		CreatedAt:     time.Now(),
	}
	if err := s.store.InsertSimulationTask(ctx, task); err != nil {
		return nil, fmt.Errorf("simtask: insert: %w", err)
	}

	s.pool.SubmitFunc(func() error {
		s.run(context.Background(), task, job)
		return nil
	})

	return task, nil
}

// Cancel flags a task for cooperative cancellation; the job itself
// decides when to observe the flag via its CancelledFunc.
func (s *Supervisor) Cancel(ctx context.Context, id string) error {
	return s.store.RequestCancel(ctx, id)
}

func (s *Supervisor) run(ctx context.Context, task *types.SimulationTask, job Job) {
	now := time.Now()
	if err := s.store.MarkRunning(ctx, task.ID, now); err != nil {
		s.logger.Error("mark running failed", zap.String("id", task.ID), zap.Error(err))
		return
	}

	reportProgress := func(done, total int) {
		if err := s.store.UpdateProgress(ctx, task.ID, done, total); err != nil {
			s.logger.Error("progress update failed", zap.String("id", task.ID), zap.Error(err))
		}
	}
	cancelled := func() bool {
		flag, err := s.store.IsCancelRequested(ctx, task.ID)
		if err != nil {
			s.logger.Error("cancel check failed", zap.String("id", task.ID), zap.Error(err))
			return false
		}
		return flag
	}

	resultJSON, err := job(ctx, reportProgress, cancelled)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			s.logger.Info("task cancelled", zap.String("id", task.ID), zap.String("type", task.Type))
			if cerr := s.store.CancelSimulationTask(ctx, task.ID, time.Now()); cerr != nil {
				s.logger.Error("cancel-status write failed", zap.String("id", task.ID), zap.Error(cerr))
			}
			return
		}
		s.logger.Error("task failed", zap.String("id", task.ID), zap.String("type", task.Type), zap.Error(err))
		if ferr := s.store.FailSimulationTask(ctx, task.ID, err.Error(), time.Now()); ferr != nil {
			s.logger.Error("fail-status write failed", zap.String("id", task.ID), zap.Error(ferr))
		}
		return
	}
	if err := s.store.CompleteSimulationTask(ctx, task.ID, resultJSON, time.Now()); err != nil {
		s.logger.Error("complete-status write failed", zap.String("id", task.ID), zap.Error(err))
	}
}
