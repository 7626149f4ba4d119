package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// InsertSimulationTask inserts a new PENDING row (spec §4.9).
func (s *Store) InsertSimulationTask(ctx context.Context, task *types.SimulationTask) error {
	paramsJSON, err := json.Marshal(task.Params)
	if err != nil {
		return err
	}
	marketsJSON, err := json.Marshal(task.Markets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_tasks (id, type, status, params_hash, params_json, markets_json, progress_done, progress_total, owner_instance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Type, string(task.Status), task.ParamsHash, string(paramsJSON), string(marketsJSON),
		task.ProgressDone, task.ProgressTotal, task.OwnerInstance, formatTime(task.CreatedAt))
	return err
}

// FindSimulationTaskByID returns one task by id.
func (s *Store) FindSimulationTaskByID(ctx context.Context, id string) (*types.SimulationTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, params_hash, params_json, markets_json, progress_done, progress_total,
			result_json, error, cancel_requested, owner_instance, created_at, started_at, finished_at
		FROM simulation_tasks WHERE id = ?
	`, id)
	task, err := scanSimTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

// FindActiveByParamHash returns a PENDING/RUNNING task matching the
// given param hash, for submission dedup (spec §4.9).
func (s *Store) FindActiveByParamHash(ctx context.Context, hash string) (*types.SimulationTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, params_hash, params_json, markets_json, progress_done, progress_total,
			result_json, error, cancel_requested, owner_instance, created_at, started_at, finished_at
		FROM simulation_tasks
		WHERE params_hash = ? AND status IN ('PENDING', 'RUNNING')
		ORDER BY created_at DESC LIMIT 1
	`, hash)
	task, err := scanSimTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

// FindStuckRunning returns RUNNING tasks owned by ownerInstance, for
// the startup-reclaim path.
func (s *Store) FindStuckRunning(ctx context.Context, ownerInstance string) ([]types.SimulationTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, status, params_hash, params_json, markets_json, progress_done, progress_total,
			result_json, error, cancel_requested, owner_instance, created_at, started_at, finished_at
		FROM simulation_tasks WHERE status = 'RUNNING' AND owner_instance = ?
	`, ownerInstance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SimulationTask
	for rows.Next() {
		task, err := scanSimTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

// MarkRunning transitions a task to RUNNING and stamps startedAt.
func (s *Store) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE simulation_tasks SET status = 'RUNNING', started_at = ? WHERE id = ?
	`, formatTime(startedAt), id)
	return err
}

// UpdateProgress writes the done/total counters (spec §4.9).
func (s *Store) UpdateProgress(ctx context.Context, id string, done, total int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE simulation_tasks SET progress_done = ?, progress_total = ? WHERE id = ?
	`, done, total, id)
	return err
}

// CompleteSimulationTask stores the result payload and marks COMPLETED.
func (s *Store) CompleteSimulationTask(ctx context.Context, id string, resultJSON string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE simulation_tasks SET status = 'COMPLETED', result_json = ?, finished_at = ? WHERE id = ?
	`, resultJSON, formatTime(finishedAt), id)
	return err
}

// FailSimulationTask stores the error text and marks FAILED.
func (s *Store) FailSimulationTask(ctx context.Context, id string, errText string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE simulation_tasks SET status = 'FAILED', error = ?, finished_at = ? WHERE id = ?
	`, errText, formatTime(finishedAt), id)
	return err
}

// CancelSimulationTask marks a task CANCELLED after its job observed
// the cooperative cancellation flag and returned early.
func (s *Store) CancelSimulationTask(ctx context.Context, id string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE simulation_tasks SET status = 'CANCELLED', finished_at = ? WHERE id = ?
	`, formatTime(finishedAt), id)
	return err
}

// RequestCancel sets cancelRequested for cooperative cancellation.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE simulation_tasks SET cancel_requested = 1 WHERE id = ?`, id)
	return err
}

// IsCancelRequested polls the flag between markets/iterations.
func (s *Store) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var flag bool
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM simulation_tasks WHERE id = ?`, id).Scan(&flag)
	return flag, err
}

func scanSimTask(row rowScanner) (*types.SimulationTask, error) {
	var task types.SimulationTask
	var status, paramsJSON, marketsJSON string
	var startedAt, finishedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&task.ID, &task.Type, &status, &task.ParamsHash, &paramsJSON, &marketsJSON,
		&task.ProgressDone, &task.ProgressTotal, &task.ResultJSON, &task.Error,
		&task.CancelRequested, &task.OwnerInstance, &createdAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = types.SimulationStatus(status)
	task.CreatedAt = parseTime(createdAt)
	task.StartedAt = parseTime(startedAt.String)
	task.FinishedAt = parseTime(finishedAt.String)
	_ = json.Unmarshal([]byte(paramsJSON), &task.Params)
	_ = json.Unmarshal([]byte(marketsJSON), &task.Markets)
	return &task, nil
}
