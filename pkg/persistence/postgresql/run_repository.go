package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
		id
	  , graph_version_id
	  , status
	  , trigger_type
	  , trigger_input
	  , trigger_context
	  , triggered_by
	  , started_at
	  , completed_at
	  , duration_ms
	  , error_message
	  , paused_at
	  , waiting_node_id
	  , pause_reason
	  , resume_condition
	  , retry_of
	  , retry_count
	  , max_retries
	  , cancelled_by
	  , cancelled_at
	  , cancel_reason
	  , created_at
	  , updated_at
`

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	triggerInputJSON, triggerContextJSON, resumeConditionJSON, err := marshalRunJSON(run)
	if err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	query := `
		INSERT INTO runs (
			id, graph_version_id, status, trigger_type, trigger_input,
			trigger_context, triggered_by, started_at, completed_at,
			duration_ms, error_message, paused_at, waiting_node_id,
			pause_reason, resume_condition, retry_of, retry_count,
			max_retries, cancelled_by, cancelled_at, cancel_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.GraphVersionID, run.Status, run.TriggerType,
		triggerInputJSON, triggerContextJSON, run.TriggeredBy,
		run.StartedAt, run.CompletedAt, run.DurationMs,
		nullString(run.ErrorMessage), run.PausedAt,
		nullString(run.WaitingNodeID), nullString(run.PauseReason),
		resumeConditionJSON, nullString(run.RetryOf), run.RetryCount,
		run.MaxRetries, nullString(run.CancelledBy), run.CancelledAt,
		nullString(run.CancelReason), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *models.Run) error {
	run.UpdatedAt = time.Now().UTC()

	triggerInputJSON, triggerContextJSON, resumeConditionJSON, err := marshalRunJSON(run)
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	query := `
		UPDATE runs SET
			status = $2
		  , trigger_input = $3
		  , trigger_context = $4
		  , started_at = $5
		  , completed_at = $6
		  , duration_ms = $7
		  , error_message = $8
		  , paused_at = $9
		  , waiting_node_id = $10
		  , pause_reason = $11
		  , resume_condition = $12
		  , retry_count = $13
		  , cancelled_by = $14
		  , cancelled_at = $15
		  , cancel_reason = $16
		  , updated_at = $17
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID, run.Status, triggerInputJSON, triggerContextJSON,
		run.StartedAt, run.CompletedAt, run.DurationMs,
		nullString(run.ErrorMessage), run.PausedAt,
		nullString(run.WaitingNodeID), nullString(run.PauseReason),
		resumeConditionJSON, run.RetryCount,
		nullString(run.CancelledBy), run.CancelledAt,
		nullString(run.CancelReason), run.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	if affected == 0 {
		return persistence.NewRunError("Update", run.ID, persistence.ErrRunNotFound)
	}

	return nil
}

func (r *RunRepository) ByID(ctx context.Context, id string) (*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE id = $1"

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("ByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("ByID", id, err)
	}

	return run, nil
}

func (r *RunRepository) List(ctx context.Context, opts persistence.ListRunsOptions) (*persistence.RunListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	where := " WHERE 1=1"
	args := make([]any, 0, 6)

	appendFilter := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if opts.GraphID != "" {
		appendFilter("graph_version_id =", opts.GraphID)
	}

	if opts.Owner != "" {
		appendFilter("triggered_by =", opts.Owner)
	}

	if opts.Status != "" {
		appendFilter("status =", string(opts.Status))
	}

	if opts.StartedAfter != nil {
		appendFilter("started_at >=", *opts.StartedAfter)
	}

	if opts.StartedBefore != nil {
		appendFilter("started_at <=", *opts.StartedBefore)
	}

	var total int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs"+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	query := "SELECT " + runColumns + " FROM runs" + where +
		" ORDER BY created_at DESC" +
		" LIMIT " + strconv.Itoa(opts.Limit) +
		" OFFSET " + strconv.Itoa(opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return &persistence.RunListResult{Runs: runs, Total: total}, nil
}

func (r *RunRepository) CountRetries(ctx context.Context, runID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE retry_of = $1", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count retries for run %s: %w", runID, err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *RunRepository) scanRun(row rowScanner) (*models.Run, error) {
	var (
		run                 models.Run
		triggerInputJSON    []byte
		triggerContextJSON  []byte
		resumeConditionJSON []byte
		errorMessage        sql.NullString
		waitingNodeID       sql.NullString
		pauseReason         sql.NullString
		retryOf             sql.NullString
		cancelledBy         sql.NullString
		cancelReason        sql.NullString
	)

	err := row.Scan(
		&run.ID, &run.GraphVersionID, &run.Status, &run.TriggerType,
		&triggerInputJSON, &triggerContextJSON, &run.TriggeredBy,
		&run.StartedAt, &run.CompletedAt, &run.DurationMs,
		&errorMessage, &run.PausedAt, &waitingNodeID, &pauseReason,
		&resumeConditionJSON, &retryOf, &run.RetryCount, &run.MaxRetries,
		&cancelledBy, &run.CancelledAt, &cancelReason,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ErrorMessage = errorMessage.String
	run.WaitingNodeID = waitingNodeID.String
	run.PauseReason = pauseReason.String
	run.RetryOf = retryOf.String
	run.CancelledBy = cancelledBy.String
	run.CancelReason = cancelReason.String

	err = unmarshalNullable(triggerInputJSON, &run.TriggerInput)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger input: %w", err)
	}

	err = unmarshalNullable(triggerContextJSON, &run.TriggerContext)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger context: %w", err)
	}

	err = unmarshalNullable(resumeConditionJSON, &run.ResumeCondition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal resume condition: %w", err)
	}

	return &run, nil
}

func marshalRunJSON(run *models.Run) ([]byte, []byte, []byte, error) {
	triggerInputJSON, err := marshalNullable(run.TriggerInput)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal trigger input: %w", err)
	}

	triggerContextJSON, err := marshalNullable(run.TriggerContext)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal trigger context: %w", err)
	}

	resumeConditionJSON, err := marshalNullable(run.ResumeCondition)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal resume condition: %w", err)
	}

	return triggerInputJSON, triggerContextJSON, resumeConditionJSON, nil
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	return json.Marshal(m)
}

func unmarshalNullable(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
