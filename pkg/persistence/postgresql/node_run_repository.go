package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
)

// NodeRunRepository handles node-run-related database operations.
type NodeRunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeRunRepository creates a new node run repository.
func NewNodeRunRepository(db *sql.DB, logger *slog.Logger) *NodeRunRepository {
	return &NodeRunRepository{db: db, logger: logger}
}

const nodeRunColumns = `
		id
	  , run_id
	  , node_id
	  , component_name
	  , component_version
	  , status
	  , started_at
	  , completed_at
	  , duration_ms
	  , error_message
	  , error_stack
	  , retry_count
	  , waiting_for
	  , waiting_since
	  , metadata
	  , created_at
`

func (r *NodeRunRepository) Create(ctx context.Context, nodeRun *models.NodeRun) error {
	if nodeRun.CreatedAt.IsZero() {
		nodeRun.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := marshalNullable(nodeRun.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal node run metadata: %w", err)
	}

	query := `
		INSERT INTO node_runs (
			id, run_id, node_id, component_name, component_version,
			status, started_at, completed_at, duration_ms, error_message,
			error_stack, retry_count, waiting_for, waiting_since,
			metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		nodeRun.ID, nodeRun.RunID, nodeRun.NodeID,
		nullString(nodeRun.ComponentName), nullString(nodeRun.ComponentVersion),
		nodeRun.Status, nodeRun.StartedAt, nodeRun.CompletedAt,
		nodeRun.DurationMs, nullString(nodeRun.ErrorMessage),
		nullString(nodeRun.ErrorStack), nodeRun.RetryCount,
		nullString(nodeRun.WaitingFor), nodeRun.WaitingSince,
		metadataJSON, nodeRun.CreatedAt,
	)
	if err != nil {
		return &persistence.NodeRunError{Op: "Create", RunID: nodeRun.RunID, NodeID: nodeRun.NodeID, Err: err}
	}

	return nil
}

func (r *NodeRunRepository) Update(ctx context.Context, nodeRun *models.NodeRun) error {
	metadataJSON, err := marshalNullable(nodeRun.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal node run metadata: %w", err)
	}

	query := `
		UPDATE node_runs SET
			status = $2
		  , started_at = $3
		  , completed_at = $4
		  , duration_ms = $5
		  , error_message = $6
		  , error_stack = $7
		  , retry_count = $8
		  , waiting_for = $9
		  , waiting_since = $10
		  , metadata = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		nodeRun.ID, nodeRun.Status, nodeRun.StartedAt, nodeRun.CompletedAt,
		nodeRun.DurationMs, nullString(nodeRun.ErrorMessage),
		nullString(nodeRun.ErrorStack), nodeRun.RetryCount,
		nullString(nodeRun.WaitingFor), nodeRun.WaitingSince, metadataJSON,
	)
	if err != nil {
		return &persistence.NodeRunError{Op: "Update", RunID: nodeRun.RunID, NodeID: nodeRun.NodeID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &persistence.NodeRunError{Op: "Update", RunID: nodeRun.RunID, NodeID: nodeRun.NodeID, Err: err}
	}

	if affected == 0 {
		return &persistence.NodeRunError{
			Op:     "Update",
			RunID:  nodeRun.RunID,
			NodeID: nodeRun.NodeID,
			Err:    persistence.ErrNodeRunNotFound,
		}
	}

	return nil
}

func (r *NodeRunRepository) ByID(ctx context.Context, id string) (*models.NodeRun, error) {
	query := "SELECT " + nodeRunColumns + " FROM node_runs WHERE id = $1"

	nodeRun, err := r.scanNodeRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNodeRunNotFound
		}

		return nil, fmt.Errorf("failed to scan node run: %w", err)
	}

	return nodeRun, nil
}

func (r *NodeRunRepository) ByRunID(ctx context.Context, runID string) ([]*models.NodeRun, error) {
	query := "SELECT " + nodeRunColumns + " FROM node_runs WHERE run_id = $1 ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node runs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	nodeRuns := make([]*models.NodeRun, 0)

	for rows.Next() {
		nodeRun, err := r.scanNodeRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node run: %w", err)
		}

		nodeRuns = append(nodeRuns, nodeRun)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating node runs: %w", err)
	}

	return nodeRuns, nil
}

func (r *NodeRunRepository) LatestByNodeID(ctx context.Context, runID, nodeID string) (*models.NodeRun, error) {
	query := "SELECT " + nodeRunColumns + ` FROM node_runs
		WHERE run_id = $1 AND node_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	nodeRun, err := r.scanNodeRun(r.db.QueryRowContext(ctx, query, runID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.NodeRunError{
				Op:     "LatestByNodeID",
				RunID:  runID,
				NodeID: nodeID,
				Err:    persistence.ErrNodeRunNotFound,
			}
		}

		return nil, fmt.Errorf("failed to scan node run: %w", err)
	}

	return nodeRun, nil
}

func (r *NodeRunRepository) scanNodeRun(row rowScanner) (*models.NodeRun, error) {
	var (
		nodeRun          models.NodeRun
		componentName    sql.NullString
		componentVersion sql.NullString
		errorMessage     sql.NullString
		errorStack       sql.NullString
		waitingFor       sql.NullString
		metadataJSON     []byte
	)

	err := row.Scan(
		&nodeRun.ID, &nodeRun.RunID, &nodeRun.NodeID,
		&componentName, &componentVersion, &nodeRun.Status,
		&nodeRun.StartedAt, &nodeRun.CompletedAt, &nodeRun.DurationMs,
		&errorMessage, &errorStack, &nodeRun.RetryCount,
		&waitingFor, &nodeRun.WaitingSince, &metadataJSON,
		&nodeRun.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	nodeRun.ComponentName = componentName.String
	nodeRun.ComponentVersion = componentVersion.String
	nodeRun.ErrorMessage = errorMessage.String
	nodeRun.ErrorStack = errorStack.String
	nodeRun.WaitingFor = waitingFor.String

	if len(metadataJSON) > 0 {
		err = json.Unmarshal(metadataJSON, &nodeRun.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node run metadata: %w", err)
		}
	}

	return &nodeRun, nil
}
