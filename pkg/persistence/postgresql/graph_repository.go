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

// GraphRepository handles graph-version-related database operations.
type GraphRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraphRepository creates a new graph version repository.
func NewGraphRepository(db *sql.DB, logger *slog.Logger) *GraphRepository {
	return &GraphRepository{db: db, logger: logger}
}

const graphVersionColumns = `
		id
	  , graph_id
	  , version
	  , status
	  , definition
	  , pinned_outputs
	  , owner
	  , created_at
	  , published_at
`

func (r *GraphRepository) SaveVersion(ctx context.Context, version *models.GraphVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	definitionJSON, err := json.Marshal(version.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal graph definition: %w", err)
	}

	pinnedOutputsJSON, err := marshalNullable(version.PinnedOutputs)
	if err != nil {
		return fmt.Errorf("failed to marshal pinned outputs: %w", err)
	}

	query := `
		INSERT INTO graph_versions (
			id, graph_id, version, status, definition, pinned_outputs,
			owner, created_at, published_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , definition = EXCLUDED.definition
		  , pinned_outputs = EXCLUDED.pinned_outputs
		  , published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID, version.GraphID, version.Version, version.Status,
		definitionJSON, pinnedOutputsJSON, nullString(version.Owner),
		version.CreatedAt, version.PublishedAt,
	)
	if err != nil {
		return &persistence.GraphError{Op: "SaveVersion", GraphID: version.GraphID, VersionID: version.ID, Err: err}
	}

	return nil
}

func (r *GraphRepository) VersionByID(ctx context.Context, id string) (*models.GraphVersion, error) {
	query := "SELECT " + graphVersionColumns + " FROM graph_versions WHERE id = $1"

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.GraphError{Op: "VersionByID", VersionID: id, Err: persistence.ErrGraphVersionNotFound}
		}

		return nil, fmt.Errorf("failed to scan graph version: %w", err)
	}

	return version, nil
}

func (r *GraphRepository) PublishedVersion(ctx context.Context, graphID string) (*models.GraphVersion, error) {
	query := "SELECT " + graphVersionColumns + ` FROM graph_versions
		WHERE graph_id = $1 AND status = 'published'
		ORDER BY published_at DESC NULLS LAST
		LIMIT 1`

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, graphID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.GraphError{Op: "PublishedVersion", GraphID: graphID, Err: persistence.ErrPublishedVersionNotFound}
		}

		return nil, fmt.Errorf("failed to scan graph version: %w", err)
	}

	return version, nil
}

func (r *GraphRepository) VersionsByGraphID(ctx context.Context, graphID string) ([]*models.GraphVersion, error) {
	query := "SELECT " + graphVersionColumns + " FROM graph_versions WHERE graph_id = $1 ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query graph versions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	versions := make([]*models.GraphVersion, 0)

	for rows.Next() {
		version, err := r.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan graph version: %w", err)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating graph versions: %w", err)
	}

	return versions, nil
}

func (r *GraphRepository) DeleteVersion(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM graph_versions WHERE id = $1", id)
	if err != nil {
		return &persistence.GraphError{Op: "DeleteVersion", VersionID: id, Err: err}
	}

	return nil
}

func (r *GraphRepository) scanVersion(row rowScanner) (*models.GraphVersion, error) {
	var (
		version           models.GraphVersion
		definitionJSON    []byte
		pinnedOutputsJSON []byte
		owner             sql.NullString
	)

	err := row.Scan(
		&version.ID, &version.GraphID, &version.Version, &version.Status,
		&definitionJSON, &pinnedOutputsJSON, &owner,
		&version.CreatedAt, &version.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	version.Owner = owner.String

	err = json.Unmarshal(definitionJSON, &version.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph definition: %w", err)
	}

	err = unmarshalNullable(pinnedOutputsJSON, &version.PinnedOutputs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal pinned outputs: %w", err)
	}

	return &version, nil
}
