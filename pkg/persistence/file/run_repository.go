package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
)

// RunRepository stores runs as JSON files under <root>/runs.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) Create(ctx context.Context, run *models.Run) error {
	existing, err := rr.load(run.ID)
	if err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	if existing != nil {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	return rr.save(run)
}

func (rr *RunRepository) Update(_ context.Context, run *models.Run) error {
	existing, err := rr.load(run.ID)
	if err != nil {
		return persistence.NewRunError("Update", run.ID, err)
	}

	if existing == nil {
		return persistence.NewRunError("Update", run.ID, persistence.ErrRunNotFound)
	}

	return rr.save(run)
}

func (rr *RunRepository) ByID(_ context.Context, id string) (*models.Run, error) {
	run, err := rr.load(id)
	if err != nil {
		return nil, persistence.NewRunError("ByID", id, err)
	}

	if run == nil {
		return nil, persistence.NewRunError("ByID", id, persistence.ErrRunNotFound)
	}

	return run, nil
}

// List loads every run and applies filtering, sorting and paging in memory.
func (rr *RunRepository) List(_ context.Context, opts persistence.ListRunsOptions) (*persistence.RunListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	allRuns, err := rr.loadAll()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Run, 0, len(allRuns))

	for _, run := range allRuns {
		if opts.GraphID != "" && run.GraphVersionID != opts.GraphID {
			continue
		}

		if opts.Owner != "" && run.TriggeredBy != opts.Owner {
			continue
		}

		if opts.Status != "" && run.Status != opts.Status {
			continue
		}

		if opts.StartedAfter != nil && (run.StartedAt == nil || run.StartedAt.Before(*opts.StartedAfter)) {
			continue
		}

		if opts.StartedBefore != nil && (run.StartedAt == nil || run.StartedAt.After(*opts.StartedBefore)) {
			continue
		}

		filtered = append(filtered, run)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)

	startIdx := opts.Offset
	if startIdx > total {
		startIdx = total
	}

	endIdx := startIdx + opts.Limit
	if endIdx > total {
		endIdx = total
	}

	return &persistence.RunListResult{
		Runs:  filtered[startIdx:endIdx],
		Total: total,
	}, nil
}

func (rr *RunRepository) CountRetries(_ context.Context, runID string) (int, error) {
	if runID == "" {
		return 0, nil
	}

	allRuns, err := rr.loadAll()
	if err != nil {
		return 0, err
	}

	count := 0

	for _, run := range allRuns {
		if run.RetryOf == runID {
			count++
		}
	}

	return count, nil
}

func (rr *RunRepository) load(id string) (*models.Run, error) {
	filePath := filepath.Clean(path.Join(rr.root, "runs", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var run models.Run

	err = json.Unmarshal(body, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

func (rr *RunRepository) loadAll() ([]*models.Run, error) {
	root := os.DirFS(path.Join(rr.root, "runs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.Run, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.load(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if run != nil {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

func (rr *RunRepository) save(run *models.Run) error {
	err := os.MkdirAll(path.Join(rr.root, "runs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	filePath := path.Join(rr.root, "runs", run.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}
