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

// NodeRunRepository stores node runs as JSON files under
// <root>/node_runs/<run-id>.
type NodeRunRepository struct {
	root string
}

// NewNodeRunRepository creates a new node run repository.
func NewNodeRunRepository(root string) *NodeRunRepository {
	return &NodeRunRepository{root: root}
}

func (nr *NodeRunRepository) Create(_ context.Context, nodeRun *models.NodeRun) error {
	return nr.save(nodeRun)
}

func (nr *NodeRunRepository) Update(_ context.Context, nodeRun *models.NodeRun) error {
	existing, err := nr.load(nodeRun.RunID, nodeRun.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		return &persistence.NodeRunError{
			Op:     "Update",
			RunID:  nodeRun.RunID,
			NodeID: nodeRun.NodeID,
			Err:    persistence.ErrNodeRunNotFound,
		}
	}

	return nr.save(nodeRun)
}

func (nr *NodeRunRepository) ByID(ctx context.Context, id string) (*models.NodeRun, error) {
	runDirs, err := os.ReadDir(path.Join(nr.root, "node_runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrNodeRunNotFound
		}

		return nil, fmt.Errorf("failed to list node run directories: %w", err)
	}

	for _, dir := range runDirs {
		if !dir.IsDir() {
			continue
		}

		nodeRun, err := nr.load(dir.Name(), id)
		if err != nil {
			return nil, err
		}

		if nodeRun != nil {
			return nodeRun, nil
		}
	}

	return nil, persistence.ErrNodeRunNotFound
}

func (nr *NodeRunRepository) ByRunID(_ context.Context, runID string) ([]*models.NodeRun, error) {
	root := os.DirFS(path.Join(nr.root, "node_runs", runID))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list node run files: %w", err)
	}

	nodeRuns := make([]*models.NodeRun, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		nodeRun, err := nr.load(runID, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if nodeRun != nil {
			nodeRuns = append(nodeRuns, nodeRun)
		}
	}

	sort.Slice(nodeRuns, func(i, j int) bool {
		iStart := nodeRuns[i].StartedAt
		jStart := nodeRuns[j].StartedAt

		if iStart == nil || jStart == nil {
			return jStart != nil
		}

		return iStart.Before(*jStart)
	})

	return nodeRuns, nil
}

func (nr *NodeRunRepository) LatestByNodeID(ctx context.Context, runID, nodeID string) (*models.NodeRun, error) {
	nodeRuns, err := nr.ByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	var latest *models.NodeRun

	for _, nodeRun := range nodeRuns {
		if nodeRun.NodeID != nodeID {
			continue
		}

		if latest == nil || nodeRun.CreatedAt.After(latest.CreatedAt) {
			latest = nodeRun
		}
	}

	if latest == nil {
		return nil, &persistence.NodeRunError{
			Op:     "LatestByNodeID",
			RunID:  runID,
			NodeID: nodeID,
			Err:    persistence.ErrNodeRunNotFound,
		}
	}

	return latest, nil
}

func (nr *NodeRunRepository) load(runID, id string) (*models.NodeRun, error) {
	filePath := filepath.Clean(path.Join(nr.root, "node_runs", runID, id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read node run file: %w", err)
	}

	var nodeRun models.NodeRun

	err = json.Unmarshal(body, &nodeRun)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node run %s: %w", id, err)
	}

	return &nodeRun, nil
}

func (nr *NodeRunRepository) save(nodeRun *models.NodeRun) error {
	dir := path.Join(nr.root, "node_runs", nodeRun.RunID)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create node runs directory: %w", err)
	}

	if nodeRun.CreatedAt.IsZero() {
		nodeRun.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(nodeRun, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal node run %s: %w", nodeRun.ID, err)
	}

	return os.WriteFile(path.Join(dir, nodeRun.ID+".json"), data, 0600)
}
