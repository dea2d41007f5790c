// Package file provides file-based persistence for runs, node runs and
// graph versions. It backs local development and tests; production setups
// use the postgresql implementation.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowrun-io/flowrun/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root        string
	runRepo     *RunRepository
	nodeRunRepo *NodeRunRepository
	graphRepo   *GraphRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:        cleanRoot,
		runRepo:     NewRunRepository(cleanRoot),
		nodeRunRepo: NewNodeRunRepository(cleanRoot),
		graphRepo:   NewGraphRepository(cleanRoot),
	}
}

func (fp *Persistence) Runs() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) NodeRuns() persistence.NodeRunRepository {
	return fp.nodeRunRepo
}

func (fp *Persistence) Graphs() persistence.GraphRepository {
	return fp.graphRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence there is
// nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
