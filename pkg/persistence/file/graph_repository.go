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
	"strings"
	"time"

	"github.com/flowrun-io/flowrun/pkg/dag"
	"github.com/flowrun-io/flowrun/pkg/models"
	"github.com/flowrun-io/flowrun/pkg/persistence"
)

// GraphRepository stores graph versions as JSON files under <root>/graphs.
type GraphRepository struct {
	root string
}

// NewGraphRepository creates a new graph version repository.
func NewGraphRepository(root string) *GraphRepository {
	return &GraphRepository{root: root}
}

func (gr *GraphRepository) SaveVersion(_ context.Context, version *models.GraphVersion) error {
	err := os.MkdirAll(path.Join(gr.root, "graphs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create graphs directory: %w", err)
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph version %s: %w", version.ID, err)
	}

	filePath := path.Join(gr.root, "graphs", version.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

func (gr *GraphRepository) VersionByID(_ context.Context, id string) (*models.GraphVersion, error) {
	version, err := gr.load(id)
	if err != nil {
		return nil, err
	}

	if version == nil {
		return nil, &persistence.GraphError{Op: "VersionByID", VersionID: id, Err: persistence.ErrGraphVersionNotFound}
	}

	return version, nil
}

// PublishedVersion returns the most recently published version of a graph.
func (gr *GraphRepository) PublishedVersion(ctx context.Context, graphID string) (*models.GraphVersion, error) {
	versions, err := gr.VersionsByGraphID(ctx, graphID)
	if err != nil {
		return nil, err
	}

	var published *models.GraphVersion

	for _, version := range versions {
		if version.Status != models.GraphVersionStatusPublished {
			continue
		}

		if published == nil || (version.PublishedAt != nil && published.PublishedAt != nil && version.PublishedAt.After(*published.PublishedAt)) {
			published = version
		}
	}

	if published == nil {
		return nil, &persistence.GraphError{Op: "PublishedVersion", GraphID: graphID, Err: persistence.ErrPublishedVersionNotFound}
	}

	return published, nil
}

func (gr *GraphRepository) VersionsByGraphID(_ context.Context, graphID string) ([]*models.GraphVersion, error) {
	root := os.DirFS(path.Join(gr.root, "graphs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list graph version files: %w", err)
	}

	versions := make([]*models.GraphVersion, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		version, err := gr.load(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if version != nil && version.GraphID == graphID {
			versions = append(versions, version)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})

	return versions, nil
}

func (gr *GraphRepository) DeleteVersion(_ context.Context, id string) error {
	filePath := path.Join(gr.root, "graphs", id+".json")

	err := os.Remove(filePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete graph version %s: %w", id, err)
	}

	return nil
}

func (gr *GraphRepository) load(id string) (*models.GraphVersion, error) {
	filePath := filepath.Clean(path.Join(gr.root, "graphs", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read graph version file: %w", err)
	}

	// Files on disk can be edited by hand; check the definition document
	// against the schema before it reaches the domain model.
	var envelope struct {
		Definition json.RawMessage `json:"definition"`
	}

	err = json.Unmarshal(body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph version %s: %w", id, err)
	}

	if len(envelope.Definition) > 0 && string(envelope.Definition) != "null" {
		violations := dag.ValidateDocument(envelope.Definition)
		if len(violations) > 0 {
			return nil, fmt.Errorf("graph version %s has an invalid definition: %s", id, strings.Join(violations, "; "))
		}
	}

	var version models.GraphVersion

	err = json.Unmarshal(body, &version)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph version %s: %w", id, err)
	}

	return &version, nil
}
