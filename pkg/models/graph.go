package models

import "time"

// EdgeType classifies how an edge participates in routing. The zero value
// means the edge is followed on success only.
type EdgeType string

const (
	EdgeTypeSuccess EdgeType = "success"
	EdgeTypeError   EdgeType = "error"
	EdgeTypeAlways  EdgeType = "always"
)

// GraphNode is a node descriptor inside a graph definition.
type GraphNode struct {
	ID        string         `json:"id"     validate:"required"`
	Type      string         `json:"type"   validate:"required"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// GraphEdge is a typed edge between two node ids.
type GraphEdge struct {
	ID     string   `json:"id"`
	Source string   `json:"source" validate:"required"`
	Target string   `json:"target" validate:"required"`
	Type   EdgeType `json:"type,omitempty"`
	Label  string   `json:"label,omitempty"`
}

// IsError reports whether the edge is followed only after a failure.
func (e *GraphEdge) IsError() bool {
	return e.Type == EdgeTypeError
}

// IsAlways reports whether the edge is followed regardless of outcome.
func (e *GraphEdge) IsAlways() bool {
	return e.Type == EdgeTypeAlways
}

// IsSuccess reports whether the edge is a success edge (the default).
func (e *GraphEdge) IsSuccess() bool {
	return e.Type == "" || e.Type == EdgeTypeSuccess
}

// GraphDefinition is the immutable node/edge set of one graph version.
// The engine only reads it; authoring lives elsewhere.
type GraphDefinition struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// NodeByID returns the node descriptor with the given id, or nil.
func (d *GraphDefinition) NodeByID(id string) *GraphNode {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// GraphVersionStatus represents the publication state of a graph version.
type GraphVersionStatus string

const (
	GraphVersionStatusDraft     GraphVersionStatus = "draft"
	GraphVersionStatusPublished GraphVersionStatus = "published"
)

// GraphVersion is a versioned, immutable graph definition plus optional
// pinned sample outputs. A pinned output short-circuits handler invocation
// for that node during a run.
type GraphVersion struct {
	ID            string             `json:"id"`
	GraphID       string             `json:"graph_id"   validate:"required"`
	Version       string             `json:"version"    validate:"required"`
	Status        GraphVersionStatus `json:"status"`
	Definition    *GraphDefinition   `json:"definition" validate:"required"`
	PinnedOutputs map[string]any     `json:"pinned_outputs,omitempty"`
	Owner         string             `json:"owner"`
	CreatedAt     time.Time          `json:"created_at"`
	PublishedAt   *time.Time         `json:"published_at,omitempty"`
}
