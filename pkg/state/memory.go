package state

import (
	"context"
	"sync"

	"github.com/flowrun-io/flowrun/pkg/models"
)

type memoryRunState struct {
	status         models.RunStatus
	definition     *models.GraphDefinition
	completed      map[string]bool
	failed         map[string]string
	waiting        map[string]string
	nodeOutputs    map[string]map[string]any
	partialOutputs map[string]any
	resumeData     map[string]map[string]any
	runOutput      map[string]any
}

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*memoryRunState
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*memoryRunState)}
}

func (s *MemoryStore) InitRun(_ context.Context, runID string, def *models.GraphDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[runID] = &memoryRunState{
		status:         models.RunStatusPending,
		definition:     def,
		completed:      make(map[string]bool),
		failed:         make(map[string]string),
		waiting:        make(map[string]string),
		nodeOutputs:    make(map[string]map[string]any),
		partialOutputs: make(map[string]any),
		resumeData:     make(map[string]map[string]any),
	}

	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, runID string, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	run.status = status

	return nil
}

func (s *MemoryStore) GetStatus(_ context.Context, runID string) (models.RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return "", ErrRunStateNotFound
	}

	return run.status, nil
}

func (s *MemoryStore) MarkNodeStarted(_ context.Context, runID, nodeID string) error {
	return nil
}

func (s *MemoryStore) MarkNodeCompleted(_ context.Context, runID, nodeID string, output map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	run.completed[nodeID] = true
	run.nodeOutputs[nodeID] = output

	return nil
}

func (s *MemoryStore) MarkNodeFailed(_ context.Context, runID, nodeID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	run.failed[nodeID] = errorMessage

	return nil
}

func (s *MemoryStore) MarkNodeWaiting(_ context.Context, runID, nodeID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	run.waiting[nodeID] = reason

	return nil
}

func (s *MemoryStore) ClearNodeWaiting(_ context.Context, runID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	delete(run.waiting, nodeID)

	return nil
}

func (s *MemoryStore) CompletedNodes(_ context.Context, runID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunStateNotFound
	}

	completed := make(map[string]bool, len(run.completed))
	for nodeID := range run.completed {
		completed[nodeID] = true
	}

	return completed, nil
}

func (s *MemoryStore) NodeOutput(_ context.Context, runID, nodeID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunStateNotFound
	}

	return run.nodeOutputs[nodeID], nil
}

func (s *MemoryStore) SetRunOutput(_ context.Context, runID string, output map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	run.runOutput = output

	return nil
}

func (s *MemoryStore) GetRunOutput(_ context.Context, runID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunStateNotFound
	}

	if run.runOutput == nil {
		return map[string]any{}, nil
	}

	return run.runOutput, nil
}

func (s *MemoryStore) SetResumeData(_ context.Context, runID, nodeID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	run.resumeData[nodeID] = data

	return nil
}

func (s *MemoryStore) GetResumeData(_ context.Context, runID, nodeID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunStateNotFound
	}

	return run.resumeData[nodeID], nil
}

func (s *MemoryStore) ClearResumeData(_ context.Context, runID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	delete(run.resumeData, nodeID)

	return nil
}

func (s *MemoryStore) SetPartialOutputs(_ context.Context, runID string, outputs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunStateNotFound
	}

	for nodeID, output := range outputs {
		run.partialOutputs[nodeID] = output
	}

	return nil
}

func (s *MemoryStore) PartialOutputs(_ context.Context, runID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunStateNotFound
	}

	outputs := make(map[string]any, len(run.partialOutputs))
	for nodeID, output := range run.partialOutputs {
		outputs[nodeID] = output
	}

	return outputs, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
