package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowrun-io/flowrun/pkg/models"
)

// stateTTL bounds the retention of live run state independently of the
// durable record.
const stateTTL = 24 * time.Hour

// RedisStore implements Store on top of Redis hashes. Complex values are
// JSON-encoded per hash field so concurrent writers never clobber each
// other's nodes.
type RedisStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, logger *slog.Logger, opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis state store", "addr", opts.Addr, "db", opts.DB)

	return &RedisStore{
		client: client,
		logger: logger.With("module", "state_store"),
	}, nil
}

func runKey(runID string) string            { return "run:" + runID }
func completedKey(runID string) string      { return "run:" + runID + ":completed_nodes" }
func failedKey(runID string) string         { return "run:" + runID + ":failed_nodes" }
func waitingKey(runID string) string        { return "run:" + runID + ":waiting_nodes" }
func currentKey(runID string) string        { return "run:" + runID + ":current_nodes" }
func nodeOutputsKey(runID string) string    { return "run:" + runID + ":node_outputs" }
func partialOutputsKey(runID string) string { return "run:" + runID + ":partial_outputs" }
func resumeDataKey(runID string) string     { return "run:" + runID + ":resume_data" }
func runOutputKey(runID string) string      { return "run_output:" + runID }

func (s *RedisStore) InitRun(ctx context.Context, runID string, def *models.GraphDefinition) error {
	definitionJSON, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal graph definition: %w", err)
	}

	key := runKey(runID)

	err = s.client.HSet(ctx, key,
		"status", string(models.RunStatusPending),
		"definition", definitionJSON,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to init run state: %w", err)
	}

	return s.client.Expire(ctx, key, stateTTL).Err()
}

func (s *RedisStore) SetStatus(ctx context.Context, runID string, status models.RunStatus) error {
	err := s.client.HSet(ctx, runKey(runID), "status", string(status)).Err()
	if err != nil {
		return fmt.Errorf("failed to set run status: %w", err)
	}

	return nil
}

func (s *RedisStore) GetStatus(ctx context.Context, runID string) (models.RunStatus, error) {
	status, err := s.client.HGet(ctx, runKey(runID), "status").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRunStateNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to get run status: %w", err)
	}

	return models.RunStatus(status), nil
}

func (s *RedisStore) MarkNodeStarted(ctx context.Context, runID, nodeID string) error {
	return s.hashSet(ctx, currentKey(runID), nodeID, strconv.FormatInt(time.Now().UnixMilli(), 10))
}

func (s *RedisStore) MarkNodeCompleted(ctx context.Context, runID, nodeID string, output map[string]any) error {
	s.client.HDel(ctx, currentKey(runID), nodeID)

	err := s.hashSet(ctx, completedKey(runID), nodeID, strconv.FormatInt(time.Now().UnixMilli(), 10))
	if err != nil {
		return err
	}

	return s.hashSetJSON(ctx, nodeOutputsKey(runID), nodeID, output)
}

func (s *RedisStore) MarkNodeFailed(ctx context.Context, runID, nodeID, errorMessage string) error {
	s.client.HDel(ctx, currentKey(runID), nodeID)

	return s.hashSet(ctx, failedKey(runID), nodeID, errorMessage)
}

func (s *RedisStore) MarkNodeWaiting(ctx context.Context, runID, nodeID, reason string) error {
	s.client.HDel(ctx, currentKey(runID), nodeID)

	return s.hashSet(ctx, waitingKey(runID), nodeID, reason)
}

func (s *RedisStore) ClearNodeWaiting(ctx context.Context, runID, nodeID string) error {
	err := s.client.HDel(ctx, waitingKey(runID), nodeID).Err()
	if err != nil {
		return fmt.Errorf("failed to clear waiting marker: %w", err)
	}

	return nil
}

func (s *RedisStore) CompletedNodes(ctx context.Context, runID string) (map[string]bool, error) {
	fields, err := s.client.HKeys(ctx, completedKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list completed nodes: %w", err)
	}

	completed := make(map[string]bool, len(fields))
	for _, nodeID := range fields {
		completed[nodeID] = true
	}

	return completed, nil
}

func (s *RedisStore) NodeOutput(ctx context.Context, runID, nodeID string) (map[string]any, error) {
	return s.hashGetJSON(ctx, nodeOutputsKey(runID), nodeID)
}

func (s *RedisStore) SetRunOutput(ctx context.Context, runID string, output map[string]any) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal run output: %w", err)
	}

	err = s.client.Set(ctx, runOutputKey(runID), payload, stateTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set run output: %w", err)
	}

	return nil
}

func (s *RedisStore) GetRunOutput(ctx context.Context, runID string) (map[string]any, error) {
	payload, err := s.client.Get(ctx, runOutputKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]any{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get run output: %w", err)
	}

	var output map[string]any

	err = json.Unmarshal(payload, &output)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run output: %w", err)
	}

	return output, nil
}

func (s *RedisStore) SetResumeData(ctx context.Context, runID, nodeID string, data map[string]any) error {
	return s.hashSetJSON(ctx, resumeDataKey(runID), nodeID, data)
}

func (s *RedisStore) GetResumeData(ctx context.Context, runID, nodeID string) (map[string]any, error) {
	return s.hashGetJSON(ctx, resumeDataKey(runID), nodeID)
}

func (s *RedisStore) ClearResumeData(ctx context.Context, runID, nodeID string) error {
	err := s.client.HDel(ctx, resumeDataKey(runID), nodeID).Err()
	if err != nil {
		return fmt.Errorf("failed to clear resume data: %w", err)
	}

	return nil
}

func (s *RedisStore) SetPartialOutputs(ctx context.Context, runID string, outputs map[string]any) error {
	for nodeID, output := range outputs {
		err := s.hashSetJSON(ctx, partialOutputsKey(runID), nodeID, output)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *RedisStore) PartialOutputs(ctx context.Context, runID string) (map[string]any, error) {
	fields, err := s.client.HGetAll(ctx, partialOutputsKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get partial outputs: %w", err)
	}

	outputs := make(map[string]any, len(fields))

	for nodeID, payload := range fields {
		var value any

		err = json.Unmarshal([]byte(payload), &value)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal partial output for node %s: %w", nodeID, err)
		}

		outputs[nodeID] = value
	}

	return outputs, nil
}

func (s *RedisStore) Cleanup(ctx context.Context, runID string) error {
	keys := []string{
		runKey(runID),
		completedKey(runID),
		failedKey(runID),
		waitingKey(runID),
		currentKey(runID),
		nodeOutputsKey(runID),
		partialOutputsKey(runID),
		resumeDataKey(runID),
		runOutputKey(runID),
	}

	err := s.client.Del(ctx, keys...).Err()
	if err != nil {
		return fmt.Errorf("failed to cleanup run state: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) hashSet(ctx context.Context, key, field, value string) error {
	err := s.client.HSet(ctx, key, field, value).Err()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return s.client.Expire(ctx, key, stateTTL).Err()
}

func (s *RedisStore) hashSetJSON(ctx context.Context, key, field string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}

	return s.hashSet(ctx, key, field, string(payload))
}

func (s *RedisStore) hashGetJSON(ctx context.Context, key, field string) (map[string]any, error) {
	payload, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var value map[string]any

	err = json.Unmarshal([]byte(payload), &value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal value from %s: %w", key, err)
	}

	return value, nil
}
