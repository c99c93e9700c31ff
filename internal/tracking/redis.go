package tracking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "milkquality:tracking:"

// RedisRecorder keeps each run as a set of hashes and indexes the runs of an
// experiment in a sorted set scored by start sequence.
type RedisRecorder struct {
	client *redis.Client
}

func NewRedisRecorder(ctx context.Context, addr string, db int) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect tracking redis: %w", err)
	}
	return &RedisRecorder{client: client}, nil
}

func experimentsKey() string            { return redisPrefix + "experiments" }
func experimentRunsKey(n string) string { return redisPrefix + "experiment:" + n + ":runs" }
func runKey(id string) string           { return redisPrefix + "run:" + id }
func runParamsKey(id string) string     { return runKey(id) + ":params" }
func runMetricsKey(id string) string    { return runKey(id) + ":metrics" }
func runArtifactsKey(id string) string {
	return runKey(id) + ":artifacts"
}

func (r *RedisRecorder) StartExperiment(ctx context.Context, name string) error {
	return r.client.SAdd(ctx, experimentsKey(), name).Err()
}

func (r *RedisRecorder) StartRun(ctx context.Context, spec RunSpec) (string, error) {
	ok, err := r.client.SIsMember(ctx, experimentsKey(), spec.Experiment).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrExperimentNotFound
	}

	seq, err := r.client.Incr(ctx, redisPrefix+"seq").Result()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, runKey(id), map[string]any{
		"experiment": spec.Experiment,
		"name":       spec.Name,
		"parent_id":  spec.ParentID,
		"status":     StatusRunning,
		"seq":        seq,
		"started_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.ZAdd(ctx, experimentRunsKey(spec.Experiment), redis.Z{Score: float64(seq), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *RedisRecorder) LogParams(ctx context.Context, runID string, params map[string]string) error {
	if err := r.requireRun(ctx, runID); err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	values := make(map[string]any, len(params))
	for k, v := range params {
		values[k] = v
	}
	return r.client.HSet(ctx, runParamsKey(runID), values).Err()
}

func (r *RedisRecorder) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	if err := r.requireRun(ctx, runID); err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}
	values := make(map[string]any, len(metrics))
	for k, v := range metrics {
		values[k] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return r.client.HSet(ctx, runMetricsKey(runID), values).Err()
}

func (r *RedisRecorder) LogArtifact(ctx context.Context, runID, name, uri string) error {
	if err := r.requireRun(ctx, runID); err != nil {
		return err
	}
	return r.client.HSet(ctx, runArtifactsKey(runID), name, uri).Err()
}

func (r *RedisRecorder) EndRun(ctx context.Context, runID, status string) error {
	if err := r.requireRun(ctx, runID); err != nil {
		return err
	}
	return r.client.HSet(ctx, runKey(runID),
		"status", status,
		"ended_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
}

func (r *RedisRecorder) ListRuns(ctx context.Context, experiment string) ([]Run, error) {
	ok, err := r.client.SIsMember(ctx, experimentsKey(), experiment).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrExperimentNotFound
	}

	ids, err := r.client.ZRange(ctx, experimentRunsKey(experiment), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(ids))
	for _, id := range ids {
		run, err := r.loadRun(ctx, id)
		if errors.Is(err, ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}

func (r *RedisRecorder) requireRun(ctx context.Context, runID string) error {
	n, err := r.client.Exists(ctx, runKey(runID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *RedisRecorder) loadRun(ctx context.Context, id string) (Run, error) {
	pipe := r.client.Pipeline()
	fields := pipe.HGetAll(ctx, runKey(id))
	params := pipe.HGetAll(ctx, runParamsKey(id))
	metrics := pipe.HGetAll(ctx, runMetricsKey(id))
	artifacts := pipe.HGetAll(ctx, runArtifactsKey(id))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Run{}, err
	}

	f := fields.Val()
	if len(f) == 0 {
		return Run{}, ErrRunNotFound
	}

	seq, _ := strconv.ParseInt(f["seq"], 10, 64)
	run := newRun(RunSpec{Experiment: f["experiment"], Name: f["name"], ParentID: f["parent_id"]}, id, seq, time.Time{})
	run.Status = f["status"]
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, f["started_at"])
	if ended, ok := f["ended_at"]; ok {
		run.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
	}

	for k, v := range params.Val() {
		run.Params[k] = v
	}
	for k, v := range metrics.Val() {
		value, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Run{}, fmt.Errorf("run %s metric %s: %w", id, k, err)
		}
		run.Metrics[k] = value
	}
	for k, v := range artifacts.Val() {
		run.Artifacts[k] = v
	}
	return run, nil
}
