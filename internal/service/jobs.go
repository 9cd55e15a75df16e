package service

import (
	"context"
	"encoding/json"
	"time"

	"paytrack/internal/clients"

	"go.uber.org/zap"
)

// StatusCache keeps job statuses; implemented by clients.RedisClient.
type StatusCache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Notifier pushes job events to connected clients; implemented by
// clients.WebSocketClient.
type Notifier interface {
	NotifyJobProgress(ctx context.Context, kind clients.JobKind, clientID, jobID string, progress float64, stage string) error
	NotifyJobComplete(ctx context.Context, kind clients.JobKind, clientID, jobID, url, filename string, summary map[string]any) error
	NotifyJobFailed(ctx context.Context, kind clients.JobKind, clientID, jobID, errMsg string) error
}

type JobStatus struct {
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	ClientID string         `json:"client_id"`
	Filters  any            `json:"filters"`
	Progress float64        `json:"progress"`
	FileURL  *string        `json:"file_url"`
	Error    *string        `json:"error"`
	Summary  map[string]any `json:"summary,omitempty"`
	Created  time.Time      `json:"created_at"`
}

const (
	jobSetKey = "job_ids"
	jobTTL    = 20 * time.Minute
)

// jobTracker records job progress in the status cache and mirrors it to the
// notifier. Failures are logged and never stop the job.
type jobTracker struct {
	cache  StatusCache
	notify Notifier
	log    *zap.Logger
}

func (t *jobTracker) save(ctx context.Context, st *JobStatus) {
	if t.cache == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		t.log.Warn("encode job status", zap.String("job", st.Key), zap.Error(err))
		return
	}
	if err := t.cache.Set(ctx, st.Key, string(data), jobTTL); err != nil {
		t.log.Warn("save job status", zap.String("job", st.Key), zap.Error(err))
		return
	}
	if err := t.cache.SAdd(ctx, jobSetKey, st.Key); err != nil {
		t.log.Warn("index job status", zap.String("job", st.Key), zap.Error(err))
	}
}

func (t *jobTracker) progress(ctx context.Context, kind clients.JobKind, st *JobStatus, progress float64, stage string) {
	st.Progress = progress
	t.save(ctx, st)
	if t.notify != nil {
		_ = t.notify.NotifyJobProgress(ctx, kind, st.ClientID, st.Key, progress, stage)
	}
}

func (t *jobTracker) complete(ctx context.Context, kind clients.JobKind, st *JobStatus, url, filename string) {
	st.Progress = 100
	if url != "" {
		st.FileURL = &url
	}
	t.save(ctx, st)
	if t.notify != nil {
		_ = t.notify.NotifyJobProgress(ctx, kind, st.ClientID, st.Key, 100, "ready")
		_ = t.notify.NotifyJobComplete(ctx, kind, st.ClientID, st.Key, url, filename, st.Summary)
	}
}

func (t *jobTracker) fail(ctx context.Context, kind clients.JobKind, st *JobStatus, err error) {
	msg := err.Error()
	t.log.Error("job failed", zap.String("job", st.Key), zap.String("type", st.Type), zap.Error(err))
	st.Error = &msg
	st.Progress = 100
	t.save(ctx, st)
	if t.notify != nil {
		_ = t.notify.NotifyJobFailed(ctx, kind, st.ClientID, st.Key, msg)
	}
}
