package clients

import (
	"context"
	"fmt"

	ws "paytrack/internal/transport/websocket"
)

// JobKind names the background job a notification refers to. It becomes the
// prefix of the message type and channel.
type JobKind string

const (
	JobExport JobKind = "export"
	JobImport JobKind = "import"
)

type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) NotifyJobProgress(
	ctx context.Context,
	kind JobKind,
	clientID string,
	jobID string,
	progress float64,
	stage string,
) error {
	if c.hub == nil || clientID == "" {
		return nil
	}

	data := map[string]any{
		"id":       jobID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	c.hub.Broadcast(clientID, &ws.Message{
		Type:    fmt.Sprintf("%s_progress", kind),
		Channel: fmt.Sprintf("%s_progress#%s", kind, clientID),
		Data:    data,
	})
	return nil
}

// NotifyJobComplete carries the result location of a finished job. url and
// filename are empty for jobs that produce no file.
func (c *WebSocketClient) NotifyJobComplete(
	ctx context.Context,
	kind JobKind,
	clientID string,
	jobID string,
	url string,
	filename string,
	summary map[string]any,
) error {
	if c.hub == nil || clientID == "" {
		return nil
	}

	data := map[string]any{"id": jobID}
	if url != "" {
		data["url"] = url
		data["filename"] = filename
	}
	for k, v := range summary {
		data[k] = v
	}

	c.hub.Broadcast(clientID, &ws.Message{
		Type:    fmt.Sprintf("%s_complete", kind),
		Channel: fmt.Sprintf("%s_complete#%s", kind, clientID),
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyJobFailed(ctx context.Context, kind JobKind, clientID, jobID, errMsg string) error {
	if c.hub == nil || clientID == "" {
		return nil
	}

	c.hub.Broadcast(clientID, &ws.Message{
		Type:    fmt.Sprintf("%s_failed", kind),
		Channel: fmt.Sprintf("%s_failed#%s", kind, clientID),
		Data: map[string]any{
			"id":      jobID,
			"message": errMsg,
		},
	})
	return nil
}
