package rest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"golang.org/x/net/websocket"

	"allin1/orchestrator/pkg/types"
)

// watchInterval is how often the watch stream polls graph status.
// watchHeartbeat is how often an idle stream still writes a frame, so a
// gone client surfaces as a write error instead of the poll loop running
// against a closed connection forever. Variables so tests can shorten them.
var (
	watchInterval  = time.Second
	watchHeartbeat = 15 * time.Second
)

// setupWatchWSRoute registers the read-only status watch stream. Unlike
// the session channel this endpoint never drives the graph; it only
// reports status transitions, so any number of watchers may observe one
// task graph concurrently.
func (s *Server) setupWatchWSRoute() {
	s.app.Get("/api/v1/tasks/:id/watch", adaptor.HTTPHandler(
		websocket.Handler(func(ws *websocket.Conn) {
			s.handleWatch(ws)
		}),
	))
}

// handleWatch handles a WebSocket connection for status watching.
func (s *Server) handleWatch(ws *websocket.Conn) {
	defer ws.Close()

	// The path format is /api/v1/tasks/:id/watch
	graphID := extractTaskID(ws.Request().URL.Path)
	uid := ws.Request().URL.Query().Get("user_id")

	if graphID == "" || uid == "" {
		sendWatchMessage(ws, WatchMessage{
			Type:      "error",
			Timestamp: time.Now().Format(time.RFC3339),
			Error:     "task ID and user_id are required",
		})
		return
	}

	ctx := context.Background()
	var last types.Status
	lastWrite := time.Now()

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		g, err := s.orch.Get(ctx, uid, graphID)
		if err != nil {
			sendWatchMessage(ws, WatchMessage{
				Type:      "error",
				TaskID:    graphID,
				Timestamp: time.Now().Format(time.RFC3339),
				Error:     err.Error(),
			})
			return
		}

		if g.Status != last {
			last = g.Status
			if err := sendWatchMessage(ws, WatchMessage{
				Type:      "status",
				TaskID:    graphID,
				Status:    string(g.Status),
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
			lastWrite = time.Now()
		} else if time.Since(lastWrite) >= watchHeartbeat {
			if err := sendWatchMessage(ws, WatchMessage{
				Type:      "heartbeat",
				TaskID:    graphID,
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
			lastWrite = time.Now()
		}

		if g.Status.Terminal() {
			return
		}
		<-ticker.C
	}
}

func sendWatchMessage(ws *websocket.Conn, msg WatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return websocket.Message.Send(ws, string(data))
}

// extractTaskID pulls the task graph ID out of a watch endpoint path.
func extractTaskID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// api / v1 / tasks / :id / watch
	if len(parts) == 5 && parts[2] == "tasks" && parts[4] == "watch" {
		return parts[3]
	}
	return ""
}
