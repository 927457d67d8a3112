// Package api serves a read-only JSON view of transfers and tasks.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"media_bot/internal/model"
	"media_bot/internal/throughput"
)

// Tracker exposes transfer throughput.
type Tracker interface {
	Snapshot() []throughput.TransferSnapshot
	Global() throughput.GlobalSnapshot
}

// Tasks lists running task nodes.
type Tasks interface {
	Running() []*model.TaskNode
}

// TaskResponse is the JSON view of a task node.
type TaskResponse struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	ChatID        int64     `json:"chat_id"`
	DestinationID int64     `json:"destination_id,omitempty"`
	Status        string    `json:"status"`
	Running       bool      `json:"running"`
	Success       int       `json:"success"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	CreatedAt     time.Time `json:"created_at"`
}

// Handler serves the status endpoints.
type Handler struct {
	tracker Tracker
	tasks   Tasks
	log     *slog.Logger
}

// New creates a Handler.
func New(tracker Tracker, tasks Tasks, log *slog.Logger) *Handler {
	return &Handler{tracker: tracker, tasks: tasks, log: log}
}

// Router builds the gin engine with all routes.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog())

	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	r.Use(cors.New(cfg))

	r.GET("/healthz", h.health)
	v := r.Group("/api")
	{
		v.GET("/downloads", h.downloads)
		v.GET("/speed", h.speed)
		v.GET("/tasks", h.listTasks)
	}
	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) downloads(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}

func (h *Handler) speed(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Global())
}

func (h *Handler) listTasks(c *gin.Context) {
	nodes := h.tasks.Running()
	out := make([]TaskResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, TaskResponse{
			ID:            n.ID,
			Kind:          string(n.Kind),
			ChatID:        n.ChatID,
			DestinationID: n.DestinationID,
			Status:        n.Status(),
			Running:       n.IsRunning(),
			Success:       n.Count(model.StatusSuccess),
			Failed:        n.Count(model.StatusFailed),
			Skipped:       n.Count(model.StatusSkipped),
			CreatedAt:     n.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
