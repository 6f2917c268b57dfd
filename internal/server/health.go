package server

import (
	"net/http"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const healthyStatus = "still here!"

// HealthResponse is the body of a successful health check. Times are Unix
// milliseconds, null when the event has not happened yet.
type HealthResponse struct {
	Status      string  `json:"status"`
	CurrentTime int64   `json:"currentTime"`
	LastBackup  *int64  `json:"lastBackup"`
	NextBackup  *int64  `json:"nextBackup"`
	LastAttempt *int64  `json:"lastAttempt"`
	LastError   *string `json:"lastError"`
	Running     bool    `json:"running"`
}

type HealthHandler struct {
	auth   Authorizer
	status StatusSource
	clock  clockwork.Clock
	logger logging.Logger
}

func (h *HealthHandler) Handle(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Header("Allow", http.MethodGet)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}
	if c.GetHeader("Origin") == "" {
		c.Header("Access-Control-Allow-Origin", "*")
	}

	if err := h.auth.Authorize(c.Request.Context()); err != nil {
		h.logger.Warn("Health check authorization failed", logging.F("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": "error retrieving auth.authorize"})
		return
	}

	snap := h.status.Snapshot()
	resp := HealthResponse{
		Status:      healthyStatus,
		CurrentTime: h.clock.Now().UnixMilli(),
		LastBackup:  millis(snap.LastBackup),
		NextBackup:  millis(snap.NextBackup),
		LastAttempt: millis(snap.LastAttempt),
		Running:     snap.Running,
	}
	if snap.LastError != "" {
		resp.LastError = &snap.LastError
	}
	c.JSON(http.StatusOK, resp)
}

func millis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
