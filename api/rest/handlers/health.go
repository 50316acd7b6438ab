package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/interfaces"
)

type PoolStatsProvider interface {
	Stats() interfaces.PoolStats
}

type StatusResponse struct {
	Status    string                    `json:"status"`
	AutoSync  bool                      `json:"autoSync"`
	Scheduler interfaces.SchedulerStats `json:"scheduler"`
	Pool      interfaces.PoolStats      `json:"pool"`
}

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports scheduler jobs and pooled sessions
func Status(scheduler interfaces.SyncScheduler, pool PoolStatsProvider, autoSync AutoSyncController) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := StatusResponse{
			Status:    "ok",
			Scheduler: scheduler.Stats(),
			Pool:      pool.Stats(),
		}
		if autoSync != nil {
			response.AutoSync = autoSync.IsActive()
		}
		c.JSON(http.StatusOK, response)
	}
}
