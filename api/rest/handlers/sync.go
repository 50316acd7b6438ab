package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/scheduler"
)

const defaultLogLimit = 50

type AutoSyncController interface {
	IsActive() bool
	Restart(ctx context.Context) error
}

type StartSyncRequest struct {
	IntervalSeconds int `json:"intervalSeconds"`
}

type SyncJobResponse struct {
	AccountID string `json:"accountId"`
	Accepted  bool   `json:"accepted,omitempty"`
	Started   bool   `json:"started,omitempty"`
	Stopped   bool   `json:"stopped,omitempty"`
	Ran       bool   `json:"ran,omitempty"`
}

type SyncLogsResponse struct {
	AccountID string                    `json:"accountId"`
	Logs      []scheduler.LogEntry      `json:"logs"`
	Metrics   *scheduler.AccountMetrics `json:"metrics,omitempty"`
}

type SyncHandler struct {
	scheduler interfaces.SyncScheduler
	autoSync  AutoSyncController
	auditor   interfaces.ConsistencyAuditor
	monitor   *scheduler.Monitor
	log       logger.Logger
}

func NewSyncHandler(s interfaces.SyncScheduler, autoSync AutoSyncController, auditor interfaces.ConsistencyAuditor,
	monitor *scheduler.Monitor, log logger.Logger) *SyncHandler {
	return &SyncHandler{
		scheduler: s,
		autoSync:  autoSync,
		auditor:   auditor,
		monitor:   monitor,
		log:       log,
	}
}

func (h *SyncHandler) EnableSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.EnableSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		h.scheduler.EnableGlobal()
		c.JSON(http.StatusOK, gin.H{"enabled": true})
	}
}

func (h *SyncHandler) DisableSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.DisableSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		h.scheduler.DisableGlobal()
		c.JSON(http.StatusOK, gin.H{"enabled": false})
	}
}

// background runs fn after the request has been answered. The context keeps
// the caller's app source and trace but not its cancellation.
func (h *SyncHandler) background(ctx context.Context, operation string, fn func(ctx context.Context)) {
	parent := opentracing.SpanFromContext(ctx)
	detached := utils.WithCustomContext(context.Background(), utils.GetContext(ctx))

	go func() {
		defer tracing.RecoverAndLogToJaeger(h.log)

		var opts []opentracing.StartSpanOption
		if parent != nil {
			opts = append(opts, opentracing.FollowsFrom(parent.Context()))
		}
		span := opentracing.StartSpan(operation, opts...)
		defer span.Finish()
		fn(opentracing.ContextWithSpan(detached, span))
	}()
}

// RestartSync stops every job and runs auto-sync initialization again in the background
func (h *SyncHandler) RestartSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.RestartSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		h.background(ctx, "SyncHandler.RestartSync.async", func(ctx context.Context) {
			if err := h.autoSync.Restart(ctx); err != nil {
				tracing.TraceErr(opentracing.SpanFromContext(ctx), err)
				h.log.Errorf("auto-sync restart failed: %v", err)
				return
			}
			h.log.Infof("auto-sync restarted, %d active jobs", h.scheduler.Stats().ActiveJobs)
		})
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	}
}

func (h *SyncHandler) StartAccountSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.StartAccountSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accountID := c.Param("id")

		var req StartSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
				return
			}
		}
		if req.IntervalSeconds < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "intervalSeconds must not be negative"})
			return
		}

		var override *time.Duration
		if req.IntervalSeconds > 0 {
			interval := time.Duration(req.IntervalSeconds) * time.Second
			override = &interval
		}

		// the first tick runs inside Start, so the request does not wait for it
		h.background(ctx, "SyncHandler.StartAccountSync.async", func(ctx context.Context) {
			started, err := h.scheduler.Start(ctx, accountID, override)
			if err != nil {
				tracing.TraceErr(opentracing.SpanFromContext(ctx), err)
				h.log.Errorf("[%s] failed to start sync job: %v", accountID, err)
				return
			}
			if !started {
				h.log.Warnf("[%s] sync job not started: account not found, inactive or sync disabled", accountID)
			}
		})
		c.JSON(http.StatusAccepted, SyncJobResponse{AccountID: accountID, Accepted: true})
	}
}

func (h *SyncHandler) StopAccountSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.StopAccountSync")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accountID := c.Param("id")
		if !h.scheduler.Stop(accountID) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no sync job for account"})
			return
		}
		c.JSON(http.StatusOK, SyncJobResponse{AccountID: accountID, Stopped: true})
	}
}

// SyncAccountNow runs one tick outside the timer; ran is false when the tick was skipped
func (h *SyncHandler) SyncAccountNow() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.SyncAccountNow")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		accountID := c.Param("id")
		ran, err := h.scheduler.SyncNow(ctx, accountID)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, SyncJobResponse{AccountID: accountID, Ran: ran})
	}
}

func (h *SyncHandler) MaintainConsistency() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.MaintainConsistency")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.auditor.MaintainConsistency(ctx, c.Param("id"))
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *SyncHandler) AccountSyncLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("id")

		limit := defaultLogLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		c.JSON(http.StatusOK, SyncLogsResponse{
			AccountID: accountID,
			Logs:      h.monitor.Logs(accountID, limit),
			Metrics:   h.monitor.Metrics(accountID),
		})
	}
}

func (h *SyncHandler) SyncReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.monitor.Report())
	}
}
