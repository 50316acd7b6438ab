package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/tracing"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, mailsync_errors.ErrAccountNotFound),
		errors.Is(err, mailsync_errors.ErrFolderNotFound),
		errors.Is(err, mailsync_errors.ErrSyncJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, mailsync_errors.ErrInvalidAccountConfig),
		errors.Is(err, mailsync_errors.ErrAccountInactive),
		errors.Is(err, mailsync_errors.ErrMalformedMessage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mailsync_errors.ErrPoolExhausted),
		errors.Is(err, mailsync_errors.ErrPoolClosed),
		errors.Is(err, mailsync_errors.ErrFolderLockTimeout),
		errors.Is(err, mailsync_errors.ErrNotConnected),
		errors.Is(err, mailsync_errors.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	c.JSON(statusForError(err), ErrorResponse{Error: err.Error()})
}
