package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	er "github.com/inboundly/mailcore/internal/errors"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/internal/utils"
	"github.com/inboundly/mailcore/services"
)

type ThreadsHandler struct {
	services     *services.Services
	repositories *repository.Repositories
}

func NewThreadsHandler(s *services.Services, repos *repository.Repositories) *ThreadsHandler {
	return &ThreadsHandler{
		services:     s,
		repositories: repos,
	}
}

// GetThread returns the merged thread view, messages ordered by position.
func (h *ThreadsHandler) GetThread() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "ThreadsHandler.GetThread")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIdFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
			return
		}

		view, err := h.services.ThreadingService.GetThread(ctx, userID, c.Param("id"))
		if err != nil {
			if errors.Is(err, er.ErrThreadNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, view)
	}
}

// ListThreads pages through an account's threads, most recent activity first.
func (h *ThreadsHandler) ListThreads() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "ThreadsHandler.ListThreads")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIdFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		threads, err := h.repositories.EmailThreadRepository.ListByUser(ctx, userID, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"threads": threads})
	}
}
