package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/inboundly/mailcore/config"
	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/models"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/internal/tracing"
	"github.com/inboundly/mailcore/internal/utils"
	"github.com/inboundly/mailcore/services"
	"github.com/inboundly/mailcore/services/storage"
)

type MessagesHandler struct {
	services        *services.Services
	repositories    *repository.Repositories
	subjectFallback bool
}

func NewMessagesHandler(cfg *config.Config, s *services.Services, repos *repository.Repositories) *MessagesHandler {
	return &MessagesHandler{
		services:        s,
		repositories:    repos,
		subjectFallback: cfg.ThreadingConfig.SubjectFallback,
	}
}

// IngestInbound stores a received message and resolves its thread.
func (h *MessagesHandler) IngestInbound() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "MessagesHandler.IngestInbound")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIdFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
			return
		}

		var payload dto.InboundMessage
		if err := c.ShouldBindJSON(&payload); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		receivedAt := payload.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = utils.Now()
		}

		email := &models.InboundEmail{
			ID:            utils.GenerateNanoIDWithPrefix("iem", 24),
			UserID:        userID,
			MessageID:     utils.NormalizeMessageID(payload.MessageID),
			InReplyTo:     utils.NormalizeMessageID(payload.InReplyTo),
			References:    pq.StringArray(payload.References),
			Subject:       payload.Subject,
			FromAddress:   payload.FromAddress,
			ToAddresses:   pq.StringArray(payload.ToAddresses),
			CcAddresses:   pq.StringArray(payload.CcAddresses),
			ReceivedAt:    receivedAt,
			RawStorageKey: payload.RawStorageKey,
			RawContent:    payload.RawContent,
			RawHeaders:    models.JSONMap(payload.RawHeaders),
		}

		// Offload raw content to the blob store when one is configured; the
		// inline copy stays as fallback for stores that lag.
		if h.services.StorageService != nil && payload.RawContent != "" && payload.RawStorageKey == "" {
			key := storage.RawMessageKey(userID, email.ID)
			if err := h.services.StorageService.Upload(ctx, key, []byte(payload.RawContent), "message/rfc822"); err != nil {
				tracing.TraceErr(span, err)
			} else {
				email.RawStorageKey = key
			}
		}

		if _, err := h.repositories.InboundEmailRepository.Create(ctx, email); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resolution, err := h.services.ThreadingService.ResolveInbound(ctx, email, interfaces.ResolveOptions{SubjectFallback: h.subjectFallback})
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": email.ID, "resolution": resolution})
	}
}

// IngestOutbound records a completed send and resolves its thread.
func (h *MessagesHandler) IngestOutbound() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "MessagesHandler.IngestOutbound")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIdFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
			return
		}

		var payload dto.OutboundMessage
		if err := c.ShouldBindJSON(&payload); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sentAt := payload.SentAt
		if sentAt.IsZero() {
			sentAt = utils.Now()
		}

		email := &models.OutboundEmail{
			UserID:      userID,
			DomainName:  utils.ExtractDomainFromEmail(payload.FromAddress),
			MessageID:   utils.NormalizeMessageID(payload.MessageID),
			InReplyTo:   utils.NormalizeMessageID(payload.InReplyTo),
			References:  pq.StringArray(payload.References),
			Subject:     payload.Subject,
			FromAddress: payload.FromAddress,
			ToAddresses: pq.StringArray(payload.ToAddresses),
			CcAddresses: pq.StringArray(payload.CcAddresses),
			SentAt:      sentAt,
		}

		if _, err := h.repositories.OutboundEmailRepository.Create(ctx, email); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resolution, err := h.services.ThreadingService.ResolveOutbound(ctx, email, interfaces.ResolveOptions{SubjectFallback: h.subjectFallback})
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": email.ID, "resolution": resolution})
	}
}

// ClassifyDsn takes a raw message body and runs DSN classification and bounce
// attribution. The body is the message itself, not a JSON wrapper.
func (h *MessagesHandler) ClassifyDsn() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "MessagesHandler.ClassifyDsn")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIdFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
			return
		}

		raw, err := c.GetRawData()
		if err != nil || len(raw) == 0 {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "raw message body is required"})
			return
		}

		attribution, err := h.services.DSNService.ClassifyAndCorrelate(ctx, userID, raw)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, attribution)
	}
}

// Backfill runs the batch re-resolution synchronously and reports counters.
func (h *MessagesHandler) Backfill() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "MessagesHandler.Backfill")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req dto.BackfillRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.UserID == "" {
			req.UserID = utils.GetUserIdFromContext(ctx)
		}

		result, err := h.services.BackfillService.Run(ctx, req)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// GetRawMessage streams the stored raw content of an inbound message,
// preferring the blob store copy over the inline fallback.
func (h *MessagesHandler) GetRawMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "MessagesHandler.GetRawMessage")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		userID := utils.GetUserIdFromContext(ctx)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
			return
		}

		email, err := h.repositories.InboundEmailRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if email == nil || email.UserID != userID {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}

		if h.services.StorageService != nil && email.RawStorageKey != "" {
			raw, err := h.services.StorageService.Download(ctx, email.RawStorageKey)
			if err == nil {
				c.Data(http.StatusOK, "message/rfc822", raw)
				return
			}
			// Blob store miss falls through to the inline copy
			tracing.TraceErr(span, err)
		}

		if email.RawContent != "" {
			c.Data(http.StatusOK, "message/rfc822", []byte(email.RawContent))
			return
		}

		c.JSON(http.StatusNotFound, gin.H{"error": "raw content not stored"})
	}
}
