// Package api exposes the moderation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bookstage/chatguard/internal/metrics"
	"github.com/bookstage/chatguard/internal/moderation"
	"github.com/bookstage/chatguard/internal/ratelimit"
)

// Error messages returned in the "error" field of failed responses.
const (
	MsgMissingFields   = "Missing required fields: content, userId"
	MsgInvalidJSON     = "Invalid JSON body"
	MsgContentTooLong  = "Content exceeds maximum length"
	MsgInvalidEncoding = "Content must be valid UTF-8"
	MsgRateLimited     = "Too many messages"
	MsgUnavailable     = "Moderation unavailable"
	MsgInternal        = "Internal server error"
)

// Moderator decides on a single message.
type Moderator interface {
	Moderate(ctx context.Context, req moderation.Request) (moderation.Result, error)
}

// Limiter throttles callers by identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// Rate limit headers set on throttled routes.
const (
	HeaderRateLimit          = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
)

// Handler serves the moderation endpoint.
type Handler struct {
	moderator Moderator
	limiter   Limiter // nil disables throttling
	rule      ratelimit.Rule
	timeout   time.Duration
}

// NewHandler creates a Handler. limiter may be nil; a zero timeout leaves the
// request context as is.
func NewHandler(moderator Moderator, limiter Limiter, rule ratelimit.Rule, timeout time.Duration) *Handler {
	return &Handler{
		moderator: moderator,
		limiter:   limiter,
		rule:      rule,
		timeout:   timeout,
	}
}

// ModerateMessage handles POST /moderate-message.
func (h *Handler) ModerateMessage(c *gin.Context) {
	var req moderation.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		// An empty body falls through to the missing-fields check.
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidJSON})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	if h.limiter != nil && h.rule.Limit > 0 && req.UserID != "" {
		// Limiter errors fail open; Allow already logs them.
		allowed, _ := h.limiter.Allow(ctx, req.UserID, h.rule)
		c.Header(HeaderRateLimit, strconv.Itoa(h.rule.Limit))
		if !allowed {
			c.Header(HeaderRateLimitRemaining, "0")
			metrics.ModerationRequests.WithLabelValues(metrics.OutcomeRateLimited).Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": MsgRateLimited})
			return
		}
		remaining, _ := h.limiter.Remaining(ctx, req.UserID, h.rule)
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(remaining))
	}

	result, err := h.moderator.Moderate(ctx, req)
	if err != nil {
		status, body := errorResponse(err)
		if status >= http.StatusInternalServerError {
			log.Printf("[api] moderate request_id=%s user=%s: %v", RequestID(c), req.UserID, err)
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// errorResponse maps a pipeline error to its HTTP status and body.
func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, moderation.ErrMissingFields):
		return http.StatusBadRequest, gin.H{"error": MsgMissingFields}
	case errors.Is(err, moderation.ErrContentTooLong):
		return http.StatusBadRequest, gin.H{"error": MsgContentTooLong}
	case errors.Is(err, moderation.ErrInvalidEncoding):
		return http.StatusBadRequest, gin.H{"error": MsgInvalidEncoding}
	case errors.Is(err, moderation.ErrModerationUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": MsgUnavailable, "details": err.Error()}
	default:
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return http.StatusInternalServerError, gin.H{"error": MsgInternal, "details": err.Error()}
	}
}

// Preflight answers CORS preflight requests that reach the router without an
// Origin header.
func Preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", allowHeadersValue)
	c.Status(http.StatusOK)
}

// Healthz reports liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
