package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookstage/chatguard/internal/metrics"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

var allowHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

var allowHeadersValue = strings.Join(allowHeaders, ", ")

// NewRouter builds the gin engine with every route and middleware attached.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Logger(),
		gin.CustomRecovery(recovered),
		requestID(),
		cors.New(cors.Config{
			AllowAllOrigins:           true,
			AllowMethods:              []string{http.MethodPost, http.MethodGet, http.MethodOptions},
			AllowHeaders:              allowHeaders,
			ExposeHeaders:             []string{HeaderRequestID, HeaderRateLimit, HeaderRateLimitRemaining},
			OptionsResponseStatusCode: http.StatusOK,
		}),
	)

	r.POST("/moderate-message", h.ModerateMessage)
	r.POST("/", h.ModerateMessage)
	r.OPTIONS("/moderate-message", Preflight)
	r.OPTIONS("/", Preflight)

	r.GET("/healthz", Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

// recovered turns a panic anywhere in the chain into a 500 JSON response.
func recovered(c *gin.Context, err any) {
	log.Printf("[api] panic request_id=%s: %v", RequestID(c), err)
	metrics.ModerationRequests.WithLabelValues(metrics.OutcomeError).Inc()
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   MsgInternal,
		"details": fmt.Sprint(err),
	})
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestID returns the correlation id assigned to the request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
