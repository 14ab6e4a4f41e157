package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bookstage/chatguard/internal/moderation"
)

// StrikeAdmin is the part of the strike store the admin routes use.
type StrikeAdmin interface {
	GetUserStrike(ctx context.Context, userID string) (moderation.UserStrike, error)
	Lift(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

// InfractionCounter counts recorded infractions for a user.
type InfractionCounter interface {
	CountRecent(ctx context.Context, userID string, window time.Duration) (int, error)
}

// DefaultRecentWindow is the look-back window for recentInfractions.
const DefaultRecentWindow = 24 * time.Hour

// StrikeStatus is the body of GET /admin/users/:userId/strikes.
type StrikeStatus struct {
	UserID            string     `json:"userId"`
	StrikeCount       int        `json:"strikeCount"`
	LastStrikeAt      *time.Time `json:"lastStrikeAt,omitempty"`
	SuspensionUntil   *time.Time `json:"suspensionUntil,omitempty"`
	Suspended         bool       `json:"suspended"`
	RecentInfractions int        `json:"recentInfractions"`
}

// AdminHandler serves moderator tooling: inspecting a user's strikes, lifting
// a suspension and clearing a record.
type AdminHandler struct {
	strikes     StrikeAdmin
	infractions InfractionCounter
	window      time.Duration
	now         func() time.Time
}

// NewAdminHandler creates an AdminHandler. A non-positive window falls back to
// DefaultRecentWindow.
func NewAdminHandler(strikes StrikeAdmin, infractions InfractionCounter, window time.Duration) *AdminHandler {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &AdminHandler{
		strikes:     strikes,
		infractions: infractions,
		window:      window,
		now:         time.Now,
	}
}

// Register mounts the admin routes under /admin behind HTTP basic auth.
func (a *AdminHandler) Register(r gin.IRouter, accounts gin.Accounts) {
	g := r.Group("/admin", gin.BasicAuth(accounts))
	g.GET("/users/:userId/strikes", a.GetStrikes)
	g.DELETE("/users/:userId/suspension", a.LiftSuspension)
	g.DELETE("/users/:userId/strikes", a.ResetStrikes)
}

// GetStrikes handles GET /admin/users/:userId/strikes.
func (a *AdminHandler) GetStrikes(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")

	rec, err := a.strikes.GetUserStrike(ctx, userID)
	if err != nil {
		a.fail(c, "get strikes", userID, err)
		return
	}
	recent, err := a.infractions.CountRecent(ctx, userID, a.window)
	if err != nil {
		a.fail(c, "count infractions", userID, err)
		return
	}

	c.JSON(http.StatusOK, StrikeStatus{
		UserID:            userID,
		StrikeCount:       rec.StrikeCount,
		LastStrikeAt:      rec.LastStrikeAt,
		SuspensionUntil:   rec.SuspensionUntil,
		Suspended:         rec.SuspendedAt(a.now()),
		RecentInfractions: recent,
	})
}

// LiftSuspension handles DELETE /admin/users/:userId/suspension. The strike
// count is kept.
func (a *AdminHandler) LiftSuspension(c *gin.Context) {
	userID := c.Param("userId")
	if err := a.strikes.Lift(c.Request.Context(), userID); err != nil {
		a.fail(c, "lift", userID, err)
		return
	}
	log.Printf("[admin] suspension lifted user=%s request_id=%s", userID, RequestID(c))
	c.Status(http.StatusNoContent)
}

// ResetStrikes handles DELETE /admin/users/:userId/strikes.
func (a *AdminHandler) ResetStrikes(c *gin.Context) {
	userID := c.Param("userId")
	if err := a.strikes.Reset(c.Request.Context(), userID); err != nil {
		a.fail(c, "reset", userID, err)
		return
	}
	log.Printf("[admin] strikes reset user=%s request_id=%s", userID, RequestID(c))
	c.Status(http.StatusNoContent)
}

func (a *AdminHandler) fail(c *gin.Context, op, userID string, err error) {
	log.Printf("[admin] %s user=%s request_id=%s: %v", op, userID, RequestID(c), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternal, "details": err.Error()})
}
