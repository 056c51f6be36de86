package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cubamarket/go-classifieds-backend/internal/http/middleware"
)

// subscriptionRequest is the POST /subscription/check body.
type subscriptionRequest struct {
	UserID int64 `json:"user_id"`
}

// CheckSubscription handles POST /subscription/check. It verifies that the
// given Telegram account is a member of the required channel. A missing
// user_id is rejected; a Bot API failure is reported as a server error that
// still carries the channel handle so the client can render its prompt.
func (h *Handlers) CheckSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}

	subscribed, err := h.subs.IsSubscribed(c.Request.Context(), req.UserID)
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Int64("telegram_id", req.UserID).Msg("subscription check failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"subscribed": false,
			"channel":    h.requiredChannel,
			"code":       ErrCodeInternal,
		})
		return
	}
	ok(c, http.StatusOK, gin.H{
		"subscribed": subscribed,
		"channel":    h.requiredChannel,
	})
}
