package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Response texts of the broadcast endpoint.
const (
	BroadcastSentText      = "Message sent to all rooms"
	BroadcastNoMessageText = "No message provided"
)

// textEntities reverts the escapes the sanitizer applies to plain text that
// cannot open markup. Angle brackets stay encoded.
var textEntities = strings.NewReplacer(
	"&amp;", "&",
	"&#34;", `"`,
	"&#39;", "'",
	"&#13;", "\r",
)

// BroadcastRequest is the operator announcement body. JSON and form
// encodings are both accepted.
type BroadcastRequest struct {
	Msg string `json:"msg" form:"msg"`
}

// BroadcastHandler relays operator announcements to every room.
type BroadcastHandler struct {
	hub    *core.Hub
	policy *bluemonday.Policy
	log    *zerolog.Logger
}

// NewBroadcastHandler creates a broadcast handler sanitizing with policy.
func NewBroadcastHandler(hub *core.Hub, policy *bluemonday.Policy, logger *zerolog.Logger) *BroadcastHandler {
	return &BroadcastHandler{hub: hub, policy: policy, log: logger}
}

// Broadcast sends the sanitized message from ServerBot to all rooms.
// POST /api/broadcast/
func (h *BroadcastHandler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBind(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid broadcast request")
	}

	// Markup-only messages sanitize to nothing and are rejected.
	text := strings.TrimSpace(textEntities.Replace(h.policy.Sanitize(req.Msg)))
	if req.Msg == "" || text == "" {
		c.String(http.StatusBadRequest, BroadcastNoMessageText)
		return
	}

	if err := h.hub.BroadcastAll(c.Request.Context(), text); err != nil {
		h.log.Error().Err(err).Msg("broadcast failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if subject, ok := c.Get(ContextKeySubject); ok {
		h.log.Info().Interface("subject", subject).Msg("operator broadcast")
	}
	c.String(http.StatusCreated, BroadcastSentText)
}
