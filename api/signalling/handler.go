// Package signalling implements the HTTP signalling endpoint: a single
// SDP offer/answer exchange per call.
package signalling

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moshi-labs/moshi-voice/internal/commons"
)

// Caller is the one method this package needs from a webrtcsignal.Session:
// negotiate an SDP offer into an answer. Narrowed to an interface so tests
// can substitute a fake without standing up a real PeerConnection.
type Caller interface {
	Offer(offerSDP string) (answerSDP string, err error)
}

// SessionFactory builds one fully-wired session (its own detector, player,
// orchestrator and adapter set) per incoming call. Kept as an injected
// function so this package never constructs the adapter stack itself.
type SessionFactory func() Caller

// Handler serves the signalling HTTP surface.
type Handler struct {
	logger  commons.Logger
	newCall SessionFactory
}

// New constructs a Handler. newCall is called once per POST /call/new.
func New(logger commons.Logger, newCall SessionFactory) *Handler {
	return &Handler{logger: logger, newCall: newCall}
}

// Register attaches the signalling routes to engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.POST("/call/new", h.newCallHandler)
	engine.GET("/healthz", h.healthz)
}

type offerRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type answerResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// newCallHandler implements POST /call/new: invalid JSON -> 422,
// non-offer type -> 400, otherwise creates one orchestrator and returns
// the SDP answer.
func (h *Handler) newCallHandler(c *gin.Context) {
	var req offerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
		return
	}
	if req.Type != "offer" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be \"offer\""})
		return
	}

	session := h.newCall()
	answerSDP, err := session.Offer(req.SDP)
	if err != nil {
		h.logger.Errorw("signalling: failed to negotiate call", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to negotiate call"})
		return
	}

	c.JSON(http.StatusOK, answerResponse{SDP: answerSDP, Type: "answer"})
}

func (h *Handler) healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
