package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/internal/notify"
	"presentos/internal/orchestrator"
	"presentos/internal/speech"
	"presentos/pkg/logger"
)

const maxAudioBytes = 10 << 20

// Orchestrator 由 orchestrator.Orchestrator 实现
type Orchestrator interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Reply, error)
	Balance(ctx context.Context) (model.ExperienceBalance, error)
	ActiveGoal(ctx context.Context) (*model.Goal, error)
}

// Notifications 由 notify.Queue 实现
type Notifications interface {
	List(ctx context.Context, f model.NotificationFilter) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int, error)
	UnreadCount(ctx context.Context) (int, error)
}

type Handler struct {
	orch        Orchestrator
	notes       Notifications
	transcriber speech.Transcriber
	speaker     speech.Speaker
	logger      *zap.Logger
}

func NewHandler(orch Orchestrator, notes Notifications, transcriber speech.Transcriber, speaker speech.Speaker, logger *zap.Logger) *Handler {
	return &Handler{
		orch:        orch,
		notes:       notes,
		transcriber: transcriber,
		speaker:     speaker,
		logger:      logger,
	}
}

type chatRequest struct {
	Text    string `json:"text" binding:"required"`
	Channel string `json:"channel"`
	Speaker string `json:"speaker"`
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	channel, err := model.ParseChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	speaker := req.Speaker
	if speaker == "" {
		speaker = c.GetString(ctxSubject)
	}

	reply, err := h.orch.Handle(c.Request.Context(), orchestrator.Request{
		Text:    req.Text,
		Channel: channel,
		Speaker: speaker,
	})
	if err != nil {
		h.orchestrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type voiceReply struct {
	orchestrator.Reply
	Transcript  string  `json:"transcript"`
	Confidence  float64 `json:"transcript_confidence"`
	Audio       []byte  `json:"audio,omitempty"`
	AudioFormat string  `json:"audio_format,omitempty"`
}

// Voice handles POST /v1/voice; body is raw audio. ?speak=1 adds synthesized audio.
func (h *Handler) Voice(c *gin.Context) {
	if h.transcriber == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "voice not configured"})
		return
	}
	audio, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read audio"})
		return
	}
	if len(audio) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio is required"})
		return
	}

	ctx := c.Request.Context()
	transcript, err := h.transcriber.Transcribe(ctx, audio, c.ContentType())
	if err != nil {
		logger.WithTrace(ctx, h.logger).Warn("transcription failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription failed"})
		return
	}

	// 低置信度的转写同样交给意图解析，由其决定是否追问
	reply, err := h.orch.Handle(ctx, orchestrator.Request{
		Text:    transcript.Text,
		Channel: model.ChannelVoice,
		Speaker: c.GetString(ctxSubject),
	})
	if err != nil {
		h.orchestrationError(c, err)
		return
	}

	out := voiceReply{Reply: reply, Transcript: transcript.Text, Confidence: transcript.Confidence}
	if h.speaker != nil && c.Query("speak") != "" {
		audio, format, err := h.speaker.Synthesize(ctx, reply.Text)
		if err != nil {
			logger.WithTrace(ctx, h.logger).Warn("speech synthesis failed", zap.Error(err))
		} else {
			out.Audio, out.AudioFormat = audio, format
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) orchestrationError(c *gin.Context, err error) {
	if errors.Is(err, orchestrator.ErrEmptyRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	logger.WithTrace(c.Request.Context(), h.logger).Error("orchestration failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "request could not be completed"})
}

// ListNotifications handles GET /v1/notifications?unread=1&type=...&limit=...
func (h *Handler) ListNotifications(c *gin.Context) {
	f := model.NotificationFilter{
		UnreadOnly: c.Query("unread") == "1" || c.Query("unread") == "true",
		Type:       model.NotificationType(c.Query("type")),
	}
	if f.Type != "" && !f.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification type"})
		return
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	ctx := c.Request.Context()
	list, err := h.notes.List(ctx, f)
	if err != nil {
		logger.WithTrace(ctx, h.logger).Error("list notifications failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch notifications"})
		return
	}
	unread, err := h.notes.UnreadCount(ctx)
	if err != nil {
		logger.WithTrace(ctx, h.logger).Warn("unread count failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"unread":        unread,
	})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	err := h.notes.MarkRead(c.Request.Context(), c.Param("id"))
	if errors.Is(err, notify.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead handles POST /v1/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.notes.MarkAllRead(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// Experience handles GET /v1/experience
func (h *Handler) Experience(c *gin.Context) {
	b, err := h.orch.Balance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}
	shares := gin.H{}
	for _, d := range model.Dimensions {
		shares[string(d)] = b.Share(d)
	}
	c.JSON(http.StatusOK, gin.H{"balance": b, "shares": shares})
}

// Goal handles GET /v1/goal
func (h *Handler) Goal(c *gin.Context) {
	g, err := h.orch.ActiveGoal(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load goal"})
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active goal"})
		return
	}
	c.JSON(http.StatusOK, g)
}
