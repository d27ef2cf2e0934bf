package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/domain"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/ports"
	"github.com/DiagVN/diag-video-call-ui-kit/internal/core/services"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/errors"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/tracing"
	"github.com/DiagVN/diag-video-call-ui-kit/pkg/validation"

	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 100

// CallService is the slice of the call store the API drives.
type CallService interface {
	Snapshot() services.State
	Join(ctx context.Context, opts domain.JoinOptions) error
	Leave(ctx context.Context) error

	ToggleMic(ctx context.Context) (bool, error)
	ToggleCam(ctx context.Context) (bool, error)
	SwitchCamera(ctx context.Context) error
	GetDevices(ctx context.Context) (domain.Devices, error)
	SetInputDevice(ctx context.Context, sel domain.DeviceSelection) error
	SetOutputDevice(ctx context.Context, speakerID string) error
	StartScreenShare(ctx context.Context, opts domain.ScreenShareOptions) error
	StopScreenShare(ctx context.Context) error
	SetVideoQuality(ctx context.Context, preset domain.VideoQualityPreset) error
	SetAudioOnly(ctx context.Context, audioOnly bool) error

	SetVirtualBackground(ctx context.Context, cfg domain.VirtualBackgroundConfig) error
	ApplyVirtualBackground(ctx context.Context) error
	DisableVirtualBackground(ctx context.Context) error
	SetBeautyEffect(ctx context.Context, opts domain.BeautyOptions) error
	DisableBeautyEffect(ctx context.Context) error
	SetNoiseSuppression(ctx context.Context, level domain.NoiseSuppressionLevel) error

	RefreshStats(ctx context.Context) domain.CallStats
	SendChatMessage(ctx context.Context, content, replyTo string) error
	SetLayoutMode(mode domain.LayoutMode) error
	PinParticipant(uid domain.UID)
	DismissError(code errors.ErrorCode)
}

// TokenIssuer mints channel tokens for the simulated engine.
type TokenIssuer interface {
	Issue(channel string, uid domain.UID) (string, time.Time, error)
}

type CallHandler struct {
	calls   CallService
	history ports.CallHistoryRepository
	tokens  TokenIssuer
}

// NewCallHandler builds the call API. history and tokens may be nil; their
// routes then answer NOT_SUPPORTED.
func NewCallHandler(calls CallService, history ports.CallHistoryRepository, tokens TokenIssuer) *CallHandler {
	return &CallHandler{
		calls:   calls,
		history: history,
		tokens:  tokens,
	}
}

func (h *CallHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api/v1/call")
	{
		api.GET("", h.GetState)
		api.POST("/join", h.Join)
		api.POST("/leave", h.Leave)

		api.POST("/mic/toggle", h.ToggleMic)
		api.POST("/camera/toggle", h.ToggleCamera)
		api.POST("/camera/switch", h.SwitchCamera)
		api.GET("/devices", h.GetDevices)
		api.PUT("/devices", h.SetDevices)
		api.PUT("/output-device", h.SetOutputDevice)

		api.POST("/screen-share", h.StartScreenShare)
		api.DELETE("/screen-share", h.StopScreenShare)
		api.PUT("/quality", h.SetQuality)
		api.PUT("/audio-only", h.SetAudioOnly)

		api.PUT("/virtual-background", h.SetVirtualBackground)
		api.POST("/virtual-background/apply", h.ApplyVirtualBackground)
		api.DELETE("/virtual-background", h.DisableVirtualBackground)
		api.PUT("/beauty", h.SetBeauty)
		api.DELETE("/beauty", h.DisableBeauty)
		api.PUT("/noise-suppression", h.SetNoiseSuppression)

		api.GET("/stats", h.GetStats)
		api.POST("/chat", h.SendChat)
		api.PUT("/layout", h.SetLayout)
		api.PUT("/pin", h.Pin)
		api.DELETE("/errors/:code", h.DismissError)

		api.POST("/token", h.IssueToken)
		api.GET("/history", h.GetHistory)
	}
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, errors.NewInvalidInputError("invalid request format").WithDetail(err.Error()))
		return false
	}
	return true
}

func (h *CallHandler) GetState(c *gin.Context) {
	st := h.calls.Snapshot()
	resp := gin.H{
		"state":    st,
		"duration": st.DurationLabel(),
	}
	if p, ok := st.DisplayedParticipant(); ok {
		resp["displayed"] = p.ID
	}
	c.JSON(http.StatusOK, resp)
}

type JoinRequest struct {
	Channel      string `json:"channel" binding:"required,max=64"`
	UID          string `json:"uid" binding:"max=255"`
	Token        string `json:"token" binding:"max=2048"`
	DisplayName  string `json:"displayName"`
	JoinMuted    bool   `json:"joinMuted"`
	JoinVideoOff bool   `json:"joinVideoOff"`
	IsHost       bool   `json:"isHost"`
}

func (h *CallHandler) Join(c *gin.Context) {
	var req JoinRequest
	if !bind(c, &req) {
		return
	}

	opts := domain.JoinOptions{
		Channel:      strings.TrimSpace(req.Channel),
		UID:          domain.UID(req.UID),
		Token:        req.Token,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		JoinMuted:    req.JoinMuted,
		JoinVideoOff: req.JoinVideoOff,
		IsHost:       req.IsHost,
	}
	tracing.AddSpanAttributes(c.Request.Context(),
		tracing.ChannelKey.String(opts.Channel),
		tracing.UIDKey.String(string(opts.UID)),
	)
	if err := h.calls.Join(c.Request.Context(), opts); err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": h.calls.Snapshot()})
}

func (h *CallHandler) Leave(c *gin.Context) {
	if err := h.calls.Leave(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (h *CallHandler) ToggleMic(c *gin.Context) {
	enabled, err := h.calls.ToggleMic(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (h *CallHandler) ToggleCamera(c *gin.Context) {
	enabled, err := h.calls.ToggleCam(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (h *CallHandler) SwitchCamera(c *gin.Context) {
	if err := h.calls.SwitchCamera(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) GetDevices(c *gin.Context) {
	devices, err := h.calls.GetDevices(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (h *CallHandler) SetDevices(c *gin.Context) {
	var sel domain.DeviceSelection
	if !bind(c, &sel) {
		return
	}
	if sel.MicrophoneID == "" && sel.CameraID == "" && sel.SpeakerID == "" {
		fail(c, errors.NewInvalidInputError("no device selected"))
		return
	}
	if err := h.calls.SetInputDevice(c.Request.Context(), sel); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) SetOutputDevice(c *gin.Context) {
	var req struct {
		SpeakerID string `json:"speakerId" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.calls.SetOutputDevice(c.Request.Context(), req.SpeakerID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) StartScreenShare(c *gin.Context) {
	var opts domain.ScreenShareOptions
	if c.Request.ContentLength != 0 && !bind(c, &opts) {
		return
	}
	if err := h.calls.StartScreenShare(c.Request.Context(), opts); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) StopScreenShare(c *gin.Context) {
	if err := h.calls.StopScreenShare(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) SetQuality(c *gin.Context) {
	var req struct {
		Preset domain.VideoQualityPreset `json:"preset" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.calls.SetVideoQuality(c.Request.Context(), req.Preset); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) SetAudioOnly(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.calls.SetAudioOnly(c.Request.Context(), *req.Enabled); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) SetVirtualBackground(c *gin.Context) {
	var cfg domain.VirtualBackgroundConfig
	if !bind(c, &cfg) {
		return
	}
	if err := h.calls.SetVirtualBackground(c.Request.Context(), cfg); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) ApplyVirtualBackground(c *gin.Context) {
	if err := h.calls.ApplyVirtualBackground(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) DisableVirtualBackground(c *gin.Context) {
	if err := h.calls.DisableVirtualBackground(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) SetBeauty(c *gin.Context) {
	opts := domain.DefaultBeautyOptions()
	if !bind(c, &opts) {
		return
	}
	if err := h.calls.SetBeautyEffect(c.Request.Context(), opts); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) DisableBeauty(c *gin.Context) {
	if err := h.calls.DisableBeautyEffect(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) SetNoiseSuppression(c *gin.Context) {
	var req struct {
		Level domain.NoiseSuppressionLevel `json:"level" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.calls.SetNoiseSuppression(c.Request.Context(), req.Level); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.calls.RefreshStats(c.Request.Context())})
}

func (h *CallHandler) SendChat(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
		ReplyTo string `json:"replyTo"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.calls.SendChatMessage(c.Request.Context(), req.Content, req.ReplyTo); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *CallHandler) SetLayout(c *gin.Context) {
	var req struct {
		Mode domain.LayoutMode `json:"mode" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.calls.SetLayoutMode(req.Mode); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Pin pins uid, or unpins when uid is empty.
func (h *CallHandler) Pin(c *gin.Context) {
	var req struct {
		UID domain.UID `json:"uid"`
	}
	if !bind(c, &req) {
		return
	}
	h.calls.PinParticipant(req.UID)
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) DismissError(c *gin.Context) {
	h.calls.DismissError(errors.ErrorCode(strings.ToUpper(c.Param("code"))))
	c.Status(http.StatusNoContent)
}

func (h *CallHandler) IssueToken(c *gin.Context) {
	if h.tokens == nil {
		fail(c, errors.NewNotSupportedError("token issuing"))
		return
	}

	var req struct {
		Channel string `json:"channel" binding:"required"`
		UID     string `json:"uid"`
	}
	if !bind(c, &req) {
		return
	}
	if err := validation.ValidateChannelName(req.Channel); err != nil {
		fail(c, errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateUID(req.UID); err != nil {
		fail(c, errors.NewInvalidInputError(err.Error()))
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Channel, domain.UID(req.UID))
	if err != nil {
		fail(c, errors.WrapError(err, errors.ErrCodeTokenFailed, "failed to issue token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC(),
	})
}

// GetHistory lists finished calls, newest first. ?channel= filters by
// channel, otherwise ?limit= (default 20, max 100) caps the result.
func (h *CallHandler) GetHistory(c *gin.Context) {
	if h.history == nil {
		fail(c, errors.NewNotSupportedError("call history"))
		return
	}

	var (
		records []*ports.CallRecord
		err     error
	)
	if channel := c.Query("channel"); channel != "" {
		records, err = h.history.ByChannel(c.Request.Context(), channel)
	} else {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				fail(c, errors.NewInvalidInputError("limit must be a non-negative integer"))
				return
			}
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		records, err = h.history.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		fail(c, errors.WrapError(err, errors.ErrCodeInternal, "failed to load call history", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calls": records,
		"count": len(records),
	})
}

var _ ports.CallHTTPHandler = (*CallHandler)(nil)
