package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "paralello/backend/internal/errors"
	"paralello/backend/internal/middleware"
	"paralello/backend/internal/service"
)

const keepAliveInterval = 25 * time.Second

type TimerHandler struct {
	timerService *service.TimerService
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion" binding:"gte=0"`
}

type widgetRequest struct {
	BaseVersion int   `json:"baseVersion" binding:"gte=0"`
	Visible     *bool `json:"visible" binding:"required"`
}

type addTaskRequest struct {
	Text        string `json:"text" binding:"required"`
	TotalCycles int    `json:"totalCycles" binding:"required,min=1"`
}

type renameTaskRequest struct {
	Text string `json:"text" binding:"required"`
}

type activeTaskRequest struct {
	BaseVersion int     `json:"baseVersion" binding:"gte=0"`
	TaskID      *string `json:"taskId"`
}

type permissionRequest struct {
	Permission string `json:"permission" binding:"required,oneof=default granted denied"`
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) GetState(c *gin.Context) {
	state, apiErr := h.timerService.GetState(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Start(c *gin.Context) {
	h.versioned(c, h.timerService.Start)
}

func (h *TimerHandler) Pause(c *gin.Context) {
	h.versioned(c, h.timerService.Pause)
}

func (h *TimerHandler) Reset(c *gin.Context) {
	h.versioned(c, h.timerService.Reset)
}

func (h *TimerHandler) Skip(c *gin.Context) {
	h.versioned(c, h.timerService.Skip)
}

func (h *TimerHandler) SetWidget(c *gin.Context) {
	var req widgetRequest
	if !bindJSON(c, &req) {
		return
	}

	state, apiErr := h.timerService.SetWidget(c.Request.Context(), middleware.UserID(c), *req.Visible, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) AddTask(c *gin.Context) {
	var req addTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	state, task, apiErr := h.timerService.AddTask(c.Request.Context(), middleware.UserID(c), req.Text, req.TotalCycles)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"state": state, "task": task})
}

func (h *TimerHandler) RenameTask(c *gin.Context) {
	var req renameTaskRequest
	if !bindJSON(c, &req) {
		return
	}

	state, apiErr := h.timerService.RenameTask(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Text)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) DeleteTask(c *gin.Context) {
	state, apiErr := h.timerService.DeleteTask(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) SetActiveTask(c *gin.Context) {
	var req activeTaskRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	state, apiErr := h.timerService.SetActiveTask(c.Request.Context(), middleware.UserID(c), req.TaskID, req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) SetNotificationPermission(c *gin.Context) {
	var req permissionRequest
	if !bindJSON(c, &req) {
		return
	}

	state, apiErr := h.timerService.SetNotificationPermission(c.Request.Context(), middleware.UserID(c), req.Permission)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// Events streams notifications as server-sent events, starting with the
// current state.
func (h *TimerHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	messages, cancel, apiErr := h.timerService.Subscribe(ctx, userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	defer cancel()

	state, apiErr := h.timerService.GetState(ctx, userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("state", state)
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			c.SSEvent(msg.Kind, msg)
			return true
		}
	})
}

func (h *TimerHandler) GetHistory(c *gin.Context) {
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	records, apiErr := h.timerService.GetHistory(c.Request.Context(), middleware.UserID(c), limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

type versionedOp func(ctx context.Context, userID string, baseVersion int) (*service.StateView, *apperrors.APIError)

func (h *TimerHandler) versioned(c *gin.Context, op versionedOp) {
	var req versionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	state, apiErr := op(c.Request.Context(), middleware.UserID(c), req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}
