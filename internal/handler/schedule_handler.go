package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paralello/backend/internal/middleware"
	"paralello/backend/internal/model"
	"paralello/backend/internal/service"
)

type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

type createScheduleRequest struct {
	Title string               `json:"title" binding:"required"`
	Slots []model.ScheduleSlot `json:"slots"`
}

func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService}
}

func (h *ScheduleHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"catalog": h.scheduleService.Catalog()})
}

func (h *ScheduleHandler) List(c *gin.Context) {
	schedules, apiErr := h.scheduleService.List(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	schedule, apiErr := h.scheduleService.Create(c.Request.Context(), middleware.UserID(c), model.ScheduleInput{
		Title: req.Title,
		Slots: req.Slots,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"schedule": schedule})
}

func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, apiErr := h.scheduleService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	if apiErr := h.scheduleService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}
