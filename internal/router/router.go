package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paralello/backend/internal/handler"
	"paralello/backend/internal/middleware"
	"paralello/backend/internal/service"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Timer    *handler.TimerHandler
	Schedule *handler.ScheduleHandler
}

func New(authService *service.AuthService, handlers Handlers, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", handlers.Auth.Register)
	auth.POST("/login", handlers.Auth.Login)

	pomodoro := api.Group("/pomodoro")
	pomodoro.Use(middleware.Auth(authService))
	pomodoro.GET("/state", handlers.Timer.GetState)
	pomodoro.POST("/start", handlers.Timer.Start)
	pomodoro.POST("/pause", handlers.Timer.Pause)
	pomodoro.POST("/reset", handlers.Timer.Reset)
	pomodoro.POST("/skip", handlers.Timer.Skip)
	pomodoro.PUT("/widget", handlers.Timer.SetWidget)
	pomodoro.POST("/tasks", handlers.Timer.AddTask)
	pomodoro.PATCH("/tasks/:id", handlers.Timer.RenameTask)
	pomodoro.DELETE("/tasks/:id", handlers.Timer.DeleteTask)
	pomodoro.PUT("/active-task", handlers.Timer.SetActiveTask)
	pomodoro.PUT("/notifications", handlers.Timer.SetNotificationPermission)
	pomodoro.GET("/events", handlers.Timer.Events)
	pomodoro.GET("/history", handlers.Timer.GetHistory)

	schedules := api.Group("/schedules")
	schedules.Use(middleware.Auth(authService))
	schedules.GET("/catalog", handlers.Schedule.Catalog)
	schedules.GET("", handlers.Schedule.List)
	schedules.POST("", handlers.Schedule.Create)
	schedules.GET("/:id", handlers.Schedule.Get)
	schedules.DELETE("/:id", handlers.Schedule.Delete)

	return engine
}
