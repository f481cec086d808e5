package workflowapi

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts spec §6's HTTP API table onto router.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/api/workflow", h.Workflow)
	router.GET("/api/task/:id", h.Task)
	router.GET("/api/context/:session", h.Context)
	router.POST("/api/compact", h.Compact)
	router.POST("/api/clear/:session", h.ClearSession)
	router.GET("/api/sessions", h.Sessions)
	router.POST("/api/session/:id/resume", h.SessionResume)
	router.POST("/api/session/:id/save", h.SessionSave)
	router.POST("/api/session/:id/checkpoint", h.SessionCheckpoint)
	router.POST("/api/clarify/:task_id", h.Clarify)

	router.POST("/v1/chat/completions", h.ChatCompletions)
	router.GET("/v1/models", h.Models)
}
