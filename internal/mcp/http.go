package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler is the bespoke /api/mcp/* REST facade spec §6 names alongside the
// literal MCP server: GET /api/mcp/tools lists descriptors, POST
// /api/mcp/tool dispatches one call.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler { return &Handler{dispatcher: d} }

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/mcp/tools", h.listTools)
	router.POST("/api/mcp/tool", h.callTool)
}

func (h *Handler) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.dispatcher.Allowed()})
}

type toolCallRequest struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

func (h *Handler) callTool(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	args, err := argsFromJSON(req.Args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.dispatcher.Call(c.Request.Context(), req.Tool, args)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}
