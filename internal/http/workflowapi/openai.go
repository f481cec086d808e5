package workflowapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arclight-labs/maker/common/id"
	"github.com/arclight-labs/maker/internal/orchestrator"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ChatCompletions implements POST /v1/chat/completions: an OpenAI-compatible
// facade over the orchestrator for clients that speak that wire format
// (spec §6). The last user message becomes the orchestrator's input; earlier
// messages in the list are not passed to the orchestrator.
func (h *Handler) ChatCompletions(c *gin.Context) {
	var req chatCompletionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := lastUserMessage(req.Messages)
	events, err := h.orch.Run(c.Request.Context(), orchestrator.RunRequest{Input: input})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	completionID := fmt.Sprintf("chatcmpl-%d", id.New())

	if !req.Stream {
		var content string
		for e := range events {
			if e.Chunk != "" {
				content += e.Chunk
			} else if e.Task != nil && e.Task.LatestCode != "" {
				content = e.Task.LatestCode
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"id":      completionID,
			"object":  "chat.completion",
			"model":   h.model,
			"choices": []gin.H{{"index": 0, "message": gin.H{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		e, ok := <-events
		if !ok {
			fmt.Fprint(w, "data: [DONE]\n\n")
			return false
		}
		content := e.Chunk
		if content == "" && e.Type == orchestrator.EventProgress {
			return true
		}
		chunk := gin.H{
			"id":      completionID,
			"object":  "chat.completion.chunk",
			"model":   h.model,
			"choices": []gin.H{{"index": 0, "delta": gin.H{"content": content}}},
		}
		line, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", line)
		if e.Type == orchestrator.EventDone || e.Type == orchestrator.EventError {
			fmt.Fprint(w, "data: [DONE]\n\n")
			return false
		}
		return true
	})
}

// Models implements GET /v1/models: a single-model listing matching this
// deployment's configured coder model, since the orchestrator fronts one
// logical assistant regardless of how many role-specific backends it calls.
func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   []gin.H{{"id": h.model, "object": "model"}},
	})
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
