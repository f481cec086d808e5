// Package workflowapi implements spec §6's HTTP API table: the workflow
// endpoint, task/session/context inspection routes, and an OpenAI-compatible
// chat-completions facade, all backed by internal/orchestrator.Orchestrator.
package workflowapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/arclight-labs/maker/internal/orchestrator"
)

// Handler wires the HTTP surface to one Orchestrator instance.
type Handler struct {
	orch  *orchestrator.Orchestrator
	model string // the single model id GET /v1/models reports
}

func New(orch *orchestrator.Orchestrator, modelName string) *Handler {
	return &Handler{orch: orch, model: modelName}
}

type workflowRequest struct {
	Input      string `json:"input"`
	Stream     bool   `json:"stream"`
	TaskID     string `json:"task_id"`
	SessionID  string `json:"session_id"`
	Resume     bool   `json:"resume"`
	OutputFile string `json:"output_file"`
}

// Workflow implements POST /api/workflow: run the orchestrator and stream
// its events as SSE, or collect them into a single JSON summary when the
// caller didn't ask to stream.
func (h *Handler) Workflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var events <-chan orchestrator.Event
	var err error
	switch {
	case req.Resume && req.SessionID != "":
		events, err = h.orch.Resume(c.Request.Context(), req.SessionID)
	default:
		events, err = h.orch.Run(c.Request.Context(), orchestrator.RunRequest{
			Input:     req.Input,
			TaskID:    req.TaskID,
			SessionID: req.SessionID,
			Resume:    req.Resume,
		})
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tee := openOutputTee(req.OutputFile)
	defer tee.Close()

	if !req.Stream {
		c.JSON(http.StatusOK, collectSummary(events, tee))
		return
	}

	streamSSE(c, events, tee, func(e orchestrator.Event) ([]byte, bool) {
		line, _ := json.Marshal(e)
		return line, e.Type == orchestrator.EventDone || e.Type == orchestrator.EventError
	})
}

// Task implements GET /api/task/{id}.
func (h *Handler) Task(c *gin.Context) {
	task, err := h.orch.LoadTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// Context implements GET /api/context/{session}.
func (h *Handler) Context(c *gin.Context) {
	stats := h.orch.ContextStats(c.Request.Context(), c.Param("session"))
	c.JSON(http.StatusOK, stats)
}

type compactRequest struct {
	SessionID    string `json:"session_id"`
	Instructions string `json:"instructions"`
}

// Compact implements POST /api/compact.
func (h *Handler) Compact(c *gin.Context) {
	var req compactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.Compact(c.Request.Context(), req.SessionID, req.Instructions); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearSession implements POST /api/clear/{session}.
func (h *Handler) ClearSession(c *gin.Context) {
	if err := h.orch.ClearSession(c.Request.Context(), c.Param("session")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Sessions implements GET /api/sessions.
func (h *Handler) Sessions(c *gin.Context) {
	sessions, err := h.orch.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SessionResume implements POST /api/session/{id}/resume.
func (h *Handler) SessionResume(c *gin.Context) {
	events, err := h.orch.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	streamSSE(c, events, noopTee{}, func(e orchestrator.Event) ([]byte, bool) {
		line, _ := json.Marshal(e)
		return line, e.Type == orchestrator.EventDone || e.Type == orchestrator.EventError
	})
}

// SessionSave implements POST /api/session/{id}/save.
func (h *Handler) SessionSave(c *gin.Context) {
	if err := h.orch.SaveSession(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type checkpointRequest struct {
	FeatureName string `json:"feature_name"`
	TaskID      string `json:"task_id"`
}

// SessionCheckpoint implements POST /api/session/{id}/checkpoint.
func (h *Handler) SessionCheckpoint(c *gin.Context) {
	var req checkpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.orch.Checkpoint(c.Request.Context(), c.Param("id"), req.TaskID, req.FeatureName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type clarifyRequest struct {
	Answers []string `json:"answers"`
}

// Clarify implements POST /api/clarify/{task_id}.
func (h *Handler) Clarify(c *gin.Context) {
	var req clarifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	events, err := h.orch.ResumeFromClarification(c.Request.Context(), c.Param("task_id"), req.Answers)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	streamSSE(c, events, noopTee{}, func(e orchestrator.Event) ([]byte, bool) {
		line, _ := json.Marshal(e)
		return line, e.Type == orchestrator.EventDone || e.Type == orchestrator.EventError
	})
}

// outputTee writes every emitted chunk to a file in append mode before the
// caller sees it (spec §6, §9 "Streaming with file backup"), so a crash
// mid-stream leaves a recoverable prefix on disk.
type outputTee interface {
	Write(line []byte)
	Close()
}

type noopTee struct{}

func (noopTee) Write([]byte) {}
func (noopTee) Close()       {}

type fileTee struct{ f *os.File }

func openOutputTee(path string) outputTee {
	if path == "" {
		return noopTee{}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("workflowapi: output_file open failed", "path", path, "error", err)
		return noopTee{}
	}
	return &fileTee{f: f}
}

func (t *fileTee) Write(line []byte) {
	_, _ = t.f.Write(line)
	_, _ = t.f.Write([]byte("\n"))
}

func (t *fileTee) Close() {
	if t.f != nil {
		_ = t.f.Close()
	}
}

// streamSSE frames each event as `data: <json>\n\n`, tees it to disk first,
// and emits a terminal `{"done":true}` event once encode reports done.
func streamSSE(c *gin.Context, events <-chan orchestrator.Event, tee outputTee, encode func(orchestrator.Event) ([]byte, bool)) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		e, ok := <-events
		if !ok {
			return false
		}
		line, done := encode(e)
		tee.Write(line)
		fmt.Fprintf(w, "data: %s\n\n", line)
		if done {
			fmt.Fprintf(w, "data: {\"done\":true}\n\n")
		}
		return !done
	})
}

// collectSummary drains a non-streaming run into the `{task_id,status,
// output}` shape spec §6 names for POST /api/workflow without stream=true.
func collectSummary(events <-chan orchestrator.Event, tee outputTee) gin.H {
	var last orchestrator.Event
	var output string
	for e := range events {
		line, _ := json.Marshal(e)
		tee.Write(line)
		if e.Chunk != "" {
			output += e.Chunk
		}
		last = e
	}

	summary := gin.H{"output": output}
	if last.Task != nil {
		summary["task_id"] = last.Task.ID
		summary["status"] = last.Task.Status
		if last.Task.LatestCode != "" && output == "" {
			summary["output"] = last.Task.LatestCode
		}
	}
	if last.Type == orchestrator.EventError {
		summary["error"] = last.Line
	}
	return summary
}
