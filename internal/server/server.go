// Package server exposes the chat engine over HTTP: an SSE chat endpoint,
// workflow and plan queries, insight extraction, and operational endpoints.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/conversation"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/logging"
	"github.com/kristerus/nulalabs/internal/plan"
	"github.com/kristerus/nulalabs/internal/sandbox"
	"github.com/kristerus/nulalabs/internal/workflow"
)

var turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nulalabs",
	Subsystem: "server",
	Name:      "chat_turns_total",
	Help:      "Chat turns by outcome.",
}, []string{"outcome"})

// Server wires HTTP handlers around the engine.
type Server struct {
	engine   *conversation.Engine
	enricher *workflow.Enricher
	plans    *plan.Store
	executor *sandbox.Executor
	logger   logging.Logger
}

// New builds a server. plans may be nil when persistence is disabled.
func New(engine *conversation.Engine, enricher *workflow.Enricher, plans *plan.Store, logger logging.Logger) *Server {
	return &Server{
		engine:   engine,
		enricher: enricher,
		plans:    plans,
		executor: sandbox.New(logger),
		logger:   logging.OrNop(logger),
	}
}

// Router assembles the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(requestID())

	r.POST("/chat", s.handleChat)
	r.POST("/extract-insight", s.handleExtractInsight)
	r.POST("/workflow", s.handleWorkflow)
	r.POST("/execute-artifact", s.handleExecuteArtifact)
	r.GET("/plans", s.handlePlans)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

type chatRequest struct {
	SessionID string         `json:"sessionId"`
	Messages  []chat.Message `json:"messages" binding:"required"`
}

// handleChat runs a turn and streams typed SSE events: text-delta, tool-call,
// tool-result, summarization, step-finish, then finish with usage. The engine
// invokes callbacks synchronously, so writing to gin's response writer here
// is safe without extra locking.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must not be empty"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	emit := func(event string, payload any) {
		c.SSEvent(event, payload)
		c.Writer.Flush()
	}

	updated, err := s.engine.RunTurn(c.Request.Context(), req.Messages, conversation.Events{
		OnTextDelta: func(delta string) {
			emit("text-delta", gin.H{"delta": delta})
		},
		OnToolCall: func(call chat.ToolCallPart) {
			emit("tool-call", gin.H{"callId": call.CallID, "name": call.Name, "args": call.Args})
		},
		OnToolResult: func(result chat.ToolResultPart) {
			emit("tool-result", gin.H{"callId": result.CallID, "result": result.Result, "isError": result.IsError})
		},
		OnSummarization: func(count int) {
			emit("summarization", gin.H{"summarizedCount": count})
		},
		OnStepFinish: func(step int) {
			emit("step-finish", gin.H{"step": step})
		},
		OnFinish: func(usage llm.Usage) {
			emit("finish", gin.H{"usage": usage})
		},
	})
	if err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		s.logger.Error("server: chat turn failed: %v", err)
		emit("error", gin.H{"error": err.Error()})
		return
	}
	turnsTotal.WithLabelValues("ok").Inc()

	if s.plans != nil && req.SessionID != "" {
		for _, rec := range plan.ExtractFromMessages(req.SessionID, updated) {
			if err := s.plans.Save(rec); err != nil {
				s.logger.Warn("server: saving plan: %v", err)
			}
		}
	}
}

type insightRequest struct {
	Text  string `json:"text" binding:"required"`
	Phase string `json:"phase"`
}

func (s *Server) handleExtractInsight(c *gin.Context) {
	var req insightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	insight, err := s.enricher.ExtractInsight(c.Request.Context(), req.Text, req.Phase)
	if err != nil {
		s.logger.Warn("server: insight extraction failed, using heuristic: %v", err)
		insight = workflow.HeuristicInsight(req.Text)
	}
	c.JSON(http.StatusOK, gin.H{"insight": insight})
}

type workflowRequest struct {
	Messages []chat.Message `json:"messages"`
}

// handleWorkflow derives the workflow graph for a posted history.
func (s *Server) handleWorkflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	g := s.engine.Graph(c.Request.Context(), req.Messages)
	c.JSON(http.StatusOK, g)
}

type executeRequest struct {
	Code  string         `json:"code" binding:"required"`
	Props map[string]any `json:"props"`
}

// handleExecuteArtifact runs a visualization component in the sandbox and
// returns its element tree. Staged failures come back as 422 with guidance
// the model can act on.
func (s *Server) handleExecuteArtifact(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	result, err := s.executor.Run(c.Request.Context(), req.Code, req.Props)
	if err != nil {
		var staged *sandbox.Error
		if errors.As(err, &staged) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"stage":    staged.Stage,
				"error":    staged.Message,
				"guidance": staged.Guidance,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"component": result.ComponentName, "tree": result.Root})
}

func (s *Server) handlePlans(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId query parameter is required"})
		return
	}
	if s.plans == nil {
		c.JSON(http.StatusOK, gin.H{"plans": []plan.Record{}})
		return
	}
	records, err := s.plans.LoadAll(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []plan.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"plans": records})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
