// Package conversation runs one chat turn end to end: context accounting,
// summarization when the history outgrows the budget, the model/tool step
// loop, and workflow graph maintenance afterwards.
package conversation

import (
	stdctx "context"
	"fmt"

	"github.com/kristerus/nulalabs/internal/chat"
	convctx "github.com/kristerus/nulalabs/internal/context"
	"github.com/kristerus/nulalabs/internal/datacontext"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/logging"
	"github.com/kristerus/nulalabs/internal/token"
	"github.com/kristerus/nulalabs/internal/toolcache"
	"github.com/kristerus/nulalabs/internal/workflow"
)

// ToolDispatcher executes named tools. The bool result is the tool-level
// error flag, distinct from transport errors.
type ToolDispatcher interface {
	Tools() []chat.ToolDefinition
	Dispatch(ctx stdctx.Context, name string, args map[string]any) (string, bool, error)
}

// Config tunes engine behavior. Zero values select defaults.
type Config struct {
	SystemPrompt         string
	MaxSteps             int
	MaxTokens            int
	SummarizationTrigger int
	KeepRecent           int
}

const defaultMaxSteps = 8

// Events are the typed callbacks a turn emits, in order: deltas and tool
// activity per step, a summarization notice if one happened, then finish.
type Events struct {
	OnTextDelta     func(delta string)
	OnToolCall      func(call chat.ToolCallPart)
	OnToolResult    func(result chat.ToolResultPart)
	OnStepFinish    func(step int)
	OnSummarization func(summarizedCount int)
	OnFinish        func(usage llm.Usage)
}

// Engine orchestrates turns. Safe for concurrent use across sessions as long
// as callers serialize turns within one session.
type Engine struct {
	client     llm.StreamingClient
	tools      ToolDispatcher
	cache      *toolcache.Cache
	summarizer *convctx.Summarizer
	extractor  *datacontext.Extractor
	tracker    *workflow.Tracker
	enricher   *workflow.Enricher
	config     Config
	logger     logging.Logger
}

// NewEngine wires an engine. tools may be nil for a toolless deployment.
func NewEngine(client llm.StreamingClient, tools ToolDispatcher, cache *toolcache.Cache,
	summarizer *convctx.Summarizer, enricher *workflow.Enricher, cfg Config, logger logging.Logger) *Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.SummarizationTrigger <= 0 {
		cfg.SummarizationTrigger = token.DefaultSummarizationTrigger
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = convctx.DefaultKeepRecent
	}
	return &Engine{
		client:     client,
		tools:      tools,
		cache:      cache,
		summarizer: summarizer,
		extractor:  datacontext.NewExtractor(logger),
		tracker:    &workflow.Tracker{},
		enricher:   enricher,
		config:     cfg,
		logger:     logging.OrNop(logger),
	}
}

// Graph returns the workflow graph for exactly this history, rebuilding when
// the stored one is stale.
func (e *Engine) Graph(ctx stdctx.Context, messages []chat.Message) workflow.Graph {
	if g, ok := e.tracker.CurrentFor(messages); ok {
		return g
	}
	g := workflow.Build(messages)
	if e.enricher != nil {
		e.enricher.Enrich(ctx, &g)
	}
	e.tracker.Store(messages, g)
	return g
}

// RunTurn executes one user turn against the full history (which already
// includes the new user message) and returns the updated history.
func (e *Engine) RunTurn(ctx stdctx.Context, messages []chat.Message, ev Events) ([]chat.Message, error) {
	dataSummary := e.extractor.Build(messages)
	system := e.config.SystemPrompt
	if block := dataSummary.FormatForPrompt(); block != "" {
		system = system + "\n\n" + block
	}

	var tools []chat.ToolDefinition
	if e.tools != nil {
		tools = e.tools.Tools()
	}

	size := token.Size(system, messages, tools, e.config.SummarizationTrigger)
	if size.ExceedsThreshold && e.summarizer != nil {
		result := e.summarizer.Summarize(ctx, messages, e.config.KeepRecent)
		if result.Summarized() {
			e.logger.Info("conversation: summarized %d messages (%d tokens estimated)",
				result.SummarizedCount, size.Total)
			messages = append([]chat.Message{convctx.SummaryMessage(result.SummaryText)}, result.RecentMessages...)
			if ev.OnSummarization != nil {
				ev.OnSummarization(result.SummarizedCount)
			}
		}
	}

	var totalUsage llm.Usage
	for step := 1; step <= e.config.MaxSteps; step++ {
		resp, err := e.client.StreamComplete(ctx, llm.Request{
			System:    system,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: e.config.MaxTokens,
		}, llm.Callbacks{
			OnTextDelta: ev.OnTextDelta,
			OnToolCall:  ev.OnToolCall,
		})
		if err != nil {
			return messages, fmt.Errorf("model step %d: %w", step, err)
		}
		totalUsage.InputTokens += resp.Usage.InputTokens
		totalUsage.OutputTokens += resp.Usage.OutputTokens

		assistant := chat.Message{ID: chat.NewMessageID(), Role: chat.RoleAssistant}
		if resp.Text != "" {
			assistant.Parts = append(assistant.Parts, chat.TextPart{Text: resp.Text})
		}
		for _, call := range resp.ToolCalls {
			assistant.Parts = append(assistant.Parts, call)
			result := e.runTool(ctx, dataSummary, call)
			assistant.Parts = append(assistant.Parts, result)
			if ev.OnToolResult != nil {
				ev.OnToolResult(result)
			}
		}
		messages = append(messages, assistant)

		if ev.OnStepFinish != nil {
			ev.OnStepFinish(step)
		}
		if len(resp.ToolCalls) == 0 {
			break
		}
	}

	g := workflow.Build(messages)
	if e.enricher != nil {
		e.enricher.Enrich(ctx, &g)
	}
	e.tracker.Store(messages, g)

	if ev.OnFinish != nil {
		ev.OnFinish(totalUsage)
	}
	return messages, nil
}

// runTool resolves one tool call, preferring the session cache, then results
// already present in the conversation, then a live dispatch.
func (e *Engine) runTool(ctx stdctx.Context, dataSummary datacontext.Summary, call chat.ToolCallPart) chat.ToolResultPart {
	if e.cache != nil {
		if cached, ok := e.cache.Get(call.Name, call.Args); ok {
			e.logger.Debug("conversation: cache hit for %s", call.Name)
			return chat.ToolResultPart{CallID: call.CallID, Result: cached}
		}
	}
	if prior := dataSummary.CachedResult(call.Name, call.Args); prior != nil {
		e.logger.Debug("conversation: reusing in-conversation result for %s", call.Name)
		return chat.ToolResultPart{CallID: call.CallID, Result: prior}
	}

	if e.tools == nil {
		return chat.ToolResultPart{
			CallID:  call.CallID,
			Result:  fmt.Sprintf("tool %s is not available", call.Name),
			IsError: true,
		}
	}

	text, isError, err := e.tools.Dispatch(ctx, call.Name, call.Args)
	if err != nil {
		e.logger.Warn("conversation: tool %s failed: %v", call.Name, err)
		return chat.ToolResultPart{CallID: call.CallID, Result: err.Error(), IsError: true}
	}
	if !isError && e.cache != nil {
		e.cache.Set(call.Name, call.Args, text)
	}
	return chat.ToolResultPart{CallID: call.CallID, Result: text, IsError: isError}
}
