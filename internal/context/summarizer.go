// Package context compresses long conversation histories. When the estimated
// context size crosses the summarization threshold, older messages are
// condensed into a single synthetic summary message while the most recent
// turns are kept verbatim.
package context

import (
	stdctx "context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/logging"
	"github.com/kristerus/nulalabs/internal/token"
)

const (
	// SummaryPrefix marks synthetic summary messages. A message carrying this
	// prefix is itself summarizable on later turns.
	SummaryPrefix = "[Conversation Summary - Previous Context]"

	// DefaultKeepRecent is how many trailing messages survive verbatim.
	DefaultKeepRecent = 5

	// maxTranscriptTokens bounds the transcript handed to the auxiliary model.
	maxTranscriptTokens = 8000

	transcriptSeparator = "\n\n---\n\n"
)

var summarizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nulalabs",
	Subsystem: "context",
	Name:      "summarizations_total",
	Help:      "Conversation summarizations by outcome.",
}, []string{"outcome"})

// Result is the outcome of one summarization pass.
type Result struct {
	SummaryText     string
	RecentMessages  []chat.Message
	SummarizedCount int
}

// Summarized reports whether any messages were actually condensed.
func (r Result) Summarized() bool { return r.SummarizedCount > 0 }

// Summarizer condenses older messages via an auxiliary model call, falling
// back to a deterministic template when the model is unavailable or errors.
type Summarizer struct {
	client    llm.Client
	templates Templates
	logger    logging.Logger
}

// NewSummarizer builds a summarizer. client may be nil; the deterministic
// fallback then handles every request.
func NewSummarizer(client llm.Client, logger logging.Logger) *Summarizer {
	return NewSummarizerWithTemplates(client, DefaultTemplates(), logger)
}

// NewSummarizerWithTemplates injects custom rendering templates.
func NewSummarizerWithTemplates(client llm.Client, tpls Templates, logger logging.Logger) *Summarizer {
	if tpls.Prompt == nil || tpls.Fallback == nil {
		tpls = DefaultTemplates()
	}
	return &Summarizer{client: client, templates: tpls, logger: logging.OrNop(logger)}
}

// Summarize condenses all but the trailing keepRecent messages. It never
// fails: model errors degrade to the deterministic fallback summary. When the
// history fits inside keepRecent the input is returned untouched.
func (s *Summarizer) Summarize(ctx stdctx.Context, messages []chat.Message, keepRecent int) Result {
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	if len(messages) <= keepRecent {
		return Result{RecentMessages: messages}
	}

	older := messages[:len(messages)-keepRecent]
	recent := messages[len(messages)-keepRecent:]

	summary := s.modelSummary(ctx, older)
	if summary == "" {
		summary = s.fallbackSummary(older)
		summarizationsTotal.WithLabelValues("fallback").Inc()
	} else {
		summarizationsTotal.WithLabelValues("llm").Inc()
	}

	return Result{
		SummaryText:     summary,
		RecentMessages:  recent,
		SummarizedCount: len(older),
	}
}

// SummaryMessage wraps summary text into a synthetic assistant message that
// can be prepended to the retained history.
func SummaryMessage(summary string) chat.Message {
	return chat.Message{
		ID:   chat.NewMessageID(),
		Role: chat.RoleAssistant,
		Parts: []chat.Part{
			chat.TextPart{Text: SummaryPrefix + "\n\n" + summary},
		},
	}
}

func (s *Summarizer) modelSummary(ctx stdctx.Context, older []chat.Message) string {
	if s.client == nil {
		return ""
	}

	transcript := token.Truncate(renderTranscript(older), maxTranscriptTokens)
	prompt := s.templates.RenderPrompt(transcript)

	resp, err := s.client.Complete(ctx, llm.Request{
		Messages:  []chat.Message{chat.UserMessage(prompt)},
		MaxTokens: 512,
	})
	if err != nil {
		s.logger.Warn("context: summary model call failed, using fallback: %v", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// fallbackSummary produces a deterministic single-sentence summary naming the
// distinct tools used across the condensed span.
func (s *Summarizer) fallbackSummary(older []chat.Message) string {
	return s.templates.RenderFallback(len(older), distinctToolNames(older))
}

func distinctToolNames(messages []chat.Message) []string {
	seen := map[string]bool{}
	var names []string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			call, ok := part.(chat.ToolCallPart)
			if !ok || call.Name == "" || seen[call.Name] {
				continue
			}
			seen[call.Name] = true
			names = append(names, call.Name)
		}
	}
	return names
}

// renderTranscript flattens messages into a role-prefixed transcript. Tool
// calls appear as name-only bullets; results are elided to keep the transcript
// small.
func renderTranscript(messages []chat.Message) string {
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		var b strings.Builder
		fmt.Fprintf(&b, "%s: %s", strings.ToUpper(string(msg.Role)), strings.TrimSpace(msg.Text()))
		for _, part := range msg.Parts {
			if call, ok := part.(chat.ToolCallPart); ok && call.Name != "" {
				fmt.Fprintf(&b, "\n[tool: %s]", call.Name)
			}
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, transcriptSeparator)
}
