package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/logging"
)

const enrichConcurrency = 4

// Enricher upgrades heuristic insights with model-extracted ones. Insights
// coming straight from workflow annotations are authoritative and never
// overwritten.
type Enricher struct {
	client llm.Client
	logger logging.Logger
}

// NewEnricher builds an enricher; a nil client degrades to the heuristic.
func NewEnricher(client llm.Client, logger logging.Logger) *Enricher {
	return &Enricher{client: client, logger: logging.OrNop(logger)}
}

// Enrich fills in model-extracted insights for analysis nodes whose current
// insight is heuristic or missing. Extraction fans out across nodes; a
// failing node keeps its existing insight. The graph is modified in place.
func (e *Enricher) Enrich(ctx context.Context, g *Graph) {
	if e.client == nil || g == nil {
		return
	}

	var mu sync.Mutex
	insights := map[int]string{}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(enrichConcurrency)

	for i := range g.Nodes {
		node := g.Nodes[i]
		if node.Type != NodeAnalysis || node.InsightSource == InsightAnnotation {
			continue
		}
		if strings.TrimSpace(node.SourceText) == "" {
			continue
		}
		idx := i
		group.Go(func() error {
			insight, err := e.extract(ctx, node.SourceText, node.Phase)
			if err != nil {
				e.logger.Warn("workflow: insight extraction failed for %s: %v", node.ID, err)
				return nil
			}
			if insight != "" {
				mu.Lock()
				insights[idx] = insight
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	for idx, insight := range insights {
		g.Nodes[idx].Insight = insight
		g.Nodes[idx].InsightSource = InsightLLM
	}
}

// ExtractInsight runs one extraction for arbitrary text, used by the HTTP
// insight endpoint. Without a client it falls back to the heuristic.
func (e *Enricher) ExtractInsight(ctx context.Context, text, phase string) (string, error) {
	if e.client == nil {
		return HeuristicInsight(text), nil
	}
	return e.extract(ctx, text, phase)
}

func (e *Enricher) extract(ctx context.Context, text, phase string) (string, error) {
	prompt := fmt.Sprintf(
		"Extract the single most important finding from this %s step in one short sentence. State the result, not the activity. Reply with only the sentence.\n\n%s",
		phaseOrDefault(phase), text)

	resp, err := e.client.Complete(ctx, llm.Request{
		Messages:  []chat.Message{chat.UserMessage(prompt)},
		MaxTokens: 100,
	})
	if err != nil {
		return "", err
	}
	return truncateInsight(strings.TrimSpace(resp.Text)), nil
}

func phaseOrDefault(phase string) string {
	if phase == "" {
		return "analysis"
	}
	return phase
}
