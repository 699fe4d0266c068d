// Package workflow derives an analysis-workflow graph from conversation
// history. Each assistant turn becomes an analysis node; embedded jsx code
// fences become visualization nodes hanging off their turn. The build is a
// pure function of the message slice and is safe to re-run at any time.
package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kristerus/nulalabs/internal/annotation"
	"github.com/kristerus/nulalabs/internal/chat"
)

// NodeType discriminates graph nodes.
type NodeType string

const (
	NodeAnalysis      NodeType = "analysis"
	NodeVisualization NodeType = "visualization"
)

// NodeStatus reflects whether the turn behind a node succeeded.
type NodeStatus string

const (
	StatusCompleted  NodeStatus = "completed"
	StatusInProgress NodeStatus = "in_progress"
	StatusError      NodeStatus = "error"
)

// EdgeType discriminates edges the same way the parallel annotation marks
// nodes.
type EdgeType string

const (
	EdgeSequential EdgeType = "sequential"
	EdgeParallel   EdgeType = "parallel"
)

// InsightSource records where a node's insight came from, in descending
// precedence: annotation, llm, heuristic.
type InsightSource string

const (
	InsightAnnotation InsightSource = "annotation"
	InsightLLM        InsightSource = "llm"
	InsightHeuristic  InsightSource = "heuristic"
)

const (
	analysisIDPrefix = "analysis-"
	vizIDPrefix      = "viz-"

	// InitialPhase labels the first node when no signal names a phase.
	InitialPhase = "Initial"
)

// Node is one step of the derived workflow.
type Node struct {
	ID            string        `json:"id"`
	Type          NodeType      `json:"type"`
	Phase         string        `json:"phase"`
	Status        NodeStatus    `json:"status"`
	Insight       string        `json:"insight,omitempty"`
	InsightSource InsightSource `json:"-"`
	ToolNames     []string      `json:"toolNames,omitempty"`
	UserQuery     string        `json:"userQuery,omitempty"`
	MessageID     string        `json:"messageId"`
	Parallel      bool          `json:"parallel,omitempty"`

	// SourceText feeds downstream insight extraction; not serialized.
	SourceText string `json:"-"`
}

// Edge connects consecutive workflow steps.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
}

// Graph is the full derived workflow.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

var jsxFencePattern = regexp.MustCompile("(?s)```jsx\\s*\\n.*?```")

// Build derives the graph from the full message history. User turns do not
// get nodes of their own; their text is folded into the next assistant node
// as UserQuery. The result depends only on the input, so rebuilding on every
// turn is safe and cheap.
func Build(messages []chat.Message) Graph {
	g := Graph{Nodes: []Node{}, Edges: []Edge{}}
	var pendingUser []string
	var prevNodeID string
	prevPhase := ""

	for idx, msg := range messages {
		if msg.Role == chat.RoleUser {
			if text := strings.TrimSpace(msg.Text()); text != "" {
				pendingUser = append(pendingUser, text)
			}
			continue
		}
		if msg.Role != chat.RoleAssistant {
			continue
		}

		reasoning := msg.ReasoningText()
		invocations := chat.Invocations(msg, idx, nil)
		if strings.TrimSpace(reasoning) == "" && len(invocations) == 0 && strings.TrimSpace(msg.Text()) == "" {
			continue
		}

		toolNames := make([]string, 0, len(invocations))
		status := StatusCompleted
		for _, inv := range invocations {
			toolNames = append(toolNames, inv.ToolName)
			if inv.IsError {
				status = StatusError
			}
		}

		tag := annotation.ExtractWorkflowTag(reasoning)
		phase := resolvePhase(tag, toolNames, reasoning, prevPhase)

		node := Node{
			ID:         analysisIDPrefix + msg.ID,
			Type:       NodeAnalysis,
			Phase:      phase,
			Status:     status,
			ToolNames:  toolNames,
			UserQuery:  strings.Join(pendingUser, "\n"),
			MessageID:  msg.ID,
			SourceText: reasoning,
		}
		if tag != nil {
			node.Parallel = tag.IsParallel
			if tag.Insight != "" {
				node.Insight = tag.Insight
				node.InsightSource = InsightAnnotation
			}
		}
		if node.Insight == "" {
			if insight := HeuristicInsight(reasoning); insight != "" {
				node.Insight = insight
				node.InsightSource = InsightHeuristic
			}
		}

		g.Nodes = append(g.Nodes, node)
		if prevNodeID != "" {
			edgeType := EdgeSequential
			if node.Parallel {
				edgeType = EdgeParallel
			}
			g.Edges = append(g.Edges, Edge{
				ID:     prevNodeID + "-" + node.ID,
				Source: prevNodeID,
				Target: node.ID,
				Type:   edgeType,
			})
		}

		for _, vizID := range vizNodeIDs(msg) {
			viz := Node{
				ID:        vizID,
				Type:      NodeVisualization,
				Phase:     phase,
				Status:    StatusCompleted,
				MessageID: msg.ID,
			}
			g.Nodes = append(g.Nodes, viz)
			g.Edges = append(g.Edges, Edge{
				ID:     node.ID + "-" + viz.ID,
				Source: node.ID,
				Target: viz.ID,
				Type:   EdgeSequential,
			})
		}

		pendingUser = nil
		prevNodeID = node.ID
		prevPhase = phase
	}
	return g
}

// resolvePhase applies the phase signal priority: explicit annotation, then
// tool-name inference, then reasoning keywords, then the previous node's
// phase. The first node without any signal is labeled InitialPhase.
func resolvePhase(tag *annotation.Tag, toolNames []string, reasoning, prevPhase string) string {
	if tag != nil && tag.Phase != "" {
		return tag.Phase
	}
	if len(toolNames) > 0 {
		if phase := annotation.PhaseFromToolNames(toolNames, ""); phase != annotation.PhaseDefault {
			return phase
		}
	}
	if phase, ok := annotation.ExtractPhaseHint(reasoning); ok {
		return phase
	}
	if prevPhase != "" {
		return prevPhase
	}
	return InitialPhase
}

func vizNodeIDs(msg chat.Message) []string {
	fences := jsxFencePattern.FindAllString(msg.Text(), -1)
	if len(fences) == 0 {
		return nil
	}
	if len(fences) == 1 {
		return []string{vizIDPrefix + msg.ID}
	}
	ids := make([]string, len(fences))
	for i := range fences {
		ids[i] = fmt.Sprintf("%s%s-%d", vizIDPrefix, msg.ID, i+1)
	}
	return ids
}

// NodesForPhase returns nodes labeled with the given phase, in graph order.
func (g Graph) NodesForPhase(phase string) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Phase == phase {
			out = append(out, n)
		}
	}
	return out
}

// Phases returns the distinct phase labels in first-appearance order.
func (g Graph) Phases() []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range g.Nodes {
		if !seen[n.Phase] {
			seen[n.Phase] = true
			out = append(out, n.Phase)
		}
	}
	return out
}

// NodesByType filters nodes by type.
func (g Graph) NodesByType(t NodeType) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// ArtifactCount is the number of visualization nodes.
func (g Graph) ArtifactCount() int {
	return len(g.NodesByType(NodeVisualization))
}
