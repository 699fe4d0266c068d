package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	convctx "github.com/kristerus/nulalabs/internal/context"
	"github.com/kristerus/nulalabs/internal/conversation"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/plan"
	"github.com/kristerus/nulalabs/internal/toolcache"
	"github.com/kristerus/nulalabs/internal/workflow"
)

func newTestServer(t *testing.T, responses ...llm.Response) *Server {
	t.Helper()
	mock := llm.NewMock(responses...)
	engine := conversation.NewEngine(llm.EnsureStreaming(mock), nil, toolcache.New(0, 0, nil),
		convctx.NewSummarizer(nil, nil), workflow.NewEnricher(nil, nil),
		conversation.Config{SystemPrompt: "analyst"}, nil)
	plans, err := plan.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("plan store: %v", err)
	}
	return New(engine, workflow.NewEnricher(nil, nil), plans, nil)
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatStreamsEvents(t *testing.T) {
	srv := newTestServer(t, llm.Response{Text: "Hello analyst.", StopReason: "end_turn"})
	router := srv.Router()

	body := `{"sessionId":"s1","messages":[{"id":"u1","role":"user","parts":[{"type":"text","text":"hi"}]}]}`
	w := postJSON(t, router, "/chat", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	out := w.Body.String()
	for _, want := range []string{"event:text-delta", "Hello analyst.", "event:step-finish", "event:finish"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stream missing %q:\n%s", want, out)
		}
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type = %q", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	srv := newTestServer(t)
	w := postJSON(t, srv.Router(), "/chat", `{"messages":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestExtractInsightEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := postJSON(t, srv.Router(), "/extract-insight",
		`{"text":"Found 245 compounds above threshold.","phase":"QC Assessment"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Insight string `json:"insight"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Insight, "245 compounds") {
		t.Fatalf("insight = %q", resp.Insight)
	}
}

func TestWorkflowEndpoint(t *testing.T) {
	srv := newTestServer(t)
	body := `{"messages":[
		{"id":"u1","role":"user","parts":[{"type":"text","text":"analyze"}]},
		{"id":"a1","role":"assistant","parts":[{"type":"text","text":"Found 3 outliers today."}]}
	]}`
	w := postJSON(t, srv.Router(), "/workflow", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var g workflow.Graph
	if err := json.Unmarshal(w.Body.Bytes(), &g); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(g.Nodes) != 1 || g.Nodes[0].ID != "analysis-a1" {
		t.Fatalf("graph = %+v", g)
	}
}

func TestExecuteArtifactEndpoint(t *testing.T) {
	srv := newTestServer(t)
	body := `{"code":"export default function Note() {\n  return <div className=\"note\">Ready</div>;\n}"}`
	w := postJSON(t, srv.Router(), "/execute-artifact", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	out := w.Body.String()
	if !strings.Contains(out, `"component":"Note"`) || !strings.Contains(out, "div") {
		t.Fatalf("body = %s", out)
	}
}

func TestExecuteArtifactPassesProps(t *testing.T) {
	srv := newTestServer(t)
	body := `{"code":"export default function Title(props) { return <h1>{props.label}</h1>; }","props":{"label":"QC summary"}}`
	w := postJSON(t, srv.Router(), "/execute-artifact", body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "QC summary") {
		t.Fatalf("props not rendered: %s", w.Body.String())
	}
}

func TestExecuteArtifactRejectsImports(t *testing.T) {
	srv := newTestServer(t)
	body := `{"code":"import axios from 'axios';\nexport default function C() { return <p>x</p>; }"}`
	w := postJSON(t, srv.Router(), "/execute-artifact", body)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"stage":"imports"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestPlansEndpoint(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing sessionId should 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans?sessionId=none", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"plans":[]`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}
