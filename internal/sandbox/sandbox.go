// Package sandbox validates and executes model-generated JSX visualization
// components in an isolated JavaScript runtime. Only React and a fixed set of
// recharts components are available inside; everything else fails with an
// error message written to guide the model toward correct code.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/kristerus/nulalabs/internal/logging"
)

// Stage identifies where in the pipeline execution failed.
type Stage string

const (
	StageImports   Stage = "imports"
	StageTranspile Stage = "transpile"
	StageExecute   Stage = "execute"
)

// Error is a staged execution failure with model-facing guidance.
type Error struct {
	Stage    Stage
	Message  string
	Guidance string
}

func (e *Error) Error() string {
	if e.Guidance == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s. %s", e.Stage, e.Message, e.Guidance)
}

// AllowedImports are the only module paths a component may import.
var AllowedImports = []string{"react", "recharts"}

// RechartsComponents is the fixed chart vocabulary exposed to components.
var RechartsComponents = []string{
	"BarChart", "Bar", "LineChart", "Line", "ScatterChart", "Scatter",
	"XAxis", "YAxis", "CartesianGrid", "Tooltip", "Legend",
	"ResponsiveContainer", "PieChart", "Pie", "Cell",
	"Area", "AreaChart", "ComposedChart",
	"RadarChart", "Radar", "RadialBarChart", "RadialBar",
	"PolarGrid", "PolarAngleAxis", "PolarRadiusAxis",
}

// ReactHooks are the hook names importable from react.
var ReactHooks = []string{
	"useState", "useEffect", "useMemo", "useCallback", "useRef", "useContext",
}

const defaultTimeout = 3 * time.Second

// Result is a successfully rendered component.
type Result struct {
	ComponentName string
	Root          map[string]any
	RootJSON      string
}

// Executor runs component sources. Stateless and safe for concurrent use;
// every Run gets a fresh runtime.
type Executor struct {
	timeout time.Duration
	logger  logging.Logger
}

// New builds an executor with the default timeout.
func New(logger logging.Logger) *Executor {
	return &Executor{timeout: defaultTimeout, logger: logging.OrNop(logger)}
}

// Run validates, transpiles, and executes one component source. props are
// passed to the component function; the same source and props always produce
// the same result or the same error.
func (e *Executor) Run(ctx context.Context, source string, props map[string]any) (*Result, error) {
	if err := ValidateImports(source); err != nil {
		return nil, err
	}

	prepared, componentName := prepareSource(source)
	js, err := TranspileJSX(prepared)
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, js, componentName, props)
}

var importPattern = regexp.MustCompile(`(?m)^\s*import\s+(?:[^'"]*?from\s+)?['"]([^'"]+)['"];?`)

// ValidateImports rejects sources importing anything outside AllowedImports.
func ValidateImports(source string) error {
	for _, m := range importPattern.FindAllStringSubmatch(source, -1) {
		path := m[1]
		if allowedImport(path) {
			continue
		}
		return &Error{
			Stage:   StageImports,
			Message: fmt.Sprintf("import of %q is not allowed", path),
			Guidance: fmt.Sprintf("Only %s can be imported. All chart components (%s...) are already in scope.",
				strings.Join(AllowedImports, " and "), strings.Join(RechartsComponents[:4], ", ")),
		}
	}
	return nil
}

func allowedImport(path string) bool {
	for _, a := range AllowedImports {
		if path == a {
			return true
		}
	}
	return false
}

var (
	exportDefaultFunc = regexp.MustCompile(`export\s+default\s+function\s+([A-Za-z_$][\w$]*)`)
	exportDefaultAnon = regexp.MustCompile(`export\s+default\s+function\s*\(`)
	exportDefaultRef  = regexp.MustCompile(`export\s+default\s+([A-Za-z_$][\w$]*)\s*;?`)
	exportDefaultExpr = regexp.MustCompile(`export\s+default\s+`)
)

// prepareSource strips import statements and rewrites the default export into
// a local __component binding, returning the detected component name.
func prepareSource(source string) (string, string) {
	source = importPattern.ReplaceAllString(source, "")

	name := "Component"
	switch {
	case exportDefaultFunc.MatchString(source):
		m := exportDefaultFunc.FindStringSubmatch(source)
		name = m[1]
		source = exportDefaultFunc.ReplaceAllString(source, "function $1")
		source += "\nvar __component = " + name + ";"
	case exportDefaultAnon.MatchString(source):
		source = exportDefaultAnon.ReplaceAllString(source, "var __component = function(")
	case exportDefaultRef.MatchString(source):
		m := exportDefaultRef.FindStringSubmatch(source)
		name = m[1]
		source = exportDefaultRef.ReplaceAllString(source, "var __component = "+name+";")
	case exportDefaultExpr.MatchString(source):
		source = exportDefaultExpr.ReplaceAllString(source, "var __component = ")
	}
	return source, name
}

var referenceErrorPattern = regexp.MustCompile(`ReferenceError: ([A-Za-z_$][\w$]*) is not defined`)

func (e *Executor) execute(ctx context.Context, js, componentName string, props map[string]any) (*Result, error) {
	vm := goja.New()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution cancelled")
		case <-time.After(e.timeout):
			vm.Interrupt("execution timed out")
		case <-done:
		}
	}()

	if _, err := vm.RunString(runtimePrelude); err != nil {
		return nil, fmt.Errorf("sandbox: prelude: %w", err)
	}
	if _, err := vm.RunString(js); err != nil {
		return nil, e.guidedExecError(err)
	}
	if err := vm.Set("__props", props); err != nil {
		return nil, fmt.Errorf("sandbox: props: %w", err)
	}

	rendered, err := vm.RunString(`JSON.stringify(__render(__props))`)
	if err != nil {
		return nil, e.guidedExecError(err)
	}

	var root map[string]any
	rootJSON := rendered.String()
	if err := json.Unmarshal([]byte(rootJSON), &root); err != nil {
		return nil, &Error{
			Stage:    StageExecute,
			Message:  "component did not return a renderable element",
			Guidance: "The default export must be a function returning JSX, for example a ResponsiveContainer wrapping a chart.",
		}
	}

	e.logger.Debug("sandbox: rendered component %s", componentName)
	return &Result{ComponentName: componentName, Root: root, RootJSON: rootJSON}, nil
}

// guidedExecError turns runtime failures into model-facing guidance. An
// undefined identifier almost always means a hallucinated chart component, so
// the message enumerates what actually exists.
func (e *Executor) guidedExecError(err error) error {
	msg := err.Error()
	if m := referenceErrorPattern.FindStringSubmatch(msg); m != nil {
		available := append(append([]string{}, RechartsComponents...), ReactHooks...)
		sort.Strings(available)
		return &Error{
			Stage:   StageExecute,
			Message: fmt.Sprintf("%q is not defined in the sandbox", m[1]),
			Guidance: fmt.Sprintf("Available identifiers: React, %s. Rewrite the component using only these.",
				strings.Join(available, ", ")),
		}
	}
	if strings.Contains(msg, "timed out") || strings.Contains(msg, "cancelled") {
		return &Error{
			Stage:    StageExecute,
			Message:  "component execution exceeded the time limit",
			Guidance: "Remove loops over large data and render a bounded number of elements.",
		}
	}
	return &Error{Stage: StageExecute, Message: msg}
}
