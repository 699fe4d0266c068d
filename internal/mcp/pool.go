package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/logging"
)

// ToolSeparator joins server and tool names into the namespaced form the
// model sees, e.g. "sleepyrat__load_compounds".
const ToolSeparator = "__"

// ServerConfig describes one tool server.
type ServerConfig struct {
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	Disabled bool              `yaml:"disabled"`
}

// Config is the servers section of the application configuration.
type Config struct {
	Servers map[string]ServerConfig `yaml:"servers"`
}

// ParseConfig loads a YAML server configuration.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse mcp config: %w", err)
	}
	return cfg, nil
}

// Interactive authentication tools cannot work in a headless chat backend,
// so they are hidden from the model.
var excludedToolPrefixes = []string{"login", "auth", "authenticate", "logout"}

func excludedTool(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range excludedToolPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// NamespacedName builds the model-facing tool name.
func NamespacedName(server, tool string) string {
	return server + ToolSeparator + tool
}

// SplitName resolves a namespaced name back into server and tool.
func SplitName(name string) (server, tool string, ok bool) {
	idx := strings.Index(name, ToolSeparator)
	if idx <= 0 || idx+len(ToolSeparator) >= len(name) {
		return "", "", false
	}
	return name[:idx], name[idx+len(ToolSeparator):], true
}

// Pool manages the configured tool servers as one dispatch surface. A server
// that fails to start is logged and skipped; the rest keep working.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
	tools   []chat.ToolDefinition
	logger  logging.Logger
}

// NewPool creates an empty pool.
func NewPool(logger logging.Logger) *Pool {
	return &Pool{
		clients: map[string]*Client{},
		logger:  logging.OrNop(logger),
	}
}

// Connect starts every enabled server and collects its tools. Individual
// failures degrade that server only; the returned error is nil as long as the
// pool itself is usable.
func (p *Pool) Connect(ctx context.Context, cfg Config) error {
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sc := cfg.Servers[name]
		if sc.Disabled {
			p.logger.Debug("mcp: server %s disabled, skipping", name)
			continue
		}

		client := NewClient(name, sc)
		if err := client.Start(ctx); err != nil {
			p.logger.Warn("mcp: server %s unavailable: %v", name, err)
			continue
		}

		schemas, err := client.ListTools(ctx)
		if err != nil {
			p.logger.Warn("mcp: listing tools on %s failed: %v", name, err)
			_ = client.Stop()
			continue
		}

		p.mu.Lock()
		p.clients[name] = client
		for _, schema := range schemas {
			if excludedTool(schema.Name) {
				p.logger.Debug("mcp: hiding interactive tool %s%s%s", name, ToolSeparator, schema.Name)
				continue
			}
			p.tools = append(p.tools, adaptSchema(name, schema))
		}
		p.mu.Unlock()

		p.logger.Info("mcp: server %s ready with %d tools", name, len(schemas))
	}
	return nil
}

// Tools returns the namespaced tool definitions across all live servers.
func (p *Pool) Tools() []chat.ToolDefinition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]chat.ToolDefinition(nil), p.tools...)
}

// Dispatch routes a namespaced tool call to its server. The bool result
// mirrors the server's isError flag.
func (p *Pool) Dispatch(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	server, tool, ok := SplitName(name)
	if !ok {
		return "", false, fmt.Errorf("malformed tool name %q", name)
	}

	p.mu.RLock()
	client := p.clients[server]
	p.mu.RUnlock()
	if client == nil {
		return "", false, fmt.Errorf("unknown tool server %q", server)
	}

	result, err := client.CallTool(ctx, tool, args)
	if err != nil {
		return "", false, err
	}
	return result.Text(), result.IsError, nil
}

// CloseAll stops every server.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, client := range p.clients {
		if err := client.Stop(); err != nil {
			p.logger.Warn("mcp: stopping %s: %v", name, err)
		}
	}
	p.clients = map[string]*Client{}
	p.tools = nil
}

// adaptSchema converts an MCP inputSchema into the tool definition shape the
// model provider expects.
func adaptSchema(server string, schema ToolSchema) chat.ToolDefinition {
	def := chat.ToolDefinition{
		Name:        NamespacedName(server, schema.Name),
		Description: schema.Description,
		Parameters:  chat.ParameterSchema{Type: "object", Properties: map[string]chat.Property{}},
	}

	if t, ok := schema.InputSchema["type"].(string); ok && t != "" {
		def.Parameters.Type = t
	}
	if props, ok := schema.InputSchema["properties"].(map[string]any); ok {
		for key, raw := range props {
			prop := chat.Property{}
			if m, ok := raw.(map[string]any); ok {
				if t, ok := m["type"].(string); ok {
					prop.Type = t
				}
				if d, ok := m["description"].(string); ok {
					prop.Description = d
				}
				if enum, ok := m["enum"].([]any); ok {
					prop.Enum = enum
				}
			}
			def.Parameters.Properties[key] = prop
		}
	}
	if required, ok := schema.InputSchema["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				def.Parameters.Required = append(def.Parameters.Required, s)
			}
		}
	}
	return def
}
