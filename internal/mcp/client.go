package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kristerus/nulalabs/internal/async"
	"github.com/kristerus/nulalabs/internal/logging"
)

const (
	protocolVersion = "2024-11-05"
	callTimeout     = 30 * time.Second
)

// ToolSchema is a tool definition as the server advertises it.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolCallResult is the content returned by a tool invocation.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one piece of a tool result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Text flattens all text blocks into one string.
func (r *ToolCallResult) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

// Client speaks MCP to one tool server over stdio.
type Client struct {
	serverName string
	proc       *process
	ids        idGenerator

	mu          sync.RWMutex
	pending     map[any]chan *Response
	initialized bool

	logger logging.Logger
}

// NewClient builds a client for one configured server.
func NewClient(serverName string, cfg ServerConfig) *Client {
	logger := logging.NewComponentLogger("mcp." + serverName)
	return &Client{
		serverName: serverName,
		proc:       newProcess(cfg.Command, cfg.Args, cfg.Env, logger),
		pending:    map[any]chan *Response{},
		logger:     logger,
	}
}

// Start launches the server process and performs the initialize handshake.
func (c *Client) Start(ctx context.Context) error {
	if err := c.proc.start(ctx); err != nil {
		return err
	}
	async.Go(c.logger, "mcp.readloop."+c.serverName, c.readLoop)

	if err := c.initialize(ctx); err != nil {
		_ = c.proc.stop(5 * time.Second)
		return fmt.Errorf("initialize %s: %w", c.serverName, err)
	}
	return nil
}

// Stop shuts down the server process.
func (c *Client) Stop() error {
	return c.proc.stop(5 * time.Second)
}

func (c *Client) initialize(ctx context.Context) error {
	result, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    "nulalabs",
			"version": "0.1.0",
		},
	})
	if err != nil {
		return err
	}

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := remarshal(result, &init); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	if init.ProtocolVersion != protocolVersion {
		c.logger.Warn("protocol version mismatch: client=%s server=%s", protocolVersion, init.ProtocolVersion)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	if err := c.notify("notifications/initialized", nil); err != nil {
		c.logger.Warn("initialized notification failed: %v", err)
	}
	c.logger.Info("connected to %s v%s", init.ServerInfo.Name, init.ServerInfo.Version)
	return nil
}

// ListTools fetches the server's tool definitions.
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client %s not initialized", c.serverName)
	}
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var parsed struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := remarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse tools list: %w", err)
	}
	return parsed.Tools, nil
}

// CallTool executes one tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client %s not initialized", c.serverName)
	}
	result, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	var parsed ToolCallResult
	if err := remarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse tool result: %w", err)
	}
	return &parsed, nil
}

// IsInitialized reports whether the handshake completed.
func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && c.proc.isRunning()
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (any, error) {
	id := c.ids.next()
	data, err := encodeLine(newRequest(id, method, params))
	if err != nil {
		return nil, err
	}

	respChan := make(chan *Response, 1)
	c.mu.Lock()
	c.pending[id] = respChan
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.proc.write(data); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if resp.IsError() {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s cancelled: %w", method, ctx.Err())
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("%s timed out after %v", method, callTimeout)
	}
}

func (c *Client) notify(method string, params map[string]any) error {
	data, err := encodeLine(newNotification(method, params))
	if err != nil {
		return err
	}
	return c.proc.write(data)
}

func encodeLine(req *Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", req.Method, err)
	}
	return append(data, '\n'), nil
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.proc.reader())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		resp, err := decodeResponse(scanner.Bytes())
		if err != nil {
			c.logger.Error("bad response line: %v", err)
			continue
		}

		c.mu.RLock()
		ch, ok := c.pending[resp.ID]
		c.mu.RUnlock()
		if !ok {
			c.logger.Warn("response for unknown request id %v", resp.ID)
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("read loop: %v", err)
	}
}
