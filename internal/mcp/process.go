package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kristerus/nulalabs/internal/async"
	"github.com/kristerus/nulalabs/internal/logging"
)

// process runs one tool-server subprocess with line-delimited stdio.
type process struct {
	command string
	args    []string
	env     []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	running bool

	logger logging.Logger
}

func newProcess(command string, args []string, env map[string]string, logger logging.Logger) *process {
	p := &process{
		command: command,
		args:    args,
		logger:  logging.OrNop(logger),
	}
	if len(env) > 0 {
		p.env = os.Environ()
		for k, v := range env {
			p.env = append(p.env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return p
}

func (p *process) start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("process already running")
	}

	resolved, err := resolveExecutable(p.command)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, resolved, p.args...)
	if p.env != nil {
		cmd.Env = p.env
	}

	if p.stdin, err = cmd.StdinPipe(); err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if p.stdout, err = cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if p.stderr, err = cmd.StderrPipe(); err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command, err)
	}
	p.cmd = cmd
	p.running = true
	p.logger.Info("mcp: started %s (pid %d)", p.command, cmd.Process.Pid)

	async.Go(p.logger, "mcp.stderr."+p.command, p.drainStderr)
	return nil
}

func resolveExecutable(command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", fmt.Errorf("command is required")
	}
	resolved, err := exec.LookPath(trimmed)
	if err != nil {
		return "", fmt.Errorf("command not found: %w", err)
	}
	return resolved, nil
}

func (p *process) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.stdin == nil {
		return fmt.Errorf("process not running")
	}
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", p.command, err)
	}
	return nil
}

func (p *process) reader() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout
}

// stop closes stdin for a graceful exit, killing after the timeout.
func (p *process) stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cmd := p.cmd
	stdin := p.stdin
	p.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	done := make(chan error, 1)
	async.Go(p.logger, "mcp.wait."+p.command, func() {
		done <- cmd.Wait()
	})

	select {
	case err := <-done:
		p.logger.Debug("mcp: %s exited: %v", p.command, err)
		return nil
	case <-time.After(timeout):
		p.logger.Warn("mcp: %s did not exit in %v, killing", p.command, timeout)
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}

func (p *process) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *process) drainStderr() {
	if p.stderr == nil {
		return
	}
	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		p.logger.Debug("mcp: [%s stderr] %s", p.command, scanner.Text())
	}
}
