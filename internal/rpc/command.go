package rpc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ServerProcess is a language-server child process with a stdio connection
// attached to its pipes.
type ServerProcess struct {
	Conn *Endpoint

	cmd    *exec.Cmd
	exitCh chan error
}

// CommandOption configures a spawned server process.
type CommandOption func(*exec.Cmd)

// WithWorkDir sets the server's working directory.
func WithWorkDir(dir string) CommandOption {
	return func(cmd *exec.Cmd) {
		cmd.Dir = dir
	}
}

// WithEnv appends environment variables (KEY=VALUE form).
func WithEnv(env ...string) CommandOption {
	return func(cmd *exec.Cmd) {
		cmd.Env = append(cmd.Env, env...)
	}
}

// DialCommand starts a language-server executable and connects to it over
// stdin/stdout. Stderr is discarded.
func DialCommand(ctx context.Context, command string, args []string, opts ...CommandOption) (*ServerProcess, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = io.Discard

	for _, opt := range opts {
		opt(cmd)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	p := &ServerProcess{
		Conn:   NewStdio(stdout, stdin, stdin),
		cmd:    cmd,
		exitCh: make(chan error, 1),
	}
	go func() {
		p.exitCh <- cmd.Wait()
	}()
	return p, nil
}

// Exited returns a channel that receives once when the process exits.
func (p *ServerProcess) Exited() <-chan error {
	return p.exitCh
}

// Kill closes the connection and terminates the process if still running.
func (p *ServerProcess) Kill() {
	p.Conn.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}
