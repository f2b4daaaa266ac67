package collaborators

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	emptyCommandReply = "No command given."
	defaultShell      = "/bin/sh"
)

// ShellRunner executes commands through a local shell
type ShellRunner struct {
	shell  string
	logger *zap.Logger
}

// NewShellRunner creates a ShellRunner using shell, /bin/sh when empty
func NewShellRunner(shell string, logger *zap.Logger) *ShellRunner {
	if shell == "" {
		shell = defaultShell
	}
	return &ShellRunner{
		shell:  shell,
		logger: logger,
	}
}

// Run executes command and returns its combined, trimmed output. A command
// that exits non-zero is reported in the result text, not as an error.
func (r *ShellRunner) Run(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return emptyCommandReply, nil
	}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("command interrupted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Debug("command exited with error",
				zap.String("command", command),
				zap.Int("exit_code", exitErr.ExitCode()),
			)
			return "Error:\n" + text, nil
		}
		return "", fmt.Errorf("failed to run command: %w", err)
	}

	r.logger.Debug("command executed",
		zap.String("command", command),
		zap.Int("output_length", len(text)),
	)
	return text, nil
}

// ExecuteRequest is the body sent to a remote tool service
type ExecuteRequest struct {
	Command string `json:"command"`
}

// ExecuteResponse is the body returned by a remote tool service
type ExecuteResponse struct {
	Result string `json:"result"`
}

// HTTPToolRunner calls a remote tool service at POST <base>/execute
type HTTPToolRunner struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPToolRunner creates a new HTTPToolRunner
func NewHTTPToolRunner(baseURL string, httpClient *http.Client, logger *zap.Logger) *HTTPToolRunner {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPToolRunner{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Run sends the command and returns the remote result
func (r *HTTPToolRunner) Run(ctx context.Context, command string) (string, error) {
	var resp ExecuteResponse
	if err := postJSON(ctx, r.httpClient, joinURL(r.baseURL, "/execute"), ExecuteRequest{Command: command}, &resp); err != nil {
		r.logger.Warn("remote tool execution failed", zap.Error(err))
		return "", err
	}
	return resp.Result, nil
}
