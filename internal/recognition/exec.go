package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// ExecRecognizer runs the model as a subprocess per clip:
//
//	<command...> --video <path>
//
// stdout is either {"text": "..."} or the bare transcription.
type ExecRecognizer struct {
	cmd []string
}

// NewExecRecognizer parses command with shell quoting rules
func NewExecRecognizer(command string) (*ExecRecognizer, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	return &ExecRecognizer{cmd: args}, nil
}

// Recognize runs the command against videoPath
func (r *ExecRecognizer) Recognize(ctx context.Context, videoPath string) (string, error) {
	args := append(append([]string{}, r.cmd[1:]...), "--video", videoPath)
	command := exec.CommandContext(ctx, r.cmd[0], args...)
	// grandchildren may hold stdout open after the kill
	command.WaitDelay = 2 * time.Second
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("recognizer command aborted: %w", ctxErr)
		}
		return "", fmt.Errorf("recognizer command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseOutput(stdout.Bytes())
}

// parseOutput accepts a JSON object or plain text
func parseOutput(out []byte) (string, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return "", nil
	}
	if trimmed[0] != '{' {
		return string(trimmed), nil
	}
	var resp response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return "", fmt.Errorf("decode recognizer output: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("recognizer: %s", resp.Error)
	}
	return strings.TrimSpace(resp.Text), nil
}

// HealthCheck reports whether the command's executable can be found
func (r *ExecRecognizer) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(r.cmd[0]); err != nil {
		return false, fmt.Errorf("recognizer executable: %w", err)
	}
	return true, nil
}

// Close is a no-op; each call owns its process
func (r *ExecRecognizer) Close() error {
	return nil
}
