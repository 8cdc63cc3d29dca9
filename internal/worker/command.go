package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"frontier/internal/discovery"
	"frontier/internal/lease"
)

// Placeholder is replaced by the item identifier in command arguments.
const Placeholder = "{}"

// CommandProcessor fetches items by running an external command. A zero
// exit status is success and the last non-blank stdout line, when present,
// is recorded as the output path.
type CommandProcessor struct {
	binary string
	args   []string
}

// NewCommandProcessor parses a whitespace-separated command template. When
// no argument contains Placeholder the identifier is appended.
func NewCommandProcessor(template string) (*CommandProcessor, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return nil, errors.New("command template is empty")
	}
	args := fields[1:]
	if !strings.Contains(template, Placeholder) {
		args = append(args, Placeholder)
	}
	return &CommandProcessor{binary: fields[0], args: args}, nil
}

// Command renders the argv for identifier.
func (p *CommandProcessor) Command(identifier string) (string, []string) {
	args := make([]string, len(p.args))
	for i, arg := range p.args {
		args[i] = strings.ReplaceAll(arg, Placeholder, identifier)
	}
	return p.binary, args
}

// Process runs the command for entry.
func (p *CommandProcessor) Process(ctx context.Context, entry discovery.Entry) lease.Result {
	binary, args := p.Command(entry.Identifier)
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		reason := lastLine(stderr.String())
		if reason == "" {
			reason = err.Error()
		} else {
			reason = fmt.Sprintf("%s: %s", err, reason)
		}
		return lease.Failed(entry.Identifier, reason)
	}

	path := lastLine(stdout.String())
	if path == "" {
		return lease.Succeeded(entry.Identifier, nil)
	}
	out := &lease.Output{Path: path}
	if info, err := os.Stat(path); err == nil {
		out.Bytes = info.Size()
	}
	return lease.Succeeded(entry.Identifier, out)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
