package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/user/foreman/internal/delivery"
	"github.com/user/foreman/internal/types"
)

const (
	maxCLILine  = 10 * 1024 * 1024
	maxToolLine = 400
)

// CLIRunner runs the claude CLI in print mode and parses its stream-json
// output.
type CLIRunner struct {
	Path  string
	Model string
}

func NewCLI(path, model string) *CLIRunner {
	if path == "" {
		path = "claude"
	}
	return &CLIRunner{Path: path, Model: model}
}

// Args returns the command line for req.
func (r *CLIRunner) Args(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}
	if req.ResumeToken != "" {
		args = append(args, "--resume", req.ResumeToken)
	}
	if req.System != "" {
		args = append(args, "--append-system-prompt", req.System)
	}
	if r.Model != "" {
		args = append(args, "--model", r.Model)
	}
	// The CLI cannot call back into a Go policy; anything short of allow-all
	// leaves the CLI's own permission checks in place.
	if allowsAll(req.Policy) {
		args = append(args, "--permission-mode", "bypassPermissions")
	}
	return args
}

func (r *CLIRunner) Start(ctx context.Context, req Request) (Stream, error) {
	return newPipe(ctx, func(ctx context.Context, emit func(Chunk) bool) error {
		cmd := exec.CommandContext(ctx, r.Path, r.Args(req)...)
		cmd.Dir = req.WorkDir
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("%w: stdout pipe: %w", types.ErrExternalTask, err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: start %s: %w", types.ErrExternalTask, r.Path, err)
		}

		perr := parseStream(stdout, emit)
		if perr != nil {
			// Unblock the child if it is still writing.
			_, _ = io.Copy(io.Discard, stdout)
		}
		werr := cmd.Wait()
		switch {
		case perr != nil:
			return perr
		case werr != nil:
			return fmt.Errorf("%w: %s: %w: %s", types.ErrExternalTask, r.Path, werr, tail(stderr.String(), 500))
		}
		return nil
	}), nil
}

// cliEvent is one line of claude --output-format stream-json.
type cliEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	Message   struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
	} `json:"message"`
}

// parseStream emits chunks for each line of r until EOF, an error result,
// or the consumer stops.
func parseStream(r io.Reader, emit func(Chunk) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxCLILine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev cliEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// Non-JSON lines are diagnostics.
			continue
		}
		chunks, err := chunksOf(ev)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			if !emit(c) {
				return nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: read output: %w", types.ErrExternalTask, err)
	}
	return nil
}

func chunksOf(ev cliEvent) ([]Chunk, error) {
	switch ev.Type {
	case "system":
		if ev.SessionID == "" {
			return nil, nil
		}
		return []Chunk{{ResumeToken: ev.SessionID}}, nil
	case "assistant":
		var out []Chunk
		for _, c := range ev.Message.Content {
			switch c.Type {
			case "text":
				out = append(out, Chunk{Role: "assistant", Content: c.Text, ResumeToken: ev.SessionID})
			case "tool_use":
				out = append(out, Chunk{Role: "tool", Content: toolLine(c.Name, c.Input), ResumeToken: ev.SessionID})
			}
		}
		return out, nil
	case "result":
		if ev.IsError {
			return nil, fmt.Errorf("%w: %s: %s", types.ErrExternalTask, ev.Subtype, ev.Result)
		}
		return []Chunk{{ResumeToken: ev.SessionID}}, nil
	}
	return nil, nil
}

// toolLine renders a tool use for the transcript.
func toolLine(name string, input json.RawMessage) string {
	in := strings.TrimSpace(string(input))
	if head, cut := delivery.Truncate(in, maxToolLine); cut {
		in = head + "…"
	}
	if in == "" || in == "{}" {
		return name
	}
	return name + " " + in
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
