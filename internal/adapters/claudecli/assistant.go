package claudecli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"paperflow/internal/adapters/llmtext"
	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// runFunc executes the claude binary with prompt on stdin
type runFunc func(ctx context.Context, stdin string, args ...string) (stdout, stderr []byte, err error)

// Assistant implements ports.Summarizer using Claude Code CLI
type Assistant struct {
	model    string
	maxChars int
	binary   string
	run      runFunc
}

var _ ports.Summarizer = (*Assistant)(nil)

// Option configures the Assistant
type Option func(*Assistant)

// WithModel sets the Claude model to use
func WithModel(model string) Option {
	return func(a *Assistant) {
		a.model = model
	}
}

// WithMaxChars sets how much paper text is sent before truncating
func WithMaxChars(n int) Option {
	return func(a *Assistant) {
		a.maxChars = n
	}
}

// WithBinary overrides the claude executable name or path
func WithBinary(path string) Option {
	return func(a *Assistant) {
		a.binary = path
	}
}

// NewAssistant creates a new Claude CLI assistant
func NewAssistant(opts ...Option) *Assistant {
	a := &Assistant{
		model:    "sonnet",
		maxChars: 150000,
		binary:   "claude",
	}
	a.run = a.exec
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assistant) Name() string {
	return "claude"
}

// claudeResponse represents the JSON output from claude CLI
type claudeResponse struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	DurationMS   int     `json:"duration_ms"`
	IsError      bool    `json:"is_error"`
	NumTurns     int     `json:"num_turns"`
	Result       string  `json:"result"`
	SessionID    string  `json:"session_id"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Summarize asks Claude for the structured abstract of a converted paper
func (a *Assistant) Summarize(ctx context.Context, documentID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", application.Fatal("summarize", fmt.Errorf("unsupported input: %s has no text", documentID))
	}

	result, err := a.ask(ctx, "summarize", llmtext.SummaryPrompt(text, a.maxChars))
	if err != nil {
		return "", err
	}

	summary := llmtext.StripCodeFence(result)
	if summary == "" {
		return "", application.Transient("summarize", errors.New("claude returned an empty summary"))
	}
	if len(summary) < 500 && llmtext.IsRefusal(summary) {
		return "", application.Fatal("summarize", fmt.Errorf("unsupported input: model refused to summarize %s", documentID))
	}
	return llmtext.SummaryDocument(documentID, summary), nil
}

// Verify checks a claim against the paper text
func (a *Assistant) Verify(ctx context.Context, documentID, claim, text string) (*ports.Verification, error) {
	result, err := a.ask(ctx, "verify", llmtext.VerifyPrompt(claim, text, a.maxChars))
	if err != nil {
		return nil, err
	}
	v, err := llmtext.ParseVerification(result)
	if err != nil {
		return nil, application.Transient("verify", fmt.Errorf("%s: %w", documentID, err))
	}
	return v, nil
}

// ask runs one non-interactive prompt and returns the result text
func (a *Assistant) ask(ctx context.Context, op, prompt string) (string, error) {
	args := []string{
		"-p",
		"--output-format", "json",
		"--model", a.model,
	}

	stdout, stderr, err := a.run(ctx, prompt, args...)
	if err != nil {
		return "", classifyRunError(op, err, stderr)
	}

	// Parse the claude CLI JSON response
	var response claudeResponse
	if err := json.Unmarshal(stdout, &response); err != nil {
		return "", application.Transient(op, fmt.Errorf("failed to parse claude response: %w", err))
	}

	if response.IsError {
		return "", classifyResult(op, response.Result)
	}
	return response.Result, nil
}

func (a *Assistant) exec(ctx context.Context, stdin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, a.binary, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"overloaded",
	"529",
	"timeout",
	"timed out",
	"econnreset",
	"network",
}

func classifyRunError(op string, err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return &application.ConfigurationError{
			Field:   "summarizer.binary",
			Message: fmt.Sprintf("claude CLI not installed: %v", err),
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return application.Transient(op, err)
	}

	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	// Anything the CLI does not explain is worth another try
	return application.Transient(op, fmt.Errorf("claude CLI error: %s", msg))
}

func classifyResult(op, result string) error {
	lower := strings.ToLower(result)
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return application.Transient(op, fmt.Errorf("claude returned an error: %s", result))
		}
	}
	if strings.Contains(lower, "prompt is too long") || strings.Contains(lower, "invalid") {
		return application.Fatal(op, fmt.Errorf("unsupported input: %s", result))
	}
	return application.Transient(op, fmt.Errorf("claude returned an error: %s", result))
}

// IsAvailable checks if the claude CLI is installed and accessible
func (a *Assistant) IsAvailable() bool {
	_, err := exec.LookPath(a.binary)
	return err == nil
}
