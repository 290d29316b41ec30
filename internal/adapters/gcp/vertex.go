package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"paperflow/internal/adapters/llmtext"
	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// generator is the slice of *genai.GenerativeModel the adapters use
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexClient owns the Vertex AI connection and the configured model
type VertexClient struct {
	Model      *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient connects to Vertex AI and prepares a text model
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(modelName)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{Model: model, baseClient: baseClient}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// GeminiSummarizer implements ports.Summarizer with a Gemini model on Vertex AI
type GeminiSummarizer struct {
	model    generator
	maxChars int
}

var _ ports.Summarizer = (*GeminiSummarizer)(nil)

func NewGeminiSummarizer(client *VertexClient, maxChars int) *GeminiSummarizer {
	return &GeminiSummarizer{model: client.Model, maxChars: maxChars}
}

func (g *GeminiSummarizer) Name() string {
	return "gemini"
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, documentID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", application.Fatal("summarize", fmt.Errorf("unsupported input: %s has no text", documentID))
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(llmtext.SummaryPrompt(text, g.maxChars)))
	if err != nil {
		return "", classify("summarize", err)
	}

	summary := llmtext.StripCodeFence(extractText(resp))
	if summary == "" {
		return "", application.Transient("summarize", errors.New("gemini returned no text"))
	}
	if len(summary) < 500 && llmtext.IsRefusal(summary) {
		return "", application.Fatal("summarize", fmt.Errorf("unsupported input: model refused to summarize %s", documentID))
	}
	return llmtext.SummaryDocument(documentID, summary), nil
}

func (g *GeminiSummarizer) Verify(ctx context.Context, documentID, claim, text string) (*ports.Verification, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(llmtext.VerifyPrompt(claim, text, g.maxChars)))
	if err != nil {
		return nil, classify("verify", err)
	}
	v, err := llmtext.ParseVerification(extractText(resp))
	if err != nil {
		return nil, application.Transient("verify", fmt.Errorf("%s: %w", documentID, err))
	}
	return v, nil
}

// extractText concatenates the text parts of the first candidate
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// classify maps Google API failures onto the retry taxonomy
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return application.Transient(op, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return application.Transient(op, err)
		case gerr.Code == http.StatusBadRequest || gerr.Code == http.StatusForbidden || gerr.Code == http.StatusUnauthorized:
			return application.Fatal(op, err)
		}
	}

	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied, codes.Unauthenticated:
		return application.Fatal(op, err)
	default:
		// ResourceExhausted, Unavailable, DeadlineExceeded and anything unrecognized
		return application.Transient(op, err)
	}
}
