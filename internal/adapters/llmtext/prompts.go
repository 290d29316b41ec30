// Package llmtext holds the prompts and response parsing shared by the
// language-model adapters.
package llmtext

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"paperflow/internal/ports"
)

const summaryPrompt = `Summarize this academic paper concisely. Include:

1. **Main Contribution**: What's the key innovation/finding? (2-3 sentences)
2. **Method**: How did they do it? (2-3 sentences)
3. **Results**: Key quantitative results or findings
4. **Relevance**: What problems does this solve? Who should read this?
5. **Citation**: Suggested BibTeX key (format: authorYYYYkeyword)

Be concise but precise. Use technical language appropriate for a PhD thesis.

---

PAPER CONTENT:

%s
`

const verifyPrompt = `You are checking whether a claim made in a thesis is supported by a cited paper.

Claim: "%s"

Read the paper below and decide whether it supports the claim.

Return ONLY a JSON object (no markdown, no code blocks):
{"verified": true, "confidence": 0.9, "quote": "exact sentence from the paper", "notes": "brief explanation"}

Use "verified": false when the paper contradicts the claim or says something different,
and "verified": null when the paper neither supports nor contradicts it.
Confidence is a number from 0.0 to 1.0. The quote must be copied verbatim from the paper.

---

PAPER CONTENT:

%s
`

const rankPrompt = `Given these papers, rank them by relevance to this query:

Query: %s

Papers available:
%s

Return a JSON array of the top %d most relevant papers with format:
[{"id": "paper-id", "score": 0.95, "reason": "brief explanation"}]

Only include papers that are actually relevant. Score from 0.0 to 1.0.
Return ONLY the JSON array, no other text. If nothing matches, return [].`

const passagesPrompt = `From this paper, extract the %d most relevant passages for:

Query: %s

Return each passage as a separate paragraph. Include page/section references if visible.
Focus on exact quotes and specific details, not summaries.

---

PAPER CONTENT:

%s
`

// TruncatedMarker is appended when paper text is cut to fit the model context
const TruncatedMarker = "\n\n[TRUNCATED]"

// Truncate cuts content to maxChars runes, marking the cut
func Truncate(content string, maxChars int) string {
	if maxChars <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars]) + TruncatedMarker
}

// SummaryPrompt builds the summarization request for a paper
func SummaryPrompt(text string, maxChars int) string {
	return fmt.Sprintf(summaryPrompt, Truncate(text, maxChars))
}

// SummaryDocument wraps a model summary with the header stored on disk
func SummaryDocument(documentID, summary string) string {
	return fmt.Sprintf("# Summary: %s\n\n> Source: `%s.md`\n\n%s\n", documentID, documentID, strings.TrimSpace(summary))
}

// VerifyPrompt builds the claim verification request
func VerifyPrompt(claim, text string, maxChars int) string {
	return fmt.Sprintf(verifyPrompt, strings.ReplaceAll(claim, `"`, `'`), Truncate(text, maxChars))
}

// RankPrompt asks the model to rank the listed documents against query
func RankPrompt(query string, documents []string, topK int) string {
	var list strings.Builder
	for _, d := range documents {
		list.WriteString("- " + d + "\n")
	}
	return fmt.Sprintf(rankPrompt, query, strings.TrimRight(list.String(), "\n"), topK)
}

// PassagesPrompt asks for verbatim passages from one paper
func PassagesPrompt(query, text string, max, maxChars int) string {
	return fmt.Sprintf(passagesPrompt, max, query, Truncate(text, maxChars))
}

var codeBlockRe = regexp.MustCompile("```(?:json|markdown)?\\s*\\n?([\\s\\S]*?)\\n?```")

// StripCodeFence returns the body of the first fenced block, or the trimmed input
func StripCodeFence(result string) string {
	result = strings.TrimSpace(result)
	if matches := codeBlockRe.FindStringSubmatch(result); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return result
}

// extractJSON finds the outermost open...close span in the response
func extractJSON(result string, open, close string) (string, bool) {
	result = StripCodeFence(result)
	start := strings.Index(result, open)
	end := strings.LastIndex(result, close)
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return result[start : end+1], true
}

type verificationJSON struct {
	Verified   *bool   `json:"verified"`
	Confidence float64 `json:"confidence"`
	Quote      string  `json:"quote"`
	Notes      string  `json:"notes"`
}

// ParseVerification extracts the verdict object from a model response
func ParseVerification(result string) (*ports.Verification, error) {
	jsonStr, ok := extractJSON(result, "{", "}")
	if !ok {
		return nil, fmt.Errorf("no valid JSON object found in response")
	}

	var raw verificationJSON
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse verification JSON: %w (json: %s)", err, jsonStr)
	}

	v := &ports.Verification{
		Verdict:    ports.VerdictUnclear,
		Confidence: clamp(raw.Confidence),
		Quote:      strings.TrimSpace(raw.Quote),
		Notes:      strings.TrimSpace(raw.Notes),
	}
	if raw.Verified != nil {
		if *raw.Verified {
			v.Verdict = ports.VerdictVerified
		} else {
			v.Verdict = ports.VerdictNotVerified
		}
	}
	return v, nil
}

type rankingJSON struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ParseRanking extracts ranked hits, dropping entries without an ID and
// keeping at most topK of them.
func ParseRanking(result string, topK int) ([]ports.SearchHit, error) {
	jsonStr, ok := extractJSON(result, "[", "]")
	if !ok {
		if strings.Contains(result, "[]") {
			return []ports.SearchHit{}, nil
		}
		return nil, fmt.Errorf("no valid JSON array found in response")
	}

	var raw []rankingJSON
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse search results JSON: %w (json: %s)", err, jsonStr)
	}

	hits := []ports.SearchHit{}
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		hits = append(hits, ports.SearchHit{
			DocumentID: strings.TrimSuffix(r.ID, ".md"),
			Score:      clamp(r.Score),
			Snippet:    r.Reason,
		})
		if topK > 0 && len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// SplitPassages splits a model answer into paragraphs, keeping at most max
func SplitPassages(result string, max int) []string {
	var passages []string
	for _, p := range strings.Split(StripCodeFence(result), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			passages = append(passages, p)
		}
		if max > 0 && len(passages) == max {
			break
		}
	}
	return passages
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// IsRefusal reports whether a generated answer is a model refusal
func IsRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
