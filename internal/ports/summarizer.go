package ports

import "context"

// Verdict is the verifier's judgement of a claim against a paper
type Verdict int

const (
	VerdictUnclear Verdict = iota
	VerdictVerified
	VerdictNotVerified
)

func (v Verdict) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictNotVerified:
		return "not verified"
	default:
		return "unclear"
	}
}

// Verification is the result of checking one claim against one paper
type Verification struct {
	Verdict    Verdict
	Confidence float64 // 0-1
	Quote      string  // supporting quote from the paper
	Notes      string
}

// Summarizer produces abstracts and checks claims using a language model
type Summarizer interface {
	Name() string

	// Summarize returns the generated abstract for a converted paper
	Summarize(ctx context.Context, documentID, text string) (string, error)

	// Verify checks whether claim is supported by the paper text
	Verify(ctx context.Context, documentID, claim, text string) (*Verification, error)
}
