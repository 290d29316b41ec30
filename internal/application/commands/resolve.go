package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// maxCandidates bounds the suggestions attached to a NotFound error
const maxCandidates = 8

// ResolveID maps a user-supplied name onto a known document ID: an exact ID
// first, else the single record whose ID contains the query. Anything else
// is a NotFound error listing the closest candidates.
func ResolveID(ctx context.Context, ledger ports.Ledger, query string) (string, error) {
	query = strings.TrimSpace(query)
	if err := application.ValidateRequired("documentID", query); err != nil {
		return "", err
	}

	rec, err := ledger.Get(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to load record: %w", err)
	}
	if rec != nil {
		return rec.ID, nil
	}

	records, err := ledger.Scan(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list records: %w", err)
	}

	needle := strings.ToLower(query)
	var contained []string
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.ID), needle) {
			contained = append(contained, r.ID)
		}
	}

	switch len(contained) {
	case 1:
		return contained[0], nil
	case 0:
		return "", &application.NotFoundError{What: "paper", ID: query, Candidates: closest(records, query)}
	default:
		sort.Strings(contained)
		if len(contained) > maxCandidates {
			contained = contained[:maxCandidates]
		}
		return "", fmt.Errorf("%w: %w", application.ErrAmbiguousID,
			&application.NotFoundError{What: "paper", ID: query, Candidates: contained})
	}
}

// closest ranks record IDs by fuzzy similarity to query
func closest(records []domain.PaperRecord, query string) []string {
	type scored struct {
		id    string
		score int
	}
	var matches []scored
	for _, r := range records {
		if s := FuzzyScore(r.ID, query); s > 0 {
			matches = append(matches, scored{r.ID, s})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].id < matches[j].id
	})

	var ids []string
	for _, m := range matches {
		if len(ids) == maxCandidates {
			break
		}
		ids = append(ids, m.id)
	}
	return ids
}

// FuzzyScore rates how well target matches query; 0 means no match
func FuzzyScore(target, query string) int {
	target = strings.ToLower(target)
	query = strings.ToLower(query)

	if len(query) == 0 {
		return 0
	}

	if strings.Contains(target, query) {
		score := 100
		if strings.HasPrefix(target, query) {
			score += 50
		}
		return score
	}

	// chars in order, rewarding runs and word starts
	score := 0
	queryIdx := 0
	prevMatchIdx := -1

	for i := 0; i < len(target) && queryIdx < len(query); i++ {
		if target[i] != query[queryIdx] {
			continue
		}
		if prevMatchIdx == i-1 {
			score += 10
		}
		if i == 0 {
			score += 15
		}
		if i > 0 && (target[i-1] == '-' || target[i-1] == '_' || target[i-1] == '.') {
			score += 10
		}
		score++
		prevMatchIdx = i
		queryIdx++
	}

	if queryIdx == len(query) {
		return score
	}
	return 0
}
