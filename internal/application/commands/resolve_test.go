package commands

import "testing"

func TestFuzzyScore(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		query     string
		wantScore int
		wantMin   int
	}{
		{name: "exact match", target: "vaswani2017", query: "vaswani2017", wantScore: 150},
		{name: "prefix match", target: "vaswani2017", query: "vaswani", wantScore: 150},
		{name: "substring match", target: "devlin2019-bert", query: "bert", wantScore: 100},
		{name: "case insensitive", target: "VASWANI2017", query: "vaswani", wantMin: 100},
		{name: "chars in order", target: "vaswani2017", query: "vsw", wantMin: 1},
		{name: "no match", target: "vaswani2017", query: "xyz", wantScore: 0},
		{name: "empty query", target: "vaswani2017", query: "", wantScore: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := FuzzyScore(tt.target, tt.query)

			switch {
			case tt.wantScore > 0:
				if score != tt.wantScore {
					t.Errorf("expected score %d, got %d", tt.wantScore, score)
				}
			case tt.wantMin > 0:
				if score < tt.wantMin {
					t.Errorf("expected score >= %d, got %d", tt.wantMin, score)
				}
			default:
				if score != 0 {
					t.Errorf("expected score 0, got %d", score)
				}
			}
		})
	}
}

func TestFuzzyScore_Ordering(t *testing.T) {
	query := "bert"

	prefix := FuzzyScore("bert-base", query)
	substring := FuzzyScore("devlin2019-bert", query)
	scattered := FuzzyScore("b-e-r-t", query)

	if prefix <= substring {
		t.Errorf("prefix should beat substring: %d <= %d", prefix, substring)
	}
	if substring <= scattered {
		t.Errorf("substring should beat scattered: %d <= %d", substring, scattered)
	}
}
