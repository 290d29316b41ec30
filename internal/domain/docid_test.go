package domain

import "testing"

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{"plain", "vaswani2017.pdf", "vaswani2017"},
		{"uppercase extension", "Vaswani2017.PDF", "vaswani2017"},
		{"spaces collapse", "Attention Is  All You Need.pdf", "attention-is-all-you-need"},
		{"path is ignored", "/tmp/papers/he2016.pdf", "he2016"},
		{"punctuation", "Smith (2020) [draft].pdf", "smith-2020-draft"},
		{"nothing left", "???.pdf", "paper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeID(tt.fileName); got != tt.want {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.fileName, got, tt.want)
			}
		})
	}
}

func TestCollisionID(t *testing.T) {
	got := CollisionID("vaswani2017", "0123456789abcdef")
	if got != "vaswani2017-01234567" {
		t.Errorf("unexpected collision id %q", got)
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF("a/b/c.PDF") {
		t.Error("expected .PDF to be a pdf")
	}
	if IsPDF("notes.md") {
		t.Error("expected .md not to be a pdf")
	}
}
