package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ArtifactKind identifies one of the on-disk products of a document
type ArtifactKind int

const (
	ArtifactUnknown ArtifactKind = iota
	ArtifactSource
	ArtifactText
	ArtifactSummary
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactSource:
		return "source"
	case ArtifactText:
		return "text"
	case ArtifactSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// ParseArtifactKind converts a stored kind name back into an ArtifactKind
func ParseArtifactKind(s string) ArtifactKind {
	switch s {
	case "source":
		return ArtifactSource
	case "text":
		return ArtifactText
	case "summary":
		return ArtifactSummary
	default:
		return ArtifactUnknown
	}
}

func (k ArtifactKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ArtifactKind) UnmarshalText(b []byte) error {
	*k = ParseArtifactKind(string(b))
	if *k == ArtifactUnknown {
		return fmt.Errorf("unknown artifact kind %q", string(b))
	}
	return nil
}

// Artifact maps (document, kind) to a file and its fingerprints
type Artifact struct {
	DocumentID        string       `json:"documentId"`
	Kind              ArtifactKind `json:"kind"`
	Path              string       `json:"path"`
	Fingerprint       string       `json:"fingerprint"`       // hash of the artifact content
	SourceFingerprint string       `json:"sourceFingerprint"` // source hash it was derived from
}

// MatchesSource reports whether the artifact was produced from the given source fingerprint
func (a *Artifact) MatchesSource(fingerprint string) bool {
	return a != nil && fingerprint != "" && a.SourceFingerprint == fingerprint
}

// FingerprintBytes returns the content hash used everywhere as a fingerprint
func FingerprintBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// FingerprintFile hashes a file's content
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
