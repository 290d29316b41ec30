package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage represents one step of a paper's trip through the pipeline
type Stage int

const (
	StageUnknown Stage = iota
	StageDetected
	StageConverting
	StageConverted
	StageSummarizing
	StageSummarized
	StageIndexing
	StageIndexed
	StageFailed
)

// stageOrder is the fixed forward sequence. Failed sits outside it.
var stageOrder = []Stage{
	StageDetected,
	StageConverting,
	StageConverted,
	StageSummarizing,
	StageSummarized,
	StageIndexing,
	StageIndexed,
}

func (s Stage) String() string {
	switch s {
	case StageDetected:
		return "Detected"
	case StageConverting:
		return "Converting"
	case StageConverted:
		return "Converted"
	case StageSummarizing:
		return "Summarizing"
	case StageSummarized:
		return "Summarized"
	case StageIndexing:
		return "Indexing"
	case StageIndexed:
		return "Indexed"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ParseStage converts a stored stage name back into a Stage
func ParseStage(s string) Stage {
	for _, st := range append(stageOrder, StageFailed) {
		if strings.EqualFold(st.String(), strings.TrimSpace(s)) {
			return st
		}
	}
	return StageUnknown
}

// Terminal reports whether no further pipeline work happens in this stage
func (s Stage) Terminal() bool {
	return s == StageIndexed || s == StageFailed
}

func (s Stage) position() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next respects the stage order:
// strictly forward along the sequence, or to Failed from any non-terminal stage.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	from, to := s.position(), next.position()
	return from >= 0 && to > from
}

// AtLeast reports whether s is at or past other along the forward sequence
func (s Stage) AtLeast(other Stage) bool {
	from, to := s.position(), other.position()
	return from >= 0 && to >= 0 && from >= to
}

// NonTerminalStages lists every stage a sweep may need to pick up again
func NonTerminalStages() []Stage {
	return append([]Stage(nil), stageOrder[:len(stageOrder)-1]...)
}

// PaperRecord is the ledger's durable view of one document's progress
type PaperRecord struct {
	ID                string
	SourcePath        string
	SourceFingerprint string
	Stage             Stage
	Attempts          int    // failed attempts at the current stage
	LastError         string // empty when the last attempt succeeded
	NextAttemptAt     time.Time
	IndexRef          string // remote handle returned by the indexer
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPaperRecord creates a record for a freshly observed source file
func NewPaperRecord(id, sourcePath, fingerprint string, now time.Time) *PaperRecord {
	return &PaperRecord{
		ID:                id,
		SourcePath:        sourcePath,
		SourceFingerprint: fingerprint,
		Stage:             StageDetected,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Advance moves the record to next, clearing retry bookkeeping
func (r *PaperRecord) Advance(next Stage, now time.Time) error {
	if !r.Stage.CanAdvanceTo(next) {
		return fmt.Errorf("invalid stage transition %s -> %s for %s", r.Stage, next, r.ID)
	}
	r.Stage = next
	if next != StageFailed {
		r.Attempts = 0
		r.LastError = ""
		r.NextAttemptAt = time.Time{}
	}
	r.UpdatedAt = now
	return nil
}

// Reset returns the record to Detected for a new source fingerprint.
// This is the only backward move a record can make.
func (r *PaperRecord) Reset(sourcePath, fingerprint string, now time.Time) {
	r.SourcePath = sourcePath
	r.SourceFingerprint = fingerprint
	r.Stage = StageDetected
	r.Attempts = 0
	r.LastError = ""
	r.NextAttemptAt = time.Time{}
	r.IndexRef = ""
	r.UpdatedAt = now
}
