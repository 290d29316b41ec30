package commands

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"paperflow/internal/application"
	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]domain.PaperRecord
	writes  int
}

func newFakeLedger(records ...domain.PaperRecord) *fakeLedger {
	l := &fakeLedger{records: make(map[string]domain.PaperRecord)}
	for _, r := range records {
		l.records[r.ID] = r
	}
	return l
}

func (l *fakeLedger) Get(_ context.Context, id string) (*domain.PaperRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *fakeLedger) Upsert(_ context.Context, rec *domain.PaperRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.ID] = *rec
	l.writes++
	return nil
}

func (l *fakeLedger) Scan(_ context.Context, stages ...domain.Stage) ([]domain.PaperRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.PaperRecord
	for _, rec := range l.records {
		keep := len(stages) == 0
		for _, s := range stages {
			if rec.Stage == s {
				keep = true
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *fakeLedger) Close() error { return nil }

type storedArtifact struct {
	content  string
	sourceFP string
}

type fakeArtifacts struct {
	items   map[string]storedArtifact
	cleared []string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{items: make(map[string]storedArtifact)}
}

func (a *fakeArtifacts) key(id string, kind domain.ArtifactKind) string {
	return id + "/" + kind.String()
}

func (a *fakeArtifacts) add(id string, kind domain.ArtifactKind, sourceFP, content string) {
	a.items[a.key(id, kind)] = storedArtifact{content: content, sourceFP: sourceFP}
}

func (a *fakeArtifacts) Lookup(id string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	item, ok := a.items[a.key(id, kind)]
	if !ok {
		return nil, nil
	}
	return &domain.Artifact{DocumentID: id, Kind: kind, Path: a.Path(id, kind), SourceFingerprint: item.sourceFP}, nil
}

func (a *fakeArtifacts) Current(id string, kind domain.ArtifactKind, sourceFP string) (*domain.Artifact, error) {
	art, _ := a.Lookup(id, kind)
	if art == nil || art.SourceFingerprint != sourceFP {
		return nil, nil
	}
	return art, nil
}

func (a *fakeArtifacts) Put(id string, kind domain.ArtifactKind, sourceFP string, content []byte) (*domain.Artifact, error) {
	a.add(id, kind, sourceFP, string(content))
	return a.Lookup(id, kind)
}

func (a *fakeArtifacts) Read(id string, kind domain.ArtifactKind) ([]byte, error) {
	item, ok := a.items[a.key(id, kind)]
	if !ok {
		return nil, &application.NotFoundError{What: kind.String(), ID: id}
	}
	return []byte(item.content), nil
}

func (a *fakeArtifacts) Clear(id string, kinds ...domain.ArtifactKind) error {
	for _, kind := range kinds {
		delete(a.items, a.key(id, kind))
		a.cleared = append(a.cleared, a.key(id, kind))
	}
	return nil
}

func (a *fakeArtifacts) Path(id string, kind domain.ArtifactKind) string {
	return "/lib/" + a.key(id, kind)
}

func (a *fakeArtifacts) AssetDir(id string) string { return "/lib/assets/" + id }

type fakeVerifier struct {
	claims []string
	result *ports.Verification
}

func (v *fakeVerifier) Name() string { return "fake" }

func (v *fakeVerifier) Summarize(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (v *fakeVerifier) Verify(_ context.Context, id, claim, text string) (*ports.Verification, error) {
	v.claims = append(v.claims, id+": "+claim)
	if v.result != nil {
		return v.result, nil
	}
	if strings.Contains(text, claim) {
		return &ports.Verification{Verdict: ports.VerdictVerified, Confidence: 0.9, Quote: claim}, nil
	}
	return &ports.Verification{Verdict: ports.VerdictNotVerified, Confidence: 0.8}, nil
}

type fakeIndexer struct {
	remote  map[string]string // id -> fingerprint
	indexed []ports.IndexDocument
	failOn  string
	hits    []ports.SearchHit
	topK    int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{remote: make(map[string]string)}
}

func (x *fakeIndexer) Name() string { return "fake" }

func (x *fakeIndexer) Has(_ context.Context, id, fp string) (bool, error) {
	return x.remote[id] == fp, nil
}

func (x *fakeIndexer) Index(_ context.Context, doc ports.IndexDocument) (string, error) {
	if doc.DocumentID == x.failOn {
		return "", application.Transient("index", errors.New("503"))
	}
	x.indexed = append(x.indexed, doc)
	x.remote[doc.DocumentID] = doc.Fingerprint
	return "mem://" + doc.DocumentID, nil
}

func (x *fakeIndexer) Search(_ context.Context, query string, topK int) ([]ports.SearchHit, error) {
	x.topK = topK
	return x.hits, nil
}

func (x *fakeIndexer) Passages(_ context.Context, id, query string, max int) ([]string, error) {
	if _, ok := x.remote[id]; !ok {
		return nil, &application.NotFoundError{What: "indexed paper", ID: id}
	}
	return []string{id + " passage about " + query}, nil
}

func record(id string, stage domain.Stage) domain.PaperRecord {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.PaperRecord{
		ID:                id,
		SourcePath:        "/papers/" + id + ".pdf",
		SourceFingerprint: "fp-" + id,
		Stage:             stage,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

const paperText = `# Attention Is All You Need

## Abstract
The dominant sequence transduction models are based on recurrent networks.

## Results
Transformers achieved 28.4 BLEU on WMT 2014.

### Ablations
Fewer heads hurt quality.

## Conclusion
Attention suffices.`
