package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"paperflow/internal/application"
	"paperflow/internal/domain"
)

// Store implements ports.ArtifactStore on the local filesystem.
// Text lives at <markdown>/<id>.md, summaries at <summaries>/<id>.summary.md,
// and a JSON manifest per document under <state>/manifests records what each
// file was derived from.
type Store struct {
	markdownDir  string
	summariesDir string
	manifestDir  string

	mu sync.Mutex
}

// manifest is the on-disk record of one document's derived artifacts
type manifest struct {
	DocumentID string            `json:"documentId"`
	Artifacts  []domain.Artifact `json:"artifacts"`
}

// NewStore creates the store, making sure its directories exist
func NewStore(markdownDir, summariesDir, stateDir string) (*Store, error) {
	s := &Store{
		markdownDir:  markdownDir,
		summariesDir: summariesDir,
		manifestDir:  filepath.Join(stateDir, "manifests"),
	}
	for _, dir := range []string{s.markdownDir, s.summariesDir, s.manifestDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Path returns where an artifact of the given kind lives. Source documents are
// tracked by the ledger, so their path is empty here.
func (s *Store) Path(id string, kind domain.ArtifactKind) string {
	switch kind {
	case domain.ArtifactText:
		return filepath.Join(s.markdownDir, id+".md")
	case domain.ArtifactSummary:
		return filepath.Join(s.summariesDir, id+".summary.md")
	default:
		return ""
	}
}

// AssetDir returns the directory for figures extracted during conversion
func (s *Store) AssetDir(id string) string {
	return filepath.Join(s.markdownDir, "assets", id)
}

// Lookup returns the manifest entry for an artifact, or nil when none is recorded
func (s *Store) Lookup(id string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifest(id)
	if err != nil {
		return nil, err
	}
	return m.find(kind), nil
}

// Current returns the artifact only when the file exists, its content still
// hashes to the recorded fingerprint, and it was derived from sourceFingerprint.
func (s *Store) Current(id string, kind domain.ArtifactKind, sourceFingerprint string) (*domain.Artifact, error) {
	art, err := s.Lookup(id, kind)
	if err != nil || art == nil {
		return nil, err
	}
	if !art.MatchesSource(sourceFingerprint) {
		return nil, nil
	}

	fp, err := domain.FingerprintFile(art.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fp != art.Fingerprint {
		return nil, nil
	}
	return art, nil
}

// Put writes content for the artifact and records it in the manifest.
// Both writes go through a temp file and rename so readers never see a partial file.
func (s *Store) Put(id string, kind domain.ArtifactKind, sourceFingerprint string, content []byte) (*domain.Artifact, error) {
	path := s.Path(id, kind)
	if path == "" {
		return nil, fmt.Errorf("cannot store %s artifacts", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(path, content); err != nil {
		return nil, fmt.Errorf("failed to write %s for %s: %w", kind, id, err)
	}

	art := domain.Artifact{
		DocumentID:        id,
		Kind:              kind,
		Path:              path,
		Fingerprint:       domain.FingerprintBytes(content),
		SourceFingerprint: sourceFingerprint,
	}

	m, err := s.loadManifest(id)
	if err != nil {
		return nil, err
	}
	m.set(art)
	if err := s.saveManifest(m); err != nil {
		return nil, err
	}
	return &art, nil
}

// Read returns the content of a stored artifact
func (s *Store) Read(id string, kind domain.ArtifactKind) ([]byte, error) {
	path := s.Path(id, kind)
	if path == "" {
		return nil, fmt.Errorf("cannot read %s artifacts", kind)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &application.NotFoundError{What: kind.String(), ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for %s: %w", kind, id, err)
	}
	return data, nil
}

// Clear deletes derived artifacts and forgets them in the manifest.
// Clearing text also drops the extracted assets.
func (s *Store) Clear(id string, kinds ...domain.ArtifactKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.loadManifest(id)
	if err != nil {
		return err
	}

	for _, kind := range kinds {
		if path := s.Path(id, kind); path != "" {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
		if kind == domain.ArtifactText {
			if err := os.RemoveAll(s.AssetDir(id)); err != nil {
				return fmt.Errorf("failed to remove assets for %s: %w", id, err)
			}
		}
		m.remove(kind)
	}
	return s.saveManifest(m)
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.manifestDir, id+".json")
}

func (s *Store) loadManifest(id string) (*manifest, error) {
	data, err := os.ReadFile(s.manifestPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return &manifest{DocumentID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", id, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest for %s: %w", id, err)
	}
	m.DocumentID = id
	return &m, nil
}

func (s *Store) saveManifest(m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.manifestPath(m.DocumentID), data); err != nil {
		return fmt.Errorf("failed to write manifest for %s: %w", m.DocumentID, err)
	}
	return nil
}

func (m *manifest) find(kind domain.ArtifactKind) *domain.Artifact {
	for i := range m.Artifacts {
		if m.Artifacts[i].Kind == kind {
			art := m.Artifacts[i]
			return &art
		}
	}
	return nil
}

func (m *manifest) set(art domain.Artifact) {
	for i := range m.Artifacts {
		if m.Artifacts[i].Kind == art.Kind {
			m.Artifacts[i] = art
			return
		}
	}
	m.Artifacts = append(m.Artifacts, art)
}

func (m *manifest) remove(kind domain.ArtifactKind) {
	kept := m.Artifacts[:0]
	for _, a := range m.Artifacts {
		if a.Kind != kind {
			kept = append(kept, a)
		}
	}
	m.Artifacts = kept
}

// writeFileAtomic writes to a sibling temp file and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(filepath.Base(path), ".")+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
