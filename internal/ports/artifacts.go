package ports

import "paperflow/internal/domain"

// ArtifactStore maps documents to their on-disk artifacts and fingerprints.
// Lookup returns (nil, nil) when the artifact is absent.
type ArtifactStore interface {
	Lookup(id string, kind domain.ArtifactKind) (*domain.Artifact, error)

	// Current returns the artifact only if it exists on disk, its content is
	// unchanged, and it was derived from sourceFingerprint.
	Current(id string, kind domain.ArtifactKind, sourceFingerprint string) (*domain.Artifact, error)

	Put(id string, kind domain.ArtifactKind, sourceFingerprint string, content []byte) (*domain.Artifact, error)
	Read(id string, kind domain.ArtifactKind) ([]byte, error)

	// Clear removes the given derived artifacts of a document
	Clear(id string, kinds ...domain.ArtifactKind) error

	Path(id string, kind domain.ArtifactKind) string
	AssetDir(id string) string
}
