package ports

import "context"

// IndexDocument is what gets pushed to the remote semantic index
type IndexDocument struct {
	DocumentID  string
	Fingerprint string
	Text        string
	Summary     string
}

// SearchHit is one ranked result from the remote index
type SearchHit struct {
	DocumentID string
	Score      float64 // relevance 0-1
	Snippet    string
}

// Indexer pushes documents to a remote semantic index and queries it
type Indexer interface {
	Name() string

	// Has reports whether the index already holds documentID at this fingerprint
	Has(ctx context.Context, documentID, fingerprint string) (bool, error)

	// Index uploads a document and returns a remote reference to it
	Index(ctx context.Context, doc IndexDocument) (string, error)

	// Search ranks indexed documents by relevance to query
	Search(ctx context.Context, query string, topK int) ([]SearchHit, error)

	// Passages returns up to max relevant passages from one indexed document
	Passages(ctx context.Context, documentID, query string, max int) ([]string, error)
}
