package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"

	"paperflow/internal/adapters/llmtext"
	"paperflow/internal/application"
	"paperflow/internal/ports"
)

const (
	metaFingerprint = "fingerprint"
	metaDocumentID  = "document_id"

	// bytes of each object shown to the ranking model
	previewBytes = 1500

	summarySeparator = "\n\n---\n\n"
)

// SemanticIndex implements ports.Indexer. Documents are stored as markdown
// objects in a Cloud Storage bucket and ranked by a Gemini model.
type SemanticIndex struct {
	objects  objectStore
	model    generator
	prefix   string
	maxChars int
}

var _ ports.Indexer = (*SemanticIndex)(nil)

// NewSemanticIndex stores documents under gs://bucket/prefix/<id>.md
func NewSemanticIndex(client *storage.Client, vertex *VertexClient, bucket, prefix string, maxChars int) *SemanticIndex {
	return &SemanticIndex{
		objects:  newGCSObjects(client, bucket),
		model:    vertex.Model,
		prefix:   strings.Trim(prefix, "/"),
		maxChars: maxChars,
	}
}

func (s *SemanticIndex) Name() string {
	return "gemini"
}

func (s *SemanticIndex) objectName(documentID string) string {
	return path.Join(s.prefix, documentID+".md")
}

func (s *SemanticIndex) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *SemanticIndex) documentID(objectName string) (string, bool) {
	if !strings.HasPrefix(objectName, s.listPrefix()) {
		return "", false
	}
	rel := strings.TrimPrefix(objectName, s.listPrefix())
	if strings.Contains(rel, "/") || !strings.HasSuffix(rel, ".md") {
		return "", false
	}
	return strings.TrimSuffix(rel, ".md"), true
}

// Has reports whether the stored object carries the given fingerprint
func (s *SemanticIndex) Has(ctx context.Context, documentID, fingerprint string) (bool, error) {
	meta, err := s.objects.Metadata(ctx, s.objectName(documentID))
	if errors.Is(err, errObjectMissing) {
		return false, nil
	}
	if err != nil {
		return false, classify("index", err)
	}
	return meta[metaFingerprint] == fingerprint, nil
}

// Index uploads summary and text as one markdown object, replacing any older version
func (s *SemanticIndex) Index(ctx context.Context, doc ports.IndexDocument) (string, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return "", application.Fatal("index", fmt.Errorf("unsupported input: %s has no text", doc.DocumentID))
	}

	content := doc.Text
	if doc.Summary != "" {
		content = strings.TrimSpace(doc.Summary) + summarySeparator + doc.Text
	}

	name := s.objectName(doc.DocumentID)
	meta := map[string]string{
		metaFingerprint: doc.Fingerprint,
		metaDocumentID:  doc.DocumentID,
	}
	if err := s.objects.Write(ctx, name, content, meta); err != nil {
		return "", classify("index", err)
	}

	uri := s.objects.URI(name)
	slog.Debug("Document indexed.", "documentId", doc.DocumentID, "object", uri)
	return uri, nil
}

// Search lists indexed documents and asks the model to rank them against query
func (s *SemanticIndex) Search(ctx context.Context, query string, topK int) ([]ports.SearchHit, error) {
	names, err := s.objects.List(ctx, s.listPrefix())
	if err != nil {
		return nil, classify("search", err)
	}

	known := map[string]bool{}
	var docs []string
	for _, name := range names {
		id, ok := s.documentID(name)
		if !ok {
			continue
		}
		preview, err := s.objects.Read(ctx, name, previewBytes)
		if err != nil {
			return nil, classify("search", err)
		}
		known[id] = true
		docs = append(docs, fmt.Sprintf("%s: %s", id, oneLine(string(preview))))
	}
	if len(docs) == 0 {
		return []ports.SearchHit{}, nil
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(llmtext.RankPrompt(query, docs, topK)))
	if err != nil {
		return nil, classify("search", err)
	}
	hits, err := llmtext.ParseRanking(extractText(resp), topK)
	if err != nil {
		return nil, application.Transient("search", err)
	}

	// the model may invent IDs; keep only documents that exist
	filtered := hits[:0]
	for _, h := range hits {
		if known[h.DocumentID] {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// Passages asks the model for verbatim passages of one indexed document
func (s *SemanticIndex) Passages(ctx context.Context, documentID, query string, max int) ([]string, error) {
	content, err := s.objects.Read(ctx, s.objectName(documentID), 0)
	if errors.Is(err, errObjectMissing) {
		return nil, &application.NotFoundError{What: "indexed paper", ID: documentID}
	}
	if err != nil {
		return nil, classify("search", err)
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(llmtext.PassagesPrompt(query, string(content), max, s.maxChars)))
	if err != nil {
		return nil, classify("search", err)
	}
	return llmtext.SplitPassages(extractText(resp), max), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
