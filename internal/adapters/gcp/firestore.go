package gcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"paperflow/internal/domain"
	"paperflow/internal/ports"
)

// docStore is the collection surface the ledger needs
type docStore interface {
	// Get returns the document, or a gRPC NotFound status when it does not exist
	Get(ctx context.Context, id string) (paperDoc, error)
	Set(ctx context.Context, id string, d paperDoc) error
	// Where returns documents keyed by ID whose stage is one of stages, or all
	// documents when stages is empty
	Where(ctx context.Context, stages []string) (map[string]paperDoc, error)
	Close() error
}

// FirestoreLedger implements ports.Ledger as one Firestore document per paper,
// keyed by document ID. Set replaces the whole document atomically.
type FirestoreLedger struct {
	docs docStore
}

var _ ports.Ledger = (*FirestoreLedger)(nil)

// paperDoc is the stored shape of a PaperRecord
type paperDoc struct {
	SourcePath        string    `firestore:"sourcePath"`
	SourceFingerprint string    `firestore:"sourceFingerprint"`
	Stage             string    `firestore:"stage"`
	Attempts          int       `firestore:"attempts"`
	LastError         string    `firestore:"lastError"`
	NextAttemptAt     time.Time `firestore:"nextAttemptAt"`
	IndexRef          string    `firestore:"indexRef"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// NewFirestoreClient creates a Firestore client for the given project
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// NewFirestoreLedger stores records in the named collection
func NewFirestoreLedger(client *firestore.Client, collection string) *FirestoreLedger {
	return &FirestoreLedger{docs: &firestoreDocs{client: client, collection: client.Collection(collection)}}
}

func (l *FirestoreLedger) Get(ctx context.Context, id string) (*domain.PaperRecord, error) {
	d, err := l.docs.Get(ctx, id)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return fromDoc(id, d), nil
}

func (l *FirestoreLedger) Upsert(ctx context.Context, rec *domain.PaperRecord) error {
	if err := l.docs.Set(ctx, rec.ID, toDoc(rec)); err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (l *FirestoreLedger) Scan(ctx context.Context, stages ...domain.Stage) ([]domain.PaperRecord, error) {
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.String()
	}

	docs, err := l.docs.Where(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger: %w", err)
	}

	records := make([]domain.PaperRecord, 0, len(docs))
	for id, d := range docs {
		records = append(records, *fromDoc(id, d))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (l *FirestoreLedger) Close() error {
	return l.docs.Close()
}

// firestoreDocs implements docStore on a Firestore collection
type firestoreDocs struct {
	client     *firestore.Client
	collection *firestore.CollectionRef
}

func (f *firestoreDocs) Get(ctx context.Context, id string) (paperDoc, error) {
	var d paperDoc
	snap, err := f.collection.Doc(id).Get(ctx)
	if err != nil {
		return d, err
	}
	if err := snap.DataTo(&d); err != nil {
		return d, fmt.Errorf("corrupt record: %w", err)
	}
	return d, nil
}

func (f *firestoreDocs) Set(ctx context.Context, id string, d paperDoc) error {
	_, err := f.collection.Doc(id).Set(ctx, d)
	return err
}

func (f *firestoreDocs) Where(ctx context.Context, stages []string) (map[string]paperDoc, error) {
	query := f.collection.Query
	if len(stages) > 0 {
		query = query.Where("stage", "in", stages)
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	docs := make(map[string]paperDoc, len(snaps))
	for _, snap := range snaps {
		var d paperDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("corrupt record %s: %w", snap.Ref.ID, err)
		}
		docs[snap.Ref.ID] = d
	}
	return docs, nil
}

func (f *firestoreDocs) Close() error {
	return f.client.Close()
}

func toDoc(rec *domain.PaperRecord) paperDoc {
	return paperDoc{
		SourcePath:        rec.SourcePath,
		SourceFingerprint: rec.SourceFingerprint,
		Stage:             rec.Stage.String(),
		Attempts:          rec.Attempts,
		LastError:         rec.LastError,
		NextAttemptAt:     rec.NextAttemptAt,
		IndexRef:          rec.IndexRef,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func fromDoc(id string, d paperDoc) *domain.PaperRecord {
	return &domain.PaperRecord{
		ID:                id,
		SourcePath:        d.SourcePath,
		SourceFingerprint: d.SourceFingerprint,
		Stage:             domain.ParseStage(d.Stage),
		Attempts:          d.Attempts,
		LastError:         d.LastError,
		NextAttemptAt:     d.NextAttemptAt,
		IndexRef:          d.IndexRef,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
