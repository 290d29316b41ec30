package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// objectStore is the bucket surface the indexer needs
type objectStore interface {
	// Metadata returns the custom metadata of an object, or errObjectMissing
	Metadata(ctx context.Context, name string) (map[string]string, error)
	Write(ctx context.Context, name, content string, metadata map[string]string) error
	// List returns object names under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	// Read returns up to limit bytes of an object, or the whole object when limit <= 0
	Read(ctx context.Context, name string, limit int64) ([]byte, error)
	URI(name string) string
}

var errObjectMissing = errors.New("object does not exist")

// gcsObjects implements objectStore on a Cloud Storage bucket
type gcsObjects struct {
	bucketName string
	bucket     *storage.BucketHandle
}

func newGCSObjects(client *storage.Client, bucketName string) *gcsObjects {
	return &gcsObjects{bucketName: bucketName, bucket: client.Bucket(bucketName)}
}

func (g *gcsObjects) Metadata(ctx context.Context, name string) (map[string]string, error) {
	attrs, err := g.bucket.Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errObjectMissing
	}
	if err != nil {
		return nil, err
	}
	return attrs.Metadata, nil
}

// Write replaces the object; the writer only commits on a successful Close
func (g *gcsObjects) Write(ctx context.Context, name, content string, metadata map[string]string) error {
	writer := g.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = "text/markdown; charset=utf-8"
	writer.Metadata = metadata

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (g *gcsObjects) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *gcsObjects) Read(ctx context.Context, name string, limit int64) ([]byte, error) {
	length := int64(-1)
	if limit > 0 {
		length = limit
	}
	r, err := g.bucket.Object(name).NewRangeReader(ctx, 0, length)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errObjectMissing
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *gcsObjects) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucketName, name)
}
