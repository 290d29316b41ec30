package ports

import "context"

// ConvertRequest describes one source document to convert
type ConvertRequest struct {
	DocumentID string
	SourcePath string
	// AssetDir receives auxiliary files the engine extracts (figures).
	AssetDir string
	// TextPath is where the markdown will be stored; asset links are relative to it.
	TextPath string
}

// Converter turns a binary source document into markdown text.
// Failures are reported as application.AdapterError so the retry policy can classify them.
type Converter interface {
	Name() string
	Convert(ctx context.Context, req ConvertRequest) (string, error)
}
