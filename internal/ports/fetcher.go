package ports

import "context"

// RemotePaper is a PDF located on the web and the file stem to store it under
type RemotePaper struct {
	PDFURL string
	Name   string // file name without extension
	Title  string
}

// PaperFetcher resolves paper references (URL, arXiv id, DOI, Semantic
// Scholar id) to a PDF and downloads it.
type PaperFetcher interface {
	Resolve(ctx context.Context, source, ref string) (*RemotePaper, error)

	// Fetch downloads url to dest. dest only appears once the whole body is on
	// disk and looks like a PDF.
	Fetch(ctx context.Context, url, dest string) error
}

// WebResult is one hit from a public paper search
type WebResult struct {
	Title     string `json:"title"`
	Authors   string `json:"authors,omitempty"`
	Year      int    `json:"year,omitempty"`
	URL       string `json:"url"`
	PDFURL    string `json:"pdf_url,omitempty"`
	ArxivID   string `json:"arxiv_id,omitempty"`
	Citations int    `json:"citations,omitempty"`
	Abstract  string `json:"abstract,omitempty"`
	Source    string `json:"source"`
}

// WebSearcher queries public paper search engines
type WebSearcher interface {
	Search(ctx context.Context, engine, query string, limit int) ([]WebResult, error)
}
