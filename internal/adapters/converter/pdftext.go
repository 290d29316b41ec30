package converter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// PDFText implements ports.Converter with in-process text extraction.
// It needs no external tools but loses layout, tables and math.
type PDFText struct {
	inspect func(path string) (int, error)
}

var _ ports.Converter = (*PDFText)(nil)

func NewPDFText() *PDFText {
	return &PDFText{inspect: Inspect}
}

func (p *PDFText) Name() string {
	return "pdftext"
}

func (p *PDFText) Convert(ctx context.Context, req ports.ConvertRequest) (string, error) {
	if _, err := p.inspect(req.SourcePath); err != nil {
		return "", err
	}

	f, r, err := pdf.Open(req.SourcePath)
	if err != nil {
		return "", application.Fatal("convert", fmt.Errorf("unsupported input: could not read PDF %s: %w", req.SourcePath, err))
	}
	defer f.Close()

	var sb strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", application.Transient("convert", err)
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("Skipping unreadable page.", "documentId", req.DocumentID, "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			fmt.Fprintf(&sb, "<!-- page %d -->\n\n%s\n\n", i, text)
		}
	}

	body := strings.TrimSpace(sb.String())
	if body == "" {
		return "", application.Fatal("convert", fmt.Errorf("unsupported input: no extractable text in %s (scanned or image-based)", req.SourcePath))
	}
	return fmt.Sprintf("# %s\n\n%s\n", req.DocumentID, body), nil
}
