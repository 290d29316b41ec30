package converter

import (
	"errors"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"paperflow/internal/application"
)

// Inspect validates a PDF and returns its page count. Files that are missing,
// not PDFs, or too damaged to parse are reported as fatal.
func Inspect(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, application.Fatal("convert", fmt.Errorf("unsupported input: source %s no longer exists", path))
		}
		return 0, application.Transient("convert", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return 0, application.Fatal("convert", fmt.Errorf("unsupported input: malformed PDF %s: %w", path, err))
	}

	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, application.Fatal("convert", fmt.Errorf("unsupported input: cannot count pages of %s: %w", path, err))
	}
	if pages == 0 {
		return 0, application.Fatal("convert", fmt.Errorf("unsupported input: %s has no pages", path))
	}
	return pages, nil
}
