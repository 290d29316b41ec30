package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// MarkerOptions are passed through to marker_single
type MarkerOptions struct {
	UseLLM          bool
	ForceOCR        bool
	RedoInlineMath  bool
	BatchMultiplier int
	MaxPages        int
	Languages       []string
	Timeout         time.Duration
	Binary          string

	// GoogleAPIKey enables --use_llm; marker reads it from the environment itself
	GoogleAPIKey string
}

// runFunc executes a command and returns its stderr
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Marker implements ports.Converter by shelling out to the marker_single tool
type Marker struct {
	opts    MarkerOptions
	binary  string
	run     runFunc
	inspect func(path string) (int, error)
}

var _ ports.Converter = (*Marker)(nil)

func NewMarker(opts MarkerOptions) *Marker {
	if opts.BatchMultiplier <= 0 {
		opts.BatchMultiplier = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Binary == "" {
		opts.Binary = "marker_single"
	}
	return &Marker{
		opts:    opts,
		binary:  opts.Binary,
		run:     runCommand,
		inspect: Inspect,
	}
}

func (m *Marker) Name() string {
	return "marker"
}

// IsAvailable checks if marker_single is installed and accessible
func (m *Marker) IsAvailable() bool {
	_, err := exec.LookPath(m.binary)
	return err == nil
}

// args builds the marker_single command line
func (m *Marker) args(pdfPath, outputDir string) []string {
	args := []string{
		pdfPath,
		"--output_dir", outputDir,
		"--batch_multiplier", strconv.Itoa(m.opts.BatchMultiplier),
	}
	useLLM := m.opts.UseLLM && m.opts.GoogleAPIKey != ""
	if useLLM {
		args = append(args, "--use_llm")
	}
	if m.opts.ForceOCR {
		args = append(args, "--force_ocr")
	}
	if m.opts.RedoInlineMath && useLLM {
		args = append(args, "--redo_inline_math")
	}
	if m.opts.MaxPages > 0 {
		args = append(args, "--max_pages", strconv.Itoa(m.opts.MaxPages))
	}
	if len(m.opts.Languages) > 0 {
		args = append(args, "--languages", strings.Join(m.opts.Languages, ","))
	}
	return args
}

func (m *Marker) Convert(ctx context.Context, req ports.ConvertRequest) (string, error) {
	if _, err := m.inspect(req.SourcePath); err != nil {
		return "", err
	}

	outputDir, err := os.MkdirTemp("", "paperflow-marker-*")
	if err != nil {
		return "", application.Transient("convert", err)
	}
	defer os.RemoveAll(outputDir)

	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	stderr, err := m.run(ctx, m.binary, m.args(req.SourcePath, outputDir)...)
	if err != nil {
		return "", classifyRunError(ctx, err, stderr)
	}

	// marker writes <output>/<stem>/<stem>.md next to extracted images
	stem := strings.TrimSuffix(filepath.Base(req.SourcePath), filepath.Ext(req.SourcePath))
	mdPath := filepath.Join(outputDir, stem, stem+".md")
	if _, err := os.Stat(mdPath); err != nil {
		found, ok := findMarkdown(outputDir)
		if !ok {
			return "", application.Transient("convert", fmt.Errorf("marker produced no markdown for %s", req.SourcePath))
		}
		mdPath = found
	}

	content, err := os.ReadFile(mdPath)
	if err != nil {
		return "", application.Transient("convert", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", application.Fatal("convert", fmt.Errorf("unsupported input: marker extracted no text from %s", req.SourcePath))
	}

	moved, err := moveImages(filepath.Dir(mdPath), req.AssetDir)
	if err != nil {
		return "", application.Transient("convert", fmt.Errorf("failed to keep extracted images: %w", err))
	}
	return relinkImages(string(content), moved, req.AssetDir, filepath.Dir(req.TextPath)), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

func classifyRunError(ctx context.Context, err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return &application.ConfigurationError{
			Field:   "converter.binary",
			Message: fmt.Sprintf("marker_single not installed: %v", err),
		}
	}
	if ctx.Err() != nil {
		return application.Transient("convert", fmt.Errorf("marker timed out: %w", ctx.Err()))
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "pdfium") || strings.Contains(lower, "not a pdf") || strings.Contains(lower, "encrypted") {
		return application.Fatal("convert", fmt.Errorf("unsupported input: %s", lastLine(msg)))
	}
	return application.Transient("convert", fmt.Errorf("marker error: %s", lastLine(msg)))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func findMarkdown(root string) (string, bool) {
	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".md") {
			found = path
		}
		return nil
	})
	return found, found != ""
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// moveImages copies extracted figures into assetDir and returns their names
func moveImages(srcDir, assetDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}

	var moved []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if err := os.MkdirAll(assetDir, 0755); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(srcDir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(assetDir, e.Name()), data, 0644); err != nil {
			return nil, err
		}
		moved = append(moved, e.Name())
	}
	return moved, nil
}

var imageLinkRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)

// relinkImages points image references at the asset directory, relative to textDir
func relinkImages(content string, moved []string, assetDir, textDir string) string {
	if len(moved) == 0 {
		return content
	}
	known := make(map[string]bool, len(moved))
	for _, name := range moved {
		known[name] = true
	}
	rel, err := filepath.Rel(textDir, assetDir)
	if err != nil {
		rel = assetDir
	}
	return imageLinkRe.ReplaceAllStringFunc(content, func(link string) string {
		m := imageLinkRe.FindStringSubmatch(link)
		if !known[m[2]] {
			return link
		}
		return fmt.Sprintf("![%s](%s)", m[1], filepath.ToSlash(filepath.Join(rel, m[2])))
	})
}
