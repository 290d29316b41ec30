package viewer

import (
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Opener hands papers and artifacts to the desktop's default application
type Opener struct {
	roots []string
	goos  string
	run   func(name string, args ...string) error
}

// NewOpener creates an opener restricted to files under the given directories
func NewOpener(roots ...string) *Opener {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			clean = append(clean, filepath.Clean(r))
		}
	}
	return &Opener{
		roots: clean,
		goos:  runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Open shows the file in the system viewer, e.g. a PDF reader
func (o *Opener) Open(path string) error {
	uri, err := o.BuildURI(path)
	if err != nil {
		return err
	}

	switch o.goos {
	case "darwin":
		return o.run("open", uri)
	case "linux", "freebsd", "openbsd":
		return o.run("xdg-open", uri)
	case "windows":
		return o.run("cmd", "/c", "start", "", uri)
	default:
		return fmt.Errorf("unsupported operating system: %s", o.goos)
	}
}

// BuildURI returns the file:// URI of path, which must lie under one of the roots
func (o *Opener) BuildURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	inside := false
	for _, root := range o.roots {
		rel, err := filepath.Rel(root, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			inside = true
			break
		}
	}
	if !inside {
		return "", fmt.Errorf("file is outside the library: %s", path)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
