package citations

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// \cite, \citep, \citet, \citealp, \citeauthor ... with optional [..] arguments
var citePattern = regexp.MustCompile(`\\(?:no)?cite(?:p|t|alp|alt|author|year|yearpar)?\*?(?:\[[^\]]*\]){0,2}\{([^}]+)\}`)

// @article{key, ... but not @string, @comment, @preamble
var bibEntryPattern = regexp.MustCompile(`@(\w+)\s*\{\s*([^,\s]+)\s*,`)

// contextLines is how many lines before and after a citation are kept as its context
const contextLines = 2

// Citation is one key cited somewhere in the manuscript
type Citation struct {
	Key     string `json:"key"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

// Extract finds every citation key in a LaTeX source. Keys inside a single
// command are split on commas. Commented-out text is ignored.
func Extract(r io.Reader, file string) ([]Citation, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	var cites []Citation
	for i, line := range lines {
		line = stripComment(line)
		for _, m := range citePattern.FindAllStringSubmatch(line, -1) {
			for _, key := range strings.Split(m[1], ",") {
				key = strings.TrimSpace(key)
				if key == "" {
					continue
				}
				cites = append(cites, Citation{
					Key:     key,
					File:    file,
					Line:    i + 1,
					Context: contextAround(lines, i),
				})
			}
		}
	}
	return cites, nil
}

// ParseBibKeys returns the entry keys defined in a BibTeX file
func ParseBibKeys(r io.Reader) (map[string]bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bibliography: %w", err)
	}

	keys := make(map[string]bool)
	for _, m := range bibEntryPattern.FindAllStringSubmatch(string(data), -1) {
		switch strings.ToLower(m[1]) {
		case "string", "comment", "preamble":
			continue
		}
		keys[m[2]] = true
	}
	return keys, nil
}

// CollectFiles expands paths into the .tex files to check. Directories are
// walked recursively; explicitly named files are taken as given.
func CollectFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != p {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".tex") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// stripComment drops a LaTeX line comment, keeping escaped \%
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '%' && (i == 0 || line[i-1] != '\\') {
			return line[:i]
		}
	}
	return line
}

func contextAround(lines []string, i int) string {
	start := max(0, i-contextLines)
	end := min(len(lines), i+contextLines+1)

	var parts []string
	for _, l := range lines[start:end] {
		if l = strings.TrimSpace(stripComment(l)); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}
