package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// Reference kinds accepted by Resolve
const (
	SourceURL     = "url"
	SourceArxiv   = "arxiv"
	SourceDOI     = "doi"
	SourceScholar = "scholar"
)

var unsafeName = regexp.MustCompile(`[<>:"/\\|?*]`)
var spaces = regexp.MustCompile(`\s+`)

// SanitizeName turns a title into a file stem safe on every filesystem
func SanitizeName(name string) string {
	name = unsafeName.ReplaceAllString(name, "")
	name = spaces.ReplaceAllString(strings.TrimSpace(name), "_")
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

// Resolve finds the PDF behind ref. A paper without an open access PDF is
// reported as not found.
func (c *Client) Resolve(ctx context.Context, source, ref string) (*ports.RemotePaper, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty %s reference", source)
	}

	var (
		paper *ports.RemotePaper
		err   error
	)
	switch source {
	case SourceURL:
		paper, err = resolveURL(ref)
	case SourceArxiv:
		paper, err = c.resolveArxiv(ctx, ref)
	case SourceDOI:
		paper, err = c.resolveDOI(ctx, ref)
	case SourceScholar:
		paper, err = c.resolveScholar(ctx, ref)
	default:
		return nil, fmt.Errorf("unknown source %q (expected url, arxiv, doi or scholar)", source)
	}
	if errors.Is(err, application.ErrNotFound) {
		var nf *application.NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, &application.NotFoundError{What: source + " paper", ID: ref}
	}
	return paper, err
}

func resolveURL(ref string) (*ports.RemotePaper, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("not an http(s) URL: %q", ref)
	}
	name := strings.TrimSuffix(path.Base(u.Path), ".pdf")
	if name == "" || name == "." || name == "/" {
		name = u.Host
	}
	return &ports.RemotePaper{PDFURL: ref, Name: SanitizeName(name)}, nil
}

// ArxivID strips prefixes and URL paths from an arXiv reference
func ArxivID(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, p := range []string{"arXiv:", "arxiv:"} {
		ref = strings.TrimPrefix(ref, p)
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimSuffix(ref, ".pdf")
}

func (c *Client) resolveArxiv(ctx context.Context, ref string) (*ports.RemotePaper, error) {
	id := ArxivID(ref)
	feed, err := c.getFeed(ctx, "arxiv lookup", url.Values{"id_list": {id}})
	if err != nil {
		return nil, err
	}
	// unknown ids come back as a single entry pointing at the API error page
	if len(feed.Entries) == 0 || strings.Contains(feed.Entries[0].ID, "/api/errors") {
		return nil, &application.NotFoundError{What: "arxiv paper", ID: id}
	}
	entry := feed.Entries[0]

	title := strings.Join(strings.Fields(entry.Title), " ")
	if title == "" {
		title = id
	}
	first := "unknown"
	if names := entry.authorNames(); len(names) > 0 {
		first = lastWord(names[0])
	}
	// new-style ids start with YYMM
	year := "unknown"
	if id != "" && id[0] >= '0' && id[0] <= '9' && len(id) >= 2 {
		year = "20" + id[:2]
	}

	return &ports.RemotePaper{
		PDFURL: c.endpoints.ArxivPDF + "/" + id + ".pdf",
		Name:   first + year + "_" + SanitizeName(truncate(title, 50)),
		Title:  title,
	}, nil
}

// CleanDOI strips resolver prefixes from a DOI
func CleanDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, p := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, p)
	}
	return doi
}

type unpaywallLocation struct {
	URLForPDF string `json:"url_for_pdf"`
}

type unpaywallRecord struct {
	Title          string              `json:"title"`
	Year           int                 `json:"year"`
	DOIURL         string              `json:"doi_url"`
	BestOALocation *unpaywallLocation  `json:"best_oa_location"`
	OALocations    []unpaywallLocation `json:"oa_locations"`
	Authors        []struct {
		Family string `json:"family"`
	} `json:"z_authors"`
}

func (c *Client) resolveDOI(ctx context.Context, ref string) (*ports.RemotePaper, error) {
	doi := CleanDOI(ref)
	var rec unpaywallRecord
	err := c.getJSON(ctx, "unpaywall lookup", c.endpoints.Unpaywall+"/"+doi, url.Values{"email": {c.email}}, nil, &rec)
	if err != nil {
		return nil, err
	}

	pdfURL := ""
	if rec.BestOALocation != nil {
		pdfURL = rec.BestOALocation.URLForPDF
	}
	for _, loc := range rec.OALocations {
		if pdfURL != "" {
			break
		}
		pdfURL = loc.URLForPDF
	}
	if pdfURL == "" {
		c.logger.Info("No open access PDF.", "doi", doi, "url", rec.DOIURL)
		return nil, &application.NotFoundError{What: "open access PDF for DOI", ID: doi}
	}

	first := "unknown"
	if len(rec.Authors) > 0 && rec.Authors[0].Family != "" {
		first = rec.Authors[0].Family
	}
	return &ports.RemotePaper{
		PDFURL: pdfURL,
		Name:   first + yearString(rec.Year) + "_" + SanitizeName(truncate(rec.Title, 50)),
		Title:  rec.Title,
	}, nil
}

type scholarPaper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Year          int    `json:"year"`
	URL           string `json:"url"`
	Abstract      string `json:"abstract"`
	CitationCount int    `json:"citationCount"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (p scholarPaper) pdfURL() string {
	if p.OpenAccessPDF == nil {
		return ""
	}
	return p.OpenAccessPDF.URL
}

func (c *Client) scholarHeader() http.Header {
	h := http.Header{}
	if c.scholarKey != "" {
		h.Set("x-api-key", c.scholarKey)
	}
	return h
}

func (c *Client) resolveScholar(ctx context.Context, ref string) (*ports.RemotePaper, error) {
	id := ref
	if strings.Contains(id, "semanticscholar.org") {
		id = path.Base(strings.TrimRight(id, "/"))
	}

	var p scholarPaper
	err := c.getJSON(ctx, "semantic scholar lookup", c.endpoints.SemanticScholar+"/paper/"+url.PathEscape(id),
		url.Values{"fields": {"title,authors,year,openAccessPdf"}}, c.scholarHeader(), &p)
	if err != nil {
		return nil, err
	}
	if p.pdfURL() == "" {
		return nil, &application.NotFoundError{What: "open access PDF for paper", ID: id}
	}

	first := "unknown"
	if len(p.Authors) > 0 {
		first = lastWord(p.Authors[0].Name)
	}
	return &ports.RemotePaper{
		PDFURL: p.pdfURL(),
		Name:   first + yearString(p.Year) + "_" + SanitizeName(truncate(p.Title, 50)),
		Title:  p.Title,
	}, nil
}

func lastWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return "unknown"
	}
	return f[len(f)-1]
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
