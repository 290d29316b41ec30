package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paperflow/internal/application"
	"paperflow/internal/ports"
)

// Search engines accepted by Search
const (
	EngineArxiv   = "arxiv"
	EngineScholar = "scholar"
	EngineBrave   = "brave"
)

const academicSites = " site:arxiv.org OR site:semanticscholar.org OR site:scholar.google.com OR filetype:pdf"

// Search runs query against one engine. Brave needs BRAVE_API_KEY.
func (c *Client) Search(ctx context.Context, engine, query string, limit int) ([]ports.WebResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = 10
	}
	switch engine {
	case EngineArxiv:
		return c.searchArxiv(ctx, query, limit)
	case EngineScholar:
		return c.searchScholar(ctx, query, limit)
	case EngineBrave:
		return c.searchBrave(ctx, query, limit, false)
	case EngineBrave + "-academic":
		return c.searchBrave(ctx, query, limit, true)
	default:
		return nil, fmt.Errorf("unknown search engine %q (expected arxiv, scholar, brave or brave-academic)", engine)
	}
}

func (c *Client) searchArxiv(ctx context.Context, query string, limit int) ([]ports.WebResult, error) {
	feed, err := c.getFeed(ctx, "arxiv search", url.Values{
		"search_query": {"all:" + query},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(limit)},
		"sortBy":       {"relevance"},
	})
	if err != nil {
		return nil, err
	}

	results := make([]ports.WebResult, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		id := e.ID[strings.LastIndex(e.ID, "/")+1:]
		r := ports.WebResult{
			Title:    strings.Join(strings.Fields(e.Title), " "),
			Authors:  joinAuthors(e.authorNames()),
			URL:      "https://arxiv.org/abs/" + id,
			ArxivID:  id,
			Abstract: abstract(e.Summary),
			Source:   EngineArxiv,
		}
		for _, l := range e.Links {
			if l.Title == "pdf" {
				r.PDFURL = l.Href
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *Client) searchScholar(ctx context.Context, query string, limit int) ([]ports.WebResult, error) {
	var resp struct {
		Data []scholarPaper `json:"data"`
	}
	err := c.getJSON(ctx, "semantic scholar search", c.endpoints.SemanticScholar+"/paper/search", url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {"title,authors,year,abstract,url,citationCount,openAccessPdf"},
	}, c.scholarHeader(), &resp)
	if err != nil {
		return nil, err
	}

	results := make([]ports.WebResult, 0, len(resp.Data))
	for _, p := range resp.Data {
		names := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			names = append(names, a.Name)
		}
		results = append(results, ports.WebResult{
			Title:     p.Title,
			Authors:   joinAuthors(names),
			Year:      p.Year,
			URL:       p.URL,
			PDFURL:    p.pdfURL(),
			Citations: p.CitationCount,
			Abstract:  abstract(p.Abstract),
			Source:    EngineScholar,
		})
	}
	return results, nil
}

func (c *Client) searchBrave(ctx context.Context, query string, limit int, academic bool) ([]ports.WebResult, error) {
	if c.braveKey == "" {
		return nil, &application.ConfigurationError{Field: "BRAVE_API_KEY", Message: "is required for brave search (https://brave.com/search/api/)"}
	}
	if academic {
		query += academicSites
	}

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	header := http.Header{}
	header.Set("X-Subscription-Token", c.braveKey)
	err := c.getJSON(ctx, "brave search", c.endpoints.Brave, url.Values{
		"q":     {query},
		"count": {strconv.Itoa(limit)},
	}, header, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]ports.WebResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		results = append(results, ports.WebResult{
			Title:    r.Title,
			URL:      r.URL,
			Abstract: r.Description,
			Source:   EngineBrave,
		})
	}
	return results, nil
}

func joinAuthors(names []string) string {
	if len(names) <= 3 {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:3], ", ") + " et al."
}

func abstract(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return truncate(s, 300) + "..."
}
