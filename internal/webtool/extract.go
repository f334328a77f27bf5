// Package webtool fetches and inspects web pages ahead of a crawl.
package webtool

import (
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageReport summarizes the links and robots directives of a single page.
type PageReport struct {
	NoIndex     bool
	NoFollow    bool
	CrawlURLs   []string
	SkippedURLs []string
}

// Extract parses the HTML in r and reports the page's meta robots
// directives plus every unique link, with fragments and query strings
// stripped. Links carrying rel="nofollow" land in SkippedURLs. When
// domainFilter (scheme://host) or pathFilter is set, links outside them
// are dropped entirely. Both URL lists come back sorted.
func Extract(r io.Reader, baseURL, domainFilter, pathFilter string) (PageReport, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return PageReport{}, err
	}

	var report PageReport
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		if name, _ := s.Attr("name"); !strings.EqualFold(name, "robots") {
			return
		}
		content, _ := s.Attr("content")
		content = strings.ToLower(content)
		if strings.Contains(content, "noindex") {
			report.NoIndex = true
		}
		if strings.Contains(content, "nofollow") {
			report.NoFollow = true
		}
	})

	base, err := url.Parse(baseURL)
	if err != nil {
		return PageReport{}, err
	}

	crawl := make(map[string]struct{})
	skipped := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		resolved.RawQuery = ""

		if pathFilter != "" && !strings.HasPrefix(resolved.Path, pathFilter) {
			return
		}
		if domainFilter != "" && resolved.Scheme+"://"+resolved.Host != domainFilter {
			return
		}

		if linkIsNoFollow(s) {
			skipped[resolved.String()] = struct{}{}
		} else {
			crawl[resolved.String()] = struct{}{}
		}
	})

	report.CrawlURLs = sortedKeys(crawl)
	report.SkippedURLs = sortedKeys(skipped)
	return report, nil
}

func linkIsNoFollow(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	for _, token := range strings.Fields(rel) {
		if strings.EqualFold(token, "nofollow") {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
