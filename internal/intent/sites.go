package intent

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"little-giant/internal/domain"
)

// knownSites maps common site names to canonical URLs.
var knownSites = map[string]string{
	"youtube":       "https://youtube.com",
	"amazon":        "https://amazon.in",
	"flipkart":      "https://flipkart.com",
	"github":        "https://github.com",
	"google":        "https://google.com",
	"gmail":         "https://mail.google.com",
	"facebook":      "https://facebook.com",
	"instagram":     "https://instagram.com",
	"twitter":       "https://x.com",
	"x":             "https://x.com",
	"linkedin":      "https://linkedin.com",
	"reddit":        "https://reddit.com",
	"wikipedia":     "https://wikipedia.org",
	"netflix":       "https://netflix.com",
	"stackoverflow": "https://stackoverflow.com",
	"chatgpt":       "https://chat.openai.com",
	"whatsapp":      "https://web.whatsapp.com",
}

// searchTemplates maps each search-engine action to a URL template taking
// the query-escaped search terms.
var searchTemplates = map[domain.Action]string{
	domain.ActionWebSearch: "https://www.google.com/search?q=%s",
	domain.ActionImages:    "https://www.google.com/search?tbm=isch&q=%s",
	domain.ActionVideos:    "https://www.youtube.com/results?search_query=%s",
}

var siteWord = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// SiteURL resolves a site name, bare domain or URL to an absolute URL.
// It returns "" when name is not something a browser could open.
func SiteURL(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	lower := strings.ToLower(n)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return n
	}
	if strings.Contains(lower, "://") {
		return ""
	}
	key := strings.Join(strings.Fields(lower), "")
	key = strings.TrimPrefix(key, "www.")
	if u, ok := knownSites[key]; ok {
		return u
	}
	if strings.Contains(key, ".") && !strings.ContainsAny(key, " \"'<>") {
		return "https://" + strings.TrimPrefix(strings.Join(strings.Fields(n), ""), "//")
	}
	if siteWord.MatchString(key) {
		return "https://" + key + ".com"
	}
	return ""
}

// SearchURL builds the search URL for one of the search-engine actions.
func SearchURL(action domain.Action, query string) (string, bool) {
	tmpl, ok := searchTemplates[action]
	query = strings.TrimSpace(query)
	if !ok || query == "" {
		return "", false
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(query)), true
}

// isOpenableURL accepts only absolute http(s) URLs with a host.
func isOpenableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func siteTableLines() []string {
	names := make([]string, 0, len(knownSites))
	for name := range knownSites {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s -> %s", name, knownSites[name]))
	}
	return lines
}
