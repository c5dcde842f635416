package domain

// PageActionResult is produced by the page action executor. Exactly one of
// Message and Error is set.
type PageActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ActionSucceeded builds a successful result.
func ActionSucceeded(msg string) PageActionResult {
	return PageActionResult{Success: true, Message: msg}
}

// ActionFailed builds a failed result.
func ActionFailed(errMsg string) PageActionResult {
	return PageActionResult{Success: false, Error: errMsg}
}

// TabHandle identifies the tab a URL was opened in.
type TabHandle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PageInfo describes the active tab.
type PageInfo struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Domain    string `json:"domain"`
	Timestamp int64  `json:"timestamp"`
}

// Heading is a page heading in document order.
type Heading struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Link is an anchor with an href.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// PageOutline is a bounded structural summary of the active page.
type PageOutline struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Headings   []Heading `json:"headings"`
	Links      []Link    `json:"links"`
	FormCount  int       `json:"formCount"`
	ImageCount int       `json:"imageCount"`
	Timestamp  int64     `json:"timestamp"`
}
