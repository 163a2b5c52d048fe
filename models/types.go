package models

// FetchRequest describes one page fetch executed against a pooled browser
// session.
type FetchRequest struct {
	// URL is the page to fetch. Required.
	URL string `json:"url" binding:"required"`

	// Method is the HTTP method. Defaults to GET.
	Method string `json:"method,omitempty"`

	// Headers are extra request headers applied before navigation.
	Headers map[string]string `json:"headers,omitempty"`

	// Timeout is the per-request timeout in seconds. Defaults to 30.
	Timeout int `json:"timeout,omitempty"`
}

// Defaults fills zero-valued fields with their defaults.
func (r *FetchRequest) Defaults() {
	if r.Method == "" {
		r.Method = "GET"
	}
	if r.Timeout <= 0 {
		r.Timeout = 30
	}
}

// FetchResult is the raw outcome of a page fetch. Content post-processing
// is owned by the consuming pipeline.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
}

// FetchResponse is the response for POST /api/v1/fetch.
type FetchResponse struct {
	// Success indicates whether the fetch completed without errors.
	Success bool `json:"success"`

	// StatusCode is the HTTP status code from the fetched page.
	StatusCode int `json:"status_code,omitempty"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url,omitempty"`

	// Title is the document title of the fetched page.
	Title string `json:"title,omitempty"`

	// HTML is the rendered page markup.
	HTML string `json:"html,omitempty"`

	// Retryable tells the caller whether the failure is worth retrying.
	// Meaningful only when Success is false.
	Retryable bool `json:"retryable,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	NumBrowsers int   `json:"num_browsers"`
	Ready       int   `json:"ready"`
	Busy        int   `json:"busy"`
	Starting    int   `json:"starting"`
	PagesServed int64 `json:"pages_served"`
	Recycled    int64 `json:"recycled"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}
