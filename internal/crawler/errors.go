package crawler

import "fmt"

// Rejection reasons, also used as error categories in the crawl report.
const (
	ReasonFetchError     = "fetch-error"
	ReasonHostileHost    = "hostile-host"
	ReasonRobots         = "robots-disallowed"
	ReasonNoise          = "classified-noise"
	ReasonIncomplete     = "extraction-incomplete"
	ReasonValidation     = "validation-failed"
	ReasonVetoed         = "ai-vetoed"
	ReasonPersistFailure = "persist-failure"
)

// TaskError is one failed task in the crawl report. No single task
// error ever aborts the crawl.
type TaskError struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (e TaskError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.URL)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Reason, e.URL, e.Detail)
}

// Report is the outcome of one crawl run.
type Report struct {
	RootURL             string      `json:"root_url"`
	TotalURLsDiscovered int         `json:"total_urls_discovered"`
	IndexPages          int         `json:"index_pages"`
	DetailPages         int         `json:"detail_pages"`
	NoisePages          int         `json:"noise_pages"`
	ListingsPersisted   int         `json:"listings_persisted"`
	Inserted            int         `json:"inserted"`
	Updated             int         `json:"updated"`
	Errors              []TaskError `json:"errors,omitempty"`
}
