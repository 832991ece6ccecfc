package pipeline

import (
	"github.com/hazyhaar/postlink/dom"
	"github.com/hazyhaar/postlink/platform"
)

// Status is the outcome class of one post.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Reason explains a skipped or failed outcome.
type Reason string

const (
	ReasonInvalidElement      Reason = "invalid_element"
	ReasonInvalidPlatform     Reason = "invalid_platform"
	ReasonInvalidHostname     Reason = "invalid_hostname"
	ReasonURLExtractionFailed Reason = "url_extraction_failed"
	ReasonNoURLFound          Reason = "no_url_found"
	ReasonButtonCreation      Reason = "button_creation_failed"
	ReasonNoInjectionPoint    Reason = "no_injection_point"
	ReasonButtonInjection     Reason = "button_injection_failed"
	ReasonUnexpected          Reason = "unexpected_error"

	ReasonAlreadyProcessed Reason = "already_processed"
	ReasonNotVisible       Reason = "not_visible"
	ReasonControlDeclined  Reason = "control_declined"
	ReasonRetryExhausted   Reason = "retry_exhausted"
)

// Result is the outcome of processing one post. It is always well formed;
// Err is set for failures only.
type Result struct {
	Status   Status      `json:"status"`
	Reason   Reason      `json:"reason,omitempty"`
	Platform platform.ID `json:"platform,omitempty"`
	// PostKey is the durable identity, when one was extracted.
	PostKey string `json:"post_key,omitempty"`
	// URL is the rewritten link of an injected control.
	URL string `json:"url,omitempty"`
	// Element is the post the result is about, nil for batch-level
	// failures.
	Element dom.Element `json:"-"`
	Err     error       `json:"-"`
}

// Success reports whether a control was injected.
func (r Result) Success() bool { return r.Status == StatusSuccess }

// Skipped reports a legitimate no-op.
func (r Result) Skipped() bool { return r.Status == StatusSkipped }

// Failed reports an error outcome.
func (r Result) Failed() bool { return r.Status == StatusFailed }

// Error returns the error text, "" when none.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// BatchResult aggregates the results of a batch in input order.
type BatchResult struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Reasons   map[Reason]int `json:"reasons,omitempty"`
	Results   []Result       `json:"results,omitempty"`
}

func (b *BatchResult) add(r Result) {
	b.Total++
	switch r.Status {
	case StatusSuccess:
		b.Succeeded++
	case StatusSkipped:
		b.Skipped++
	default:
		b.Failed++
	}
	if r.Reason != "" {
		if b.Reasons == nil {
			b.Reasons = make(map[Reason]int)
		}
		b.Reasons[r.Reason]++
	}
	b.Results = append(b.Results, r)
}

// Merge folds o into b.
func (b *BatchResult) Merge(o BatchResult) {
	for _, r := range o.Results {
		b.add(r)
	}
}
