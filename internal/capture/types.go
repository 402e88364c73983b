package capture

import "time"

// NoTab is the tab id recorded for requests that did not originate from a
// browser tab (service workers, extensions, browser-internal fetches).
const NoTab = -1

// DefaultCapacity is the retention bound applied when none is configured.
const DefaultCapacity = 500

// CapturedRequest is one observed request to an S3 bucket endpoint.
type CapturedRequest struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	Timestamp   time.Time `json:"timestamp"`
	TabID       int       `json:"tabId"`
	RequestType string    `json:"requestType,omitempty"`
}

// Badge is the status text shown for the active tab. An empty Color leaves
// the previously shown colour unchanged.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}
