// Package model defines shared data structures for the sync service.
package model

import "encoding/json"

// Region is one of the two tracked branches of the organization.
type Region string

const (
	RegionRzeszow   Region = "Rzeszów"
	RegionSkarzysko Region = "Skarżysko-Kamienna"
)

// RawNotice is one element of the listing sequence returned by the portal.
// Its shape is not stable, so it is kept as raw JSON until normalization.
type RawNotice = json.RawMessage

// Tender is the canonical form of a notice.
// It is eligible for sync only when both Number and Region are non-empty.
type Tender struct {
	ID       string `json:"id,omitempty"`
	Number   string `json:"number"`
	Title    string `json:"title"`
	Deadline string `json:"deadline,omitempty"` // raw, normalized when the card is built
	Region   Region `json:"region"`
	URL      string `json:"url"`
}

// Eligible reports whether the tender may be mirrored on the board.
func (t Tender) Eligible() bool {
	return t.Number != "" && t.Region != ""
}

// Card mirrors the subset of a board card the service reads or creates.
type Card struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// RunSummary collects the counters of one sync run.
type RunSummary struct {
	RunID    string `json:"runId"`
	Strategy string `json:"strategy"`
	Raw      int    `json:"raw"`
	Unique   int    `json:"unique"`
	Eligible int    `json:"eligible"`
	Existing int    `json:"existing"`
	Fresh    int    `json:"fresh"`
	Created  int    `json:"created"`
	Failed   int    `json:"failed"`
	Skipped  bool   `json:"skipped,omitempty"` // another run held the lock
}
