// Package harvest defines core types shared across the crawl pipeline.
package harvest

import (
	"encoding/json"
	"time"
)

// Region is an outer crawl partition with its own set of localities.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Locality is an inner crawl partition owning one independent page cursor.
type Locality struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// Listing is a normalized directory entry extracted from one page.
// ListingID is the natural key: externally assigned, stable across runs.
// Optional attributes are pointers so callers can distinguish "absent"
// from "present but empty".
type Listing struct {
	ListingID        string          `json:"listing_id"`
	Kind             string          `json:"kind"`
	Region           string          `json:"region"`
	Locality         string          `json:"locality"`
	FirstName        *string         `json:"first_name,omitempty"`
	LastName         *string         `json:"last_name,omitempty"`
	DisplayName      *string         `json:"display_name,omitempty"`
	Title            *string         `json:"title,omitempty"`
	Bio              *string         `json:"bio,omitempty"`
	ProfileImageURL  *string         `json:"profile_image_url,omitempty"`
	RegistryID       *string         `json:"registry_id,omitempty"`
	Telehealth       bool            `json:"telehealth"`
	AcceptsInsurance bool            `json:"accepts_insurance"`
	AcceptsNew       bool            `json:"accepts_new_clients"`
	Specialties      []string        `json:"specialties,omitempty"`
	Payload          json.RawMessage `json:"payload"`
	ObservedAt       time.Time       `json:"observed_at"`
}

// Snapshot is an immutable raw page payload retained for audit/replay.
// Rows are write-once; a re-crawl of the same page produces a new row
// with a later FetchedAt rather than an update.
type Snapshot struct {
	Region    string          `json:"region"`
	Locality  string          `json:"locality"`
	Page      int             `json:"page"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// RawItem is one unparsed item from a page's data array.
type RawItem struct {
	ID            string                     `json:"id"`
	Type          string                     `json:"type"`
	Attributes    json.RawMessage            `json:"attributes"`
	Links         map[string]string          `json:"links,omitempty"`
	Relationships map[string]json.RawMessage `json:"relationships,omitempty"`
}

// RelatedKey addresses a linked object in a page's included set.
type RelatedKey struct {
	Type string
	ID   string
}

// RelatedObjects indexes a page's linked objects by (type, id).
type RelatedObjects map[RelatedKey]RawItem

// PageRequest identifies one page of one locality's cursor walk.
type PageRequest struct {
	Region   Region
	Locality Locality
	Page     int
	PageSize int
	// Cursor carries the opaque next-page indicator from the previous
	// response. Empty on the first page.
	Cursor string
}

// PageResponse is the parsed envelope of one page fetch.
type PageResponse struct {
	Items    []RawItem
	Included []RawItem
	// Next is the opaque next-page indicator. Empty means no more pages.
	Next string
	Raw  json.RawMessage
}

// UpsertResult reports partial success of a bulk upsert.
type UpsertResult struct {
	Accepted int
	Rejected int
}

// LocalityState is the terminal state of one locality's page walk.
type LocalityState string

// Terminal paginator states.
const (
	LocalityTerminated LocalityState = "terminated"
	LocalityFailed     LocalityState = "failed"
)

// LocalityResult aggregates one locality's walk outcome.
type LocalityResult struct {
	Locality     Locality
	State        LocalityState
	PagesFetched int
	PagesFailed  int
	Records      int
	ItemsSkipped int
	Err          error
}

// RegionState is the outcome of one region's fan-out.
type RegionState string

// Region outcomes reported in the final run report.
const (
	RegionSucceeded RegionState = "succeeded"
	RegionPartial   RegionState = "partial"
	RegionTimedOut  RegionState = "timed_out"
	RegionSkipped   RegionState = "skipped"
)

// RegionResult aggregates one region's locality outcomes.
type RegionResult struct {
	Region     Region
	State      RegionState
	Localities []LocalityResult
	Records    int
	Err        error
}
