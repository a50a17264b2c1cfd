package domain

import "time"

// GuidanceSteps is a lookup result from the tabular guidance source.
// The source has no header: a row whose first column equals the jurisdiction
// carries the online portal link, and the row after it carries the raw steps.
type GuidanceSteps struct {
	JurisdictionName string `json:"jurisdiction_name"`
	OriginalSteps    string `json:"original_steps,omitempty"`
	OnlineLink       string `json:"online_link,omitempty"`
	NotFound         bool   `json:"not_found,omitempty"`
}

// HasSteps reports whether a steps row followed the matched jurisdiction row.
func (s GuidanceSteps) HasSteps() bool {
	return !s.NotFound && s.OriginalSteps != ""
}

// CachedGuidance is a persisted synthesized guidance entry, keyed by
// jurisdiction name (unique, case-insensitive). UsageCount starts at 1 and
// is incremented as a side effect of every successful read.
type CachedGuidance struct {
	ID               string    `json:"id"`
	JurisdictionName string    `json:"jurisdiction_name"`
	GuidanceText     string    `json:"guidance_text"`
	UsageCount       int64     `json:"usage_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastUsedAt       time.Time `json:"last_used_at"`
}

// GuidanceOrigin tells callers where a guidance text came from.
type GuidanceOrigin string

const (
	GuidanceFromCache   GuidanceOrigin = "cache_hit"
	GuidanceGenerated   GuidanceOrigin = "generated"
	GuidanceUnavailable GuidanceOrigin = "unavailable"
)

// GuidanceResult is the outcome of a get-or-build guidance request.
type GuidanceResult struct {
	JurisdictionName string         `json:"jurisdiction_name"`
	GuidanceText     string         `json:"guidance_text,omitempty"`
	OriginalSteps    string         `json:"original_steps,omitempty"`
	OnlineLink       string         `json:"online_link,omitempty"`
	Origin           GuidanceOrigin `json:"origin"`
}

// GuidanceUsage is a stats row for the most used cached jurisdictions.
type GuidanceUsage struct {
	JurisdictionName string    `json:"jurisdiction_name"`
	UsageCount       int64     `json:"usage_count"`
	LastUsedAt       time.Time `json:"last_used_at"`
}

// GuidanceStats summarizes the cache contents.
type GuidanceStats struct {
	TotalEntries    int64           `json:"total_entries"`
	TotalUsageCount int64           `json:"total_usage_count"`
	MostUsed        []GuidanceUsage `json:"most_used"`
}
