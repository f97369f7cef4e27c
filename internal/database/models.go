package database

import "time"

// Topic is the aggregation root for one normalized topic slug.
type Topic struct {
	ID               int64
	Slug             string
	Name             string
	ResourceCount    int
	LastAggregatedAt time.Time
	UpdatedAt        time.Time
}

// Resource is a persisted classified resource. Identity is the original URL;
// classification and metric fields are overwritten on upsert.
type Resource struct {
	ID              int64
	URL             string
	NormalizedURL   string
	Title           string
	Description     string
	Platform        string
	Type            string
	Difficulty      string
	Pricing         string
	QualityScore    int
	DurationMinutes float64
	Stars           int64
	ViewCount       int64
	Rating          float64
	PublishedAt     *time.Time
	LastUpdated     *time.Time
	UpdatedAt       time.Time

	// RelevanceScore is the quality score captured when the resource was
	// linked to a topic. Populated only by TopicResources reads.
	RelevanceScore int
}

// Preferences are the caller-supplied constraints a plan was generated under.
type Preferences struct {
	FreeOnly       bool     `json:"freeOnly,omitempty"`
	PreferredTypes []string `json:"preferredTypes,omitempty"`
}

// PhaseResource is the denormalized snapshot of one resource inside a phase,
// so the plan stays self-describing if the underlying resource changes.
type PhaseResource struct {
	ResourceID      int64   `json:"resourceId"`
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	Type            string  `json:"type"`
	Difficulty      string  `json:"difficulty"`
	DurationMinutes float64 `json:"durationMinutes,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Phase is one ordered step of a learning plan. Order values are 1..N,
// contiguous, with no repeats.
type Phase struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Order          int             `json:"order"`
	EstimatedHours int             `json:"estimatedHours"`
	Resources      []PhaseResource `json:"resources"`
}

// Plan is a persisted learning plan with its phases and preferences.
type Plan struct {
	ID                   int64
	TopicID              int64
	Title                string
	Preferences          Preferences
	Phases               []Phase
	TotalDurationHours   int
	CompletionPercentage float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ResourceFilter narrows TopicResources reads. Empty strings match anything.
type ResourceFilter struct {
	Type            string
	Difficulty      string
	Pricing         string
	MinQualityScore int
}
