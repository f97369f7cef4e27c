package database

import (
	"bytes"
	"strings"
	"text/template"
	"time"
)

type UpsertResourceArgs struct {
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
}

type InsertPlanArgs struct {
	TopicID            int64
	Title              string
	Preferences        Preferences
	Phases             []Phase
	TotalDurationHours int
}

var UpsertTopicQuery = strings.Join([]string{
	"INSERT INTO topics (slug, name, last_aggregated_at)",
	"VALUES ($1, $2, NOW())",
	"ON CONFLICT (slug)",
	"DO UPDATE SET last_aggregated_at = NOW(), updated_at = NOW()",
	"RETURNING id, slug, name, resource_count, last_aggregated_at, updated_at",
}, " ")

var TopicByIDQuery = strings.Join([]string{
	"SELECT id, slug, name, resource_count, last_aggregated_at, updated_at",
	"FROM topics WHERE id=$1",
}, " ")

var TopicBySlugQuery = strings.Join([]string{
	"SELECT id, slug, name, resource_count, last_aggregated_at, updated_at",
	"FROM topics WHERE slug=$1",
}, " ")

var UpdateTopicStatsQuery = strings.Join([]string{
	"UPDATE topics SET resource_count = $2, last_aggregated_at = NOW(), updated_at = NOW()",
	"WHERE id = $1",
}, " ")

// Upserts are keyed on the original URL; the identity key is never rewritten.
var UpsertResourceQuery = strings.Join([]string{
	"INSERT INTO resources (url, normalized_url, title, description, platform,",
	"type, difficulty, pricing, quality_score, duration_minutes, stars, view_count,",
	"rating, published_at, last_updated)",
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)",
	"ON CONFLICT (url)",
	"DO UPDATE SET normalized_url = EXCLUDED.normalized_url, title = EXCLUDED.title,",
	"description = EXCLUDED.description, platform = EXCLUDED.platform,",
	"type = EXCLUDED.type, difficulty = EXCLUDED.difficulty, pricing = EXCLUDED.pricing,",
	"quality_score = EXCLUDED.quality_score, duration_minutes = EXCLUDED.duration_minutes,",
	"stars = EXCLUDED.stars, view_count = EXCLUDED.view_count, rating = EXCLUDED.rating,",
	"published_at = EXCLUDED.published_at, last_updated = EXCLUDED.last_updated,",
	"updated_at = NOW()",
	"RETURNING id",
}, " ")

var LinkTopicResourceQuery = strings.Join([]string{
	"INSERT INTO topic_resources (topic_id, resource_id, relevance_score)",
	"VALUES ($1, $2, $3)",
	"ON CONFLICT (topic_id, resource_id)",
	"DO UPDATE SET relevance_score = EXCLUDED.relevance_score, updated_at = NOW()",
}, " ")

var InsertPlanQuery = strings.Join([]string{
	"INSERT INTO plans (topic_id, title, preferences, phases, total_duration_hours)",
	"VALUES ($1, $2, $3, $4, $5)",
	"RETURNING id",
}, " ")

var PlanByIDQuery = strings.Join([]string{
	"SELECT id, topic_id, title, preferences, phases, total_duration_hours,",
	"completion_percentage, created_at, updated_at",
	"FROM plans WHERE id=$1",
}, " ")

var ListPlansQuery = strings.Join([]string{
	"SELECT id, topic_id, title, preferences, phases, total_duration_hours,",
	"completion_percentage, created_at, updated_at",
	"FROM plans ORDER BY created_at DESC",
}, " ")

var DeletePlanQuery = "DELETE FROM plans WHERE id=$1"

var UpdatePlanCompletionQuery = strings.Join([]string{
	"UPDATE plans SET completion_percentage = $2, updated_at = NOW()",
	"WHERE id = $1",
}, " ")

var CompletedResourceIDsQuery = strings.Join([]string{
	"SELECT resource_id FROM progress",
	"WHERE status = 'completed' AND resource_id = ANY($1::bigint[])",
}, " ")

var UpsertProgressQuery = strings.Join([]string{
	"INSERT INTO progress (resource_id, status)",
	"VALUES ($1, $2)",
	"ON CONFLICT (resource_id)",
	"DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()",
}, " ")

var topicResourcesQueryTmpl = template.Must(
	template.New("topicResources").Parse(strings.Join([]string{
		"SELECT r.id, r.url, r.normalized_url, r.title, r.description, r.platform,",
		"r.type, r.difficulty, r.pricing, r.quality_score, r.duration_minutes,",
		"r.stars, r.view_count, r.rating, r.published_at, r.last_updated, r.updated_at,",
		"tr.relevance_score",
		"FROM topic_resources tr JOIN resources r ON r.id = tr.resource_id",
		"WHERE tr.topic_id = $1",
		"{{if .Type}} AND r.type = ${{.TypePos}}{{end}}",
		"{{if .Difficulty}} AND r.difficulty = ${{.DifficultyPos}}{{end}}",
		"{{if .Pricing}} AND r.pricing = ${{.PricingPos}}{{end}}",
		"{{if .HasMinQuality}} AND r.quality_score >= ${{.MinQualityPos}}{{end}}",
		"ORDER BY tr.relevance_score DESC",
	}, " ")),
)

// RenderTopicResourcesQuery builds SQL and args for the filtered,
// relevance-ordered association read.
func RenderTopicResourcesQuery(topicID int64, f ResourceFilter) (string, []any, error) {
	args := []any{topicID}
	params := struct {
		Type, Difficulty, Pricing                         string
		HasMinQuality                                     bool
		TypePos, DifficultyPos, PricingPos, MinQualityPos int
	}{Type: f.Type, Difficulty: f.Difficulty, Pricing: f.Pricing, HasMinQuality: f.MinQualityScore > 0}
	if f.Type != "" {
		args = append(args, f.Type)
		params.TypePos = len(args)
	}
	if f.Difficulty != "" {
		args = append(args, f.Difficulty)
		params.DifficultyPos = len(args)
	}
	if f.Pricing != "" {
		args = append(args, f.Pricing)
		params.PricingPos = len(args)
	}
	if params.HasMinQuality {
		args = append(args, f.MinQualityScore)
		params.MinQualityPos = len(args)
	}
	var buf bytes.Buffer
	if err := topicResourcesQueryTmpl.Execute(&buf, params); err != nil {
		return "", nil, err
	}
	return buf.String(), args, nil
}
