package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"learntrail.dev/internal/config"
	dbpgx "learntrail.dev/internal/database/pgx"
)

type Database struct {
	pg *pgxpool.Pool
}

// NewForConfig constructs a Database using the provided config.
func NewForConfig(cfg *config.Config) (*Database, error) {
	pg, err := dbpgx.NewClientForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(pg), nil
}

// NewClient constructs a Database using the provided pgx pool.
func NewClient(pg *pgxpool.Pool) *Database { return &Database{pg: pg} }

// Ping verifies the provided database connection is available
func (db *Database) Ping(ctx context.Context) error {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.Ping")
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	return db.pg.Ping(ctx)
}

func (db *Database) Close() error {
	if db.pg == nil {
		return nil
	}
	db.pg.Close()
	return nil
}

// UpsertTopic resolves or creates the topic for slug and stamps
// last_aggregated_at.
func (db *Database) UpsertTopic(ctx context.Context, slug, name string) (*Topic, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.UpsertTopic")
	span.SetAttributes(attribute.String("slug", slug))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var t Topic
	err := db.pg.QueryRow(ctx, UpsertTopicQuery, slug, name).
		Scan(&t.ID, &t.Slug, &t.Name, &t.ResourceCount, &t.LastAggregatedAt, &t.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upsert topic failed: %w", err)
	}
	slog.DebugContext(ctx, "upsert topic done", "slug", slug, "id", t.ID)
	return &t, nil
}

// GetTopic returns the topic by id, or nil when absent.
func (db *Database) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.GetTopic")
	span.SetAttributes(attribute.Int64("topic_id", id))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var t Topic
	err := db.pg.QueryRow(ctx, TopicByIDQuery, id).
		Scan(&t.ID, &t.Slug, &t.Name, &t.ResourceCount, &t.LastAggregatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query topic failed: %w", err)
	}
	return &t, nil
}

// TopicBySlug returns the topic by normalized slug, or nil when absent.
func (db *Database) TopicBySlug(ctx context.Context, slug string) (*Topic, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var t Topic
	err := db.pg.QueryRow(ctx, TopicBySlugQuery, slug).
		Scan(&t.ID, &t.Slug, &t.Name, &t.ResourceCount, &t.LastAggregatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query topic failed: %w", err)
	}
	return &t, nil
}

// UpdateTopicStats sets the topic's resource count and refreshes its
// last_aggregated_at stamp.
func (db *Database) UpdateTopicStats(ctx context.Context, topicID int64, resourceCount int) error {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.UpdateTopicStats")
	span.SetAttributes(attribute.Int64("topic_id", topicID), attribute.Int("resource_count", resourceCount))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if _, err := db.pg.Exec(ctx, UpdateTopicStatsQuery, topicID, resourceCount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update topic stats failed: %w", err)
	}
	return nil
}

// UpsertResource stores one classified resource keyed by its original URL
// and returns the stable resource id.
func (db *Database) UpsertResource(ctx context.Context, args *UpsertResourceArgs) (int64, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.UpsertResource")
	defer span.End()
	if db.pg == nil {
		return 0, fmt.Errorf("database connection not available")
	}
	var id int64
	err := db.pg.QueryRow(ctx, UpsertResourceQuery,
		args.URL, args.NormalizedURL, args.Title, args.Description, args.Platform,
		args.Type, args.Difficulty, args.Pricing, args.QualityScore, args.DurationMinutes,
		args.Stars, args.ViewCount, args.Rating, args.PublishedAt, args.LastUpdated,
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("upsert resource failed: %w", err)
	}
	return id, nil
}

// LinkTopicResource upserts the (topic, resource) association with the
// relevance score captured at link time.
func (db *Database) LinkTopicResource(ctx context.Context, topicID, resourceID int64, relevance int) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if _, err := db.pg.Exec(ctx, LinkTopicResourceQuery, topicID, resourceID, relevance); err != nil {
		return fmt.Errorf("link topic resource failed: %w", err)
	}
	return nil
}

// TopicResources reads a topic's associated resources with optional equality
// filters, ordered by relevance score descending.
func (db *Database) TopicResources(ctx context.Context, topicID int64, f ResourceFilter) ([]*Resource, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.TopicResources")
	span.SetAttributes(attribute.Int64("topic_id", topicID))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	query, args, err := RenderTopicResourcesQuery(topicID, f)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "topic resources query", "sql", query, "args_len", len(args))
	rows, err := db.pg.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("topic resources query failed: %w", err)
	}
	defer rows.Close()
	var out []*Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(
			&r.ID, &r.URL, &r.NormalizedURL, &r.Title, &r.Description, &r.Platform,
			&r.Type, &r.Difficulty, &r.Pricing, &r.QualityScore, &r.DurationMinutes,
			&r.Stars, &r.ViewCount, &r.Rating, &r.PublishedAt, &r.LastUpdated, &r.UpdatedAt,
			&r.RelevanceScore,
		); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	slog.DebugContext(ctx, "topic resources done", "topic_id", topicID, "count", len(out))
	return out, rows.Err()
}

// InsertPlan stores a freshly generated plan and returns its id.
func (db *Database) InsertPlan(ctx context.Context, args *InsertPlanArgs) (int64, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.InsertPlan")
	span.SetAttributes(attribute.Int64("topic_id", args.TopicID), attribute.Int("phases_len", len(args.Phases)))
	defer span.End()
	if db.pg == nil {
		return 0, fmt.Errorf("database connection not available")
	}
	prefs, err := json.Marshal(args.Preferences)
	if err != nil {
		return 0, fmt.Errorf("marshal preferences: %w", err)
	}
	phases, err := json.Marshal(args.Phases)
	if err != nil {
		return 0, fmt.Errorf("marshal phases: %w", err)
	}
	var id int64
	err = db.pg.QueryRow(ctx, InsertPlanQuery,
		args.TopicID, args.Title, prefs, phases, args.TotalDurationHours,
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("insert plan failed: %w", err)
	}
	return id, nil
}

// GetPlan returns the plan by id, or nil when absent. Corrupt stored phase
// or preference JSON reads as empty instead of failing the read.
func (db *Database) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.GetPlan")
	span.SetAttributes(attribute.Int64("plan_id", id))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	p, err := scanPlan(db.pg.QueryRow(ctx, PlanByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query plan failed: %w", err)
	}
	return p, nil
}

// ListPlans returns all stored plans, newest first.
func (db *Database) ListPlans(ctx context.Context) ([]*Plan, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.ListPlans")
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := db.pg.Query(ctx, ListPlansQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list plans failed: %w", err)
	}
	defer rows.Close()
	var out []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePlan removes the plan by id. Deleting an absent plan is not an error.
func (db *Database) DeletePlan(ctx context.Context, id int64) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if _, err := db.pg.Exec(ctx, DeletePlanQuery, id); err != nil {
		return fmt.Errorf("delete plan failed: %w", err)
	}
	return nil
}

// UpdatePlanCompletion persists a recomputed completion percentage.
func (db *Database) UpdatePlanCompletion(ctx context.Context, id int64, pct float64) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if _, err := db.pg.Exec(ctx, UpdatePlanCompletionQuery, id, pct); err != nil {
		return fmt.Errorf("update plan completion failed: %w", err)
	}
	return nil
}

// CompletedResourceIDs returns which of the given resource ids have a
// progress entry with status completed.
func (db *Database) CompletedResourceIDs(ctx context.Context, resourceIDs []int64) (map[int64]bool, error) {
	tracer := otel.Tracer("learntrail/database")
	ctx, span := tracer.Start(ctx, "Database.CompletedResourceIDs")
	span.SetAttributes(attribute.Int("resource_ids_len", len(resourceIDs)))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	if len(resourceIDs) == 0 {
		return map[int64]bool{}, nil
	}
	rows, err := db.pg.Query(ctx, CompletedResourceIDsQuery, resourceIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("completed resources query failed: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// UpsertProgress records the tracked status of one resource.
func (db *Database) UpsertProgress(ctx context.Context, resourceID int64, status string) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if _, err := db.pg.Exec(ctx, UpsertProgressQuery, resourceID, status); err != nil {
		return fmt.Errorf("upsert progress failed: %w", err)
	}
	return nil
}

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	var prefs, phases []byte
	if err := row.Scan(
		&p.ID, &p.TopicID, &p.Title, &prefs, &phases,
		&p.TotalDurationHours, &p.CompletionPercentage, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
			slog.Warn("corrupt plan preferences; treating as empty", "plan_id", p.ID, "error", err)
			p.Preferences = Preferences{}
		}
	}
	if len(phases) > 0 {
		if err := json.Unmarshal(phases, &p.Phases); err != nil {
			slog.Warn("corrupt plan phases; treating as empty", "plan_id", p.ID, "error", err)
			p.Phases = nil
		}
	}
	return &p, nil
}
