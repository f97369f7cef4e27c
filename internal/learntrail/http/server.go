// Package http exposes the pipeline over a small JSON API. Transport
// concerns stop here; handlers translate between JSON and the typed
// operations on the client set.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"learntrail.dev/internal/aggregate"
	"learntrail.dev/internal/config"
	"learntrail.dev/internal/database"
	"learntrail.dev/internal/learntrail"
	"learntrail.dev/internal/plan"
)

// Server holds handlers and dependencies for the LearnTrail HTTP server.
type Server struct {
	clients *learntrail.LearnTrail
	mux     *stdhttp.ServeMux
}

// NewServer initializes a Server and mounts the API routes.
func NewServer(clients *learntrail.LearnTrail) *Server {
	s := &Server{clients: clients, mux: stdhttp.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /v1/aggregate", s.handleAggregate)
	s.mux.HandleFunc("GET /v1/topics/{id}/resources", s.handleTopicResources)
	s.mux.HandleFunc("DELETE /v1/topics/{id}/cache", s.handleClearCache)
	s.mux.HandleFunc("POST /v1/topics/{id}/plans", s.handleGeneratePlan)
	s.mux.HandleFunc("GET /v1/plans", s.handleListPlans)
	s.mux.HandleFunc("GET /v1/plans/{id}", s.handleGetPlan)
	s.mux.HandleFunc("DELETE /v1/plans/{id}", s.handleDeletePlan)
	s.mux.HandleFunc("PUT /v1/resources/{id}/progress", s.handleProgress)
	return s
}

// NewServerForConfig builds LearnTrail clients from cfg and returns a
// configured Server.
func NewServerForConfig(cfg *config.Config) (*Server, error) {
	clients, err := learntrail.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewServer(clients), nil
}

// Close shuts down the server and closes database connections.
func (s *Server) Close() error {
	if s.clients != nil {
		return s.clients.Close()
	}
	return nil
}

// ListenAndServe starts the HTTP server on addr using the internal mux.
func (s *Server) ListenAndServe(addr string) error {
	slog.Info("server starting", "addr", addr)
	return stdhttp.ListenAndServe(addr, otelhttp.NewHandler(s.mux, "http.server"))
}

func (s *Server) handleHealth(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if err := s.clients.Ping(r.Context()); err != nil {
		writeError(w, stdhttp.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok", "service": "learntrail"})
}

type aggregateRequest struct {
	Topic                 string `json:"topic"`
	MaxResourcesPerSource int    `json:"maxResourcesPerSource"`
	IncludeYouTube        *bool  `json:"includeYoutube"`
	IncludeGitHub         *bool  `json:"includeGithub"`
	IncludeCurated        *bool  `json:"includeCurated"`
	MinQualityScore       *int   `json:"minQualityScore"`
}

func (s *Server) handleAggregate(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, stdhttp.StatusBadRequest, "invalid request body")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, stdhttp.StatusBadRequest, "topic is required")
		return
	}
	opts := aggregate.DefaultOptions()
	if req.MaxResourcesPerSource > 0 {
		opts.MaxResourcesPerSource = req.MaxResourcesPerSource
	}
	if req.IncludeYouTube != nil {
		opts.IncludeYouTube = *req.IncludeYouTube
	}
	if req.IncludeGitHub != nil {
		opts.IncludeGitHub = *req.IncludeGitHub
	}
	if req.IncludeCurated != nil {
		opts.IncludeCurated = *req.IncludeCurated
	}
	if req.MinQualityScore != nil {
		opts.MinQualityScore = *req.MinQualityScore
	}
	result, err := s.clients.Aggregator().AggregateResources(r.Context(), req.Topic, opts)
	if err != nil {
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, stdhttp.StatusOK, result)
}

func (s *Server) handleTopicResources(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := database.ResourceFilter{
		Type:       q.Get("type"),
		Difficulty: q.Get("difficulty"),
		Pricing:    q.Get("pricing"),
	}
	if v := q.Get("minQualityScore"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, stdhttp.StatusBadRequest, "minQualityScore must be an integer")
			return
		}
		filter.MinQualityScore = n
	}
	resources, err := s.clients.Aggregator().TopicResources(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceResponse(res))
	}
	writeJSON(w, stdhttp.StatusOK, map[string]any{"resources": out})
}

func (s *Server) handleClearCache(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.clients.Aggregator().ClearCache(id)
	w.WriteHeader(stdhttp.StatusNoContent)
}

func (s *Server) handleGeneratePlan(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var prefs database.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, stdhttp.StatusBadRequest, "invalid request body")
		return
	}
	p, err := s.clients.Planner().GeneratePlan(r.Context(), id, prefs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, stdhttp.StatusCreated, toPlanResponse(p))
}

func (s *Server) handleListPlans(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	plans, err := s.clients.Planner().ListPlans(r.Context())
	if err != nil {
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanResponse(p))
	}
	writeJSON(w, stdhttp.StatusOK, map[string]any{"plans": out})
}

func (s *Server) handleGetPlan(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.clients.Planner().GetPlan(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, stdhttp.StatusOK, toPlanResponse(p))
}

func (s *Server) handleDeletePlan(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.clients.Planner().DeletePlan(r.Context(), id); err != nil {
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(stdhttp.StatusNoContent)
}

func (s *Server) handleProgress(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, stdhttp.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case "not_started", "in_progress", "completed":
	default:
		writeError(w, stdhttp.StatusBadRequest,
			"status must be one of not_started, in_progress, completed")
		return
	}
	if err := s.clients.Database().UpsertProgress(r.Context(), id, req.Status); err != nil {
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(stdhttp.StatusNoContent)
}

func pathID(w stdhttp.ResponseWriter, r *stdhttp.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, stdhttp.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func writeDomainError(w stdhttp.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plan.ErrTopicNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, aggregate.ErrTopicNotFound):
		writeError(w, stdhttp.StatusNotFound, err.Error())
	case errors.Is(err, plan.ErrNoResources), errors.Is(err, plan.ErrNoMatch):
		writeError(w, stdhttp.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, stdhttp.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w stdhttp.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type resourceResponse struct {
	ID              int64      `json:"id"`
	URL             string     `json:"url"`
	NormalizedURL   string     `json:"normalizedUrl"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Platform        string     `json:"platform,omitempty"`
	Type            string     `json:"type"`
	Difficulty      string     `json:"difficulty"`
	Pricing         string     `json:"pricing"`
	QualityScore    int        `json:"qualityScore"`
	DurationMinutes float64    `json:"durationMinutes,omitempty"`
	Stars           int64      `json:"stars,omitempty"`
	ViewCount       int64      `json:"viewCount,omitempty"`
	Rating          float64    `json:"rating,omitempty"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	LastUpdated     *time.Time `json:"lastUpdated,omitempty"`
	RelevanceScore  int        `json:"relevanceScore"`
}

func toResourceResponse(r *database.Resource) resourceResponse {
	return resourceResponse{
		ID:              r.ID,
		URL:             r.URL,
		NormalizedURL:   r.NormalizedURL,
		Title:           r.Title,
		Description:     r.Description,
		Platform:        r.Platform,
		Type:            r.Type,
		Difficulty:      r.Difficulty,
		Pricing:         r.Pricing,
		QualityScore:    r.QualityScore,
		DurationMinutes: r.DurationMinutes,
		Stars:           r.Stars,
		ViewCount:       r.ViewCount,
		Rating:          r.Rating,
		PublishedAt:     r.PublishedAt,
		LastUpdated:     r.LastUpdated,
		RelevanceScore:  r.RelevanceScore,
	}
}

type planResponse struct {
	ID                   int64                `json:"id"`
	TopicID              int64                `json:"topicId"`
	Title                string               `json:"title"`
	Preferences          database.Preferences `json:"preferences"`
	Phases               []database.Phase     `json:"phases"`
	TotalDurationHours   int                  `json:"totalDurationHours"`
	CompletionPercentage float64              `json:"completionPercentage"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

func toPlanResponse(p *database.Plan) planResponse {
	phases := p.Phases
	if phases == nil {
		phases = []database.Phase{}
	}
	return planResponse{
		ID:                   p.ID,
		TopicID:              p.TopicID,
		Title:                p.Title,
		Preferences:          p.Preferences,
		Phases:               phases,
		TotalDurationHours:   p.TotalDurationHours,
		CompletionPercentage: p.CompletionPercentage,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}
