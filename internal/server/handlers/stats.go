package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dugoutdata/dugout/internal/core/cache"
	apperrors "github.com/dugoutdata/dugout/internal/errors"
	"github.com/dugoutdata/dugout/internal/stats"
)

// StatsService is the subset of stats.Service the HTTP surface needs.
type StatsService interface {
	PitcherSeasonStats(ctx context.Context, params stats.PlayerSeasonParams) (*stats.PitchingLine, error)
	BatterSeasonStats(ctx context.Context, params stats.PlayerSeasonParams) (*stats.BattingLine, error)
	CareerStats(ctx context.Context, params stats.CareerParams) (*stats.CareerStats, error)
	Lineup(ctx context.Context, params stats.LineupParams) (*stats.Lineup, error)
	CatcherDefense(ctx context.Context, params stats.CatcherParams) (*stats.CatcherDefense, error)
	PitchMix(ctx context.Context, params stats.PitchMixParams) (*stats.PitchMix, error)
	Matchup(ctx context.Context, params stats.MatchupParams) (*stats.Matchup, error)
	CacheStats() cache.Stats
}

// StatsHandler serves the /v1 endpoints.
type StatsHandler struct {
	service StatsService
	clock   func() time.Time
}

// NewStatsHandler wraps service. clock picks the default season and may be nil.
func NewStatsHandler(service StatsService, clock func() time.Time) *StatsHandler {
	if clock == nil {
		clock = time.Now
	}
	return &StatsHandler{service: service, clock: clock}
}

// Routes mounts the handler's endpoints on r.
func (h *StatsHandler) Routes(r chi.Router) {
	r.Get("/pitchers/{id}/stats", h.PitcherStats)
	r.Get("/pitchers/{id}/pitch-mix", h.PitchMix)
	r.Get("/batters/{id}/stats", h.BatterStats)
	r.Get("/players/{id}/career", h.Career)
	r.Get("/catchers/{id}/defense", h.CatcherDefense)
	r.Get("/games/{gamePk}/lineup", h.Lineup)
	r.Get("/games/{gamePk}/matchup", h.Matchup)
	r.Get("/cache/stats", h.CacheStats)
}

func (h *StatsHandler) PitcherStats(w http.ResponseWriter, r *http.Request) {
	params, ok := h.playerSeason(w, r)
	if !ok {
		return
	}
	line, err := h.service.PitcherSeasonStats(r.Context(), params)
	h.respond(w, r, line, err)
}

func (h *StatsHandler) BatterStats(w http.ResponseWriter, r *http.Request) {
	params, ok := h.playerSeason(w, r)
	if !ok {
		return
	}
	line, err := h.service.BatterSeasonStats(r.Context(), params)
	h.respond(w, r, line, err)
}

func (h *StatsHandler) Career(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathInt(w, r, "id")
	if !ok {
		return
	}
	group := r.URL.Query().Get("group")
	switch group {
	case "":
		group = stats.GroupHitting
	case stats.GroupHitting, stats.GroupPitching:
	default:
		respondWithError(w, r, apperrors.NewInvalidInputError(
			fmt.Sprintf("group must be %q or %q", stats.GroupHitting, stats.GroupPitching)))
		return
	}
	career, err := h.service.CareerStats(r.Context(), stats.CareerParams{PlayerID: id, Group: group})
	h.respond(w, r, career, err)
}

func (h *StatsHandler) CatcherDefense(w http.ResponseWriter, r *http.Request) {
	params, ok := h.playerSeason(w, r)
	if !ok {
		return
	}
	defense, err := h.service.CatcherDefense(r.Context(), params)
	h.respond(w, r, defense, err)
}

func (h *StatsHandler) PitchMix(w http.ResponseWriter, r *http.Request) {
	params, ok := h.playerSeason(w, r)
	if !ok {
		return
	}
	mix, err := h.service.PitchMix(r.Context(), params)
	h.respond(w, r, mix, err)
}

func (h *StatsHandler) Lineup(w http.ResponseWriter, r *http.Request) {
	gamePk, ok := h.pathInt(w, r, "gamePk")
	if !ok {
		return
	}
	lineup, err := h.service.Lineup(r.Context(), stats.LineupParams{GamePk: gamePk})
	h.respond(w, r, lineup, err)
}

func (h *StatsHandler) Matchup(w http.ResponseWriter, r *http.Request) {
	gamePk, ok := h.pathInt(w, r, "gamePk")
	if !ok {
		return
	}
	// Matchup falls back to the feed's season, so no default here.
	season, ok := h.queryInt(w, r, "season", 0)
	if !ok {
		return
	}
	report, err := h.service.Matchup(r.Context(), stats.MatchupParams{GamePk: gamePk, Season: season})
	h.respond(w, r, report, err)
}

func (h *StatsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.CacheStats())
}

func (h *StatsHandler) playerSeason(w http.ResponseWriter, r *http.Request) (stats.PlayerSeasonParams, bool) {
	id, ok := h.pathInt(w, r, "id")
	if !ok {
		return stats.PlayerSeasonParams{}, false
	}
	season, ok := h.queryInt(w, r, "season", h.clock().Year())
	if !ok {
		return stats.PlayerSeasonParams{}, false
	}
	return stats.PlayerSeasonParams{PlayerID: id, Season: season}, true
}

func (h *StatsHandler) pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	value, err := strconv.Atoi(raw)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, fmt.Sprintf("%s must be an integer", name)))
		return 0, false
	}
	return value, true
}

func (h *StatsHandler) queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, fmt.Sprintf("%s must be an integer", name)))
		return 0, false
	}
	return value, true
}

func (h *StatsHandler) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err != nil {
		respondWithError(w, r, apperrors.FromFetchError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, body)
}
