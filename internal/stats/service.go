package stats

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/cache"
	"github.com/dugoutdata/dugout/internal/core/client"
	"github.com/dugoutdata/dugout/internal/core/engine"
	"github.com/dugoutdata/dugout/internal/metrics"
)

// Options wires a Service.
type Options struct {
	Stats        *client.Client
	Vendor       *client.Client
	Cache        *cache.Cache
	TTLs         cache.TTLPolicy
	Orchestrator *engine.Orchestrator
	Logger       *logging.Logger
	Clock        func() time.Time

	// StatsVersion is the version segment for player stat endpoints.
	// The zero value means v1. The game feed always uses v1.1.
	StatsVersion core.APIVersion
}

// Service fetches domain values through the cache. Values handed out are
// copies; cached values are never exposed for mutation.
type Service struct {
	stats        *client.Client
	vendor       *client.Client
	cache        *cache.Cache
	ttls         cache.TTLPolicy
	orchestrator *engine.Orchestrator
	logger       *logging.Logger
	clock        func() time.Time
	statsVersion core.APIVersion

	pitcherSeason func(context.Context, PlayerSeasonParams) (*PitchingLine, error)
	batterSeason  func(context.Context, PlayerSeasonParams) (*BattingLine, error)
	career        func(context.Context, CareerParams) (*CareerStats, error)
	lineup        func(context.Context, LineupParams) (*Lineup, error)
	catcherBoard  func(context.Context, int) (catcherBoard, error)
	arsenalBoard  func(context.Context, int) (arsenalBoard, error)
}

// NewService builds a Service. Stats and Vendor clients are required.
func NewService(opts Options) (*Service, error) {
	if opts.Stats == nil {
		return nil, errors.New("stats client is required")
	}
	if opts.Vendor == nil {
		return nil, errors.New("vendor client is required")
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Options{Logger: opts.Logger})
	}
	if opts.TTLs == nil {
		opts.TTLs = cache.DefaultTTLPolicy()
	}
	if opts.Orchestrator == nil {
		opts.Orchestrator = &engine.Orchestrator{}
	}
	if opts.StatsVersion == core.APIVersionNone {
		opts.StatsVersion = core.APIVersionV1
	}

	s := &Service{
		stats:        opts.Stats,
		vendor:       opts.Vendor,
		cache:        opts.Cache,
		ttls:         opts.TTLs,
		orchestrator: opts.Orchestrator,
		logger:       opts.Logger,
		clock:        opts.Clock,
		statsVersion: opts.StatsVersion,
	}

	s.pitcherSeason = cache.Wrap(s.cache, string(core.CategoryPitcherSeasonStats), s.ttls.For(core.CategoryPitcherSeasonStats), s.fetchPitcherSeason)
	s.batterSeason = cache.Wrap(s.cache, string(core.CategoryBatterSeasonStats), s.ttls.For(core.CategoryBatterSeasonStats), s.fetchBatterSeason)
	s.career = cache.Wrap(s.cache, string(core.CategoryCareerStats), s.ttls.For(core.CategoryCareerStats), s.fetchCareer)
	s.lineup = cache.Wrap(s.cache, string(core.CategoryLineup), s.ttls.For(core.CategoryLineup), s.fetchLineup)
	s.catcherBoard = cache.Wrap(s.cache, string(core.CategoryCatcherDefense), s.ttls.For(core.CategoryCatcherDefense), s.fetchCatcherBoard)
	s.arsenalBoard = cache.Wrap(s.cache, string(core.CategoryPitchMix), s.ttls.For(core.CategoryPitchMix), s.fetchArsenalBoard)

	return s, nil
}

// Cache exposes the underlying cache for diagnostics.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// CacheStats reports the cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// PitcherSeasonStats returns a pitcher's season line, or a zeroed fallback
// line when the upstream cannot answer.
func (s *Service) PitcherSeasonStats(ctx context.Context, params PlayerSeasonParams) (*PitchingLine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	line, err := s.pitcherSeason(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := s.fallback(core.CategoryPitcherSeasonStats, err, zap.Int("player_id", params.PlayerID), zap.Int("season", params.Season))
		return core.Stamp(&PitchingLine{PlayerID: params.PlayerID, Season: params.Season, Fallback: reason}, s.now()), nil
	}
	copied := *line
	return &copied, nil
}

// BatterSeasonStats returns a batter's season line, or a zeroed fallback line.
func (s *Service) BatterSeasonStats(ctx context.Context, params PlayerSeasonParams) (*BattingLine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	line, err := s.batterSeason(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := s.fallback(core.CategoryBatterSeasonStats, err, zap.Int("player_id", params.PlayerID), zap.Int("season", params.Season))
		return core.Stamp(&BattingLine{PlayerID: params.PlayerID, Season: params.Season, Fallback: reason}, s.now()), nil
	}
	copied := *line
	return &copied, nil
}

// CareerStats returns career totals for one stat group.
func (s *Service) CareerStats(ctx context.Context, params CareerParams) (*CareerStats, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	stats, err := s.career(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := s.fallback(core.CategoryCareerStats, err, zap.Int("player_id", params.PlayerID), zap.String("group", params.Group))
		return core.Stamp(&CareerStats{PlayerID: params.PlayerID, Group: params.Group, Fallback: reason}, s.now()), nil
	}
	copied := *stats
	if stats.Pitching != nil {
		pitching := *stats.Pitching
		copied.Pitching = &pitching
	}
	if stats.Batting != nil {
		batting := *stats.Batting
		copied.Batting = &batting
	}
	return &copied, nil
}

// Lineup returns both batting orders of a game. The fallback has no batters.
func (s *Service) Lineup(ctx context.Context, params LineupParams) (*Lineup, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	lineup, err := s.lineup(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := s.fallback(core.CategoryLineup, err, zap.Int("game_pk", params.GamePk))
		return core.Stamp(&Lineup{
			GamePk:   params.GamePk,
			Away:     TeamLineup{Batters: []LineupSlot{}},
			Home:     TeamLineup{Batters: []LineupSlot{}},
			Fallback: reason,
		}, s.now()), nil
	}
	return copyLineup(lineup), nil
}

// CatcherDefense returns a catcher's defensive value for a season.
func (s *Service) CatcherDefense(ctx context.Context, params CatcherParams) (*CatcherDefense, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	board, err := s.catcherBoard(ctx, params.Season)
	if err == nil {
		if row, ok := board[params.PlayerID]; ok {
			return &row, nil
		}
		err = fmt.Errorf("%w: catcher %d in %d export", ErrPlayerNotFound, params.PlayerID, params.Season)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	reason := s.fallback(core.CategoryCatcherDefense, err, zap.Int("player_id", params.PlayerID), zap.Int("season", params.Season))
	return core.Stamp(&CatcherDefense{PlayerID: params.PlayerID, Season: params.Season, Fallback: reason}, s.now()), nil
}

// PitchMix returns a pitcher's arsenal for a season.
func (s *Service) PitchMix(ctx context.Context, params PitchMixParams) (*PitchMix, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	board, err := s.arsenalBoard(ctx, params.Season)
	if err == nil {
		if mix, ok := board[params.PlayerID]; ok {
			mix.Pitches = append([]PitchUsage(nil), mix.Pitches...)
			return &mix, nil
		}
		err = fmt.Errorf("%w: pitcher %d in %d export", ErrPlayerNotFound, params.PlayerID, params.Season)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	reason := s.fallback(core.CategoryPitchMix, err, zap.Int("player_id", params.PlayerID), zap.Int("season", params.Season))
	return core.Stamp(&PitchMix{PlayerID: params.PlayerID, Season: params.Season, Pitches: []PitchUsage{}, Fallback: reason}, s.now()), nil
}

func (s *Service) fetchPitcherSeason(ctx context.Context, params PlayerSeasonParams) (*PitchingLine, error) {
	payload, err := s.stats.Request(ctx, playerStatsEndpoint(params.PlayerID), s.statsVersion, &client.RequestOptions{
		Query: url.Values{
			"stats":  {"season"},
			"group":  {GroupPitching},
			"season": {strconv.Itoa(params.Season)},
		},
	})
	if err != nil {
		return nil, err
	}

	split, found, err := firstSplit(payload, GroupPitching)
	if err != nil {
		return nil, err
	}
	line := &PitchingLine{PlayerID: params.PlayerID, Season: params.Season}
	if found {
		s.checkSeason(payload, split.season, core.CategoryPitcherSeasonStats, params.PlayerID)
		if line.PitchingTotals, err = decodePitching(split.stat); err != nil {
			return nil, err
		}
	}
	return core.Stamp(line, s.now()), nil
}

func (s *Service) fetchBatterSeason(ctx context.Context, params PlayerSeasonParams) (*BattingLine, error) {
	payload, err := s.stats.Request(ctx, playerStatsEndpoint(params.PlayerID), s.statsVersion, &client.RequestOptions{
		Query: url.Values{
			"stats":  {"season"},
			"group":  {GroupHitting},
			"season": {strconv.Itoa(params.Season)},
		},
	})
	if err != nil {
		return nil, err
	}

	split, found, err := firstSplit(payload, GroupHitting)
	if err != nil {
		return nil, err
	}
	line := &BattingLine{PlayerID: params.PlayerID, Season: params.Season}
	if found {
		s.checkSeason(payload, split.season, core.CategoryBatterSeasonStats, params.PlayerID)
		if line.BattingTotals, err = decodeBatting(split.stat); err != nil {
			return nil, err
		}
	}
	return core.Stamp(line, s.now()), nil
}

func (s *Service) fetchCareer(ctx context.Context, params CareerParams) (*CareerStats, error) {
	payload, err := s.stats.Request(ctx, playerStatsEndpoint(params.PlayerID), s.statsVersion, &client.RequestOptions{
		Query: url.Values{
			"stats": {"career"},
			"group": {params.Group},
		},
	})
	if err != nil {
		return nil, err
	}

	split, found, err := firstSplit(payload, params.Group)
	if err != nil {
		return nil, err
	}
	stats := &CareerStats{PlayerID: params.PlayerID, Group: params.Group}
	switch params.Group {
	case GroupPitching:
		totals := PitchingTotals{}
		if found {
			if totals, err = decodePitching(split.stat); err != nil {
				return nil, err
			}
		}
		stats.Pitching = &totals
	case GroupHitting:
		totals := BattingTotals{}
		if found {
			if totals, err = decodeBatting(split.stat); err != nil {
				return nil, err
			}
		}
		stats.Batting = &totals
	}
	return core.Stamp(stats, s.now()), nil
}

func (s *Service) fetchLineup(ctx context.Context, params LineupParams) (*Lineup, error) {
	payload, err := s.stats.Request(ctx, fmt.Sprintf("/game/%d/feed/live", params.GamePk), core.APIVersionV11, nil)
	if err != nil {
		return nil, err
	}
	lineup, err := parseLineup(payload, params.GamePk)
	if err != nil {
		return nil, err
	}
	return core.Stamp(lineup, s.now()), nil
}

func (s *Service) fetchCatcherBoard(ctx context.Context, season int) (catcherBoard, error) {
	records, err := s.vendor.RequestCSV(ctx, CatcherDefenseEndpoint, core.APIVersionNone, &client.RequestOptions{
		Query: url.Values{"season": {strconv.Itoa(season)}},
	})
	if err != nil {
		return nil, err
	}
	board := parseCatcherBoard(records, season)
	now := s.now()
	for id, row := range board {
		board[id] = *core.Stamp(&row, now)
	}
	return board, nil
}

func (s *Service) fetchArsenalBoard(ctx context.Context, season int) (arsenalBoard, error) {
	records, err := s.vendor.RequestCSV(ctx, PitchArsenalEndpoint, core.APIVersionNone, &client.RequestOptions{
		Query: url.Values{"season": {strconv.Itoa(season)}},
	})
	if err != nil {
		return nil, err
	}
	board := parseArsenalBoard(records, season)
	now := s.now()
	for id, mix := range board {
		board[id] = *core.Stamp(&mix, now)
	}
	return board, nil
}

// checkSeason logs when the API answered for a season other than the one asked for.
func (s *Service) checkSeason(payload map[string]any, answered string, category core.Category, playerID int) {
	requested, ok := requestedSeason(payload)
	if !ok || answered == "" {
		return
	}
	if answered != strconv.Itoa(requested) {
		s.logWarn("Upstream answered for a different season",
			zap.String("category", string(category)),
			zap.Int("player_id", playerID),
			zap.Int("requested_season", requested),
			zap.String("answered_season", answered))
	}
}

// fallback logs the failure and returns the reason recorded on the default value.
func (s *Service) fallback(category core.Category, err error, fields ...zap.Field) string {
	reason := "upstream unavailable"
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		reason = "not found in vendor export"
	case errors.Is(err, client.ErrRetriesExhausted):
		reason = "upstream retries exhausted"
	case client.KindOf(err) == client.KindMalformedResponse:
		reason = "malformed upstream response"
	}

	metrics.RecordFallback(string(category))
	fields = append(fields,
		zap.String("category", string(category)),
		zap.String("reason", reason),
		zap.Error(err))
	s.logWarn("Serving fallback value", fields...)
	return reason
}

func playerStatsEndpoint(playerID int) string {
	return fmt.Sprintf("/people/%d/stats", playerID)
}

func copyLineup(lineup *Lineup) *Lineup {
	copied := *lineup
	copied.Away = copyTeam(lineup.Away)
	copied.Home = copyTeam(lineup.Home)
	return &copied
}

func copyTeam(team TeamLineup) TeamLineup {
	copied := team
	copied.Batters = append([]LineupSlot{}, team.Batters...)
	if team.ProbablePitcher != nil {
		pitcher := *team.ProbablePitcher
		copied.ProbablePitcher = &pitcher
	}
	return copied
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

func (s *Service) logWarn(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}
