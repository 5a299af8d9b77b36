package stats

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/engine"
)

// Matchup fetches a game's lineup, then every listed batter's season line and
// each probable pitcher's season line and pitch mix. Individual lookups that
// fail are listed in Failed; the rest of the report is still returned.
func (s *Service) Matchup(ctx context.Context, params MatchupParams) (*Matchup, error) {
	lineup, err := s.Lineup(ctx, LineupParams{GamePk: params.GamePk})
	if err != nil {
		return nil, err
	}

	season := params.Season
	if season == 0 {
		season = lineup.Season
	}
	if season == 0 {
		season = s.now().Year()
	}

	report := &Matchup{
		Lineup:   lineup,
		Season:   season,
		Batters:  map[int]*BattingLine{},
		Pitchers: map[int]*PitchingLine{},
		PitchMix: map[int]*PitchMix{},
	}

	var mu sync.Mutex
	var tasks []engine.Task
	for _, team := range []TeamLineup{lineup.Away, lineup.Home} {
		for _, slot := range team.Batters {
			id := slot.PlayerID
			tasks = append(tasks, engine.Task{
				Name: fmt.Sprintf("batter:%d", id),
				Run: func(ctx context.Context) error {
					line, err := s.BatterSeasonStats(ctx, PlayerSeasonParams{PlayerID: id, Season: season})
					if err != nil {
						return err
					}
					mu.Lock()
					report.Batters[id] = line
					mu.Unlock()
					return nil
				},
			})
		}

		if team.ProbablePitcher == nil {
			continue
		}
		id := team.ProbablePitcher.PlayerID
		tasks = append(tasks,
			engine.Task{
				Name: fmt.Sprintf("pitcher:%d", id),
				Run: func(ctx context.Context) error {
					line, err := s.PitcherSeasonStats(ctx, PlayerSeasonParams{PlayerID: id, Season: season})
					if err != nil {
						return err
					}
					mu.Lock()
					report.Pitchers[id] = line
					mu.Unlock()
					return nil
				},
			},
			engine.Task{
				Name: fmt.Sprintf("pitch-mix:%d", id),
				Run: func(ctx context.Context) error {
					mix, err := s.PitchMix(ctx, PitchMixParams{PlayerID: id, Season: season})
					if err != nil {
						return err
					}
					mu.Lock()
					report.PitchMix[id] = mix
					mu.Unlock()
					return nil
				},
			},
		)
	}

	results, err := s.orchestrator.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		if result.Err != nil {
			report.Failed = append(report.Failed, result.Name)
			s.logWarn("Matchup lookup failed", zap.String("task", result.Name), zap.Error(result.Err))
		}
	}

	return core.Stamp(report, s.now()), nil
}
