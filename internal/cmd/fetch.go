package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dugoutdata/dugout/internal/observability"
	"github.com/dugoutdata/dugout/internal/output"
	"github.com/dugoutdata/dugout/internal/stats"
)

var (
	fetchFormat string
	fetchOut    string
	fetchSeason int
	fetchGroup  string
	fetchStrict bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one value from the upstream APIs",
	Long: `Fetch a single value through the rate limiter, retrying client and cache.

When an upstream cannot answer, a zeroed fallback stamped with the fetch
time is printed instead. Use --strict to exit non-zero in that case.`,
}

// fetchFunc produces the value to render for the given positional id.
type fetchFunc func(ctx context.Context, service *stats.Service, id int) (any, error)

func newFetchCommand(use, short string, fetch fetchFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("%s: id must be an integer: %w", cmd.Name(), stats.ErrInvalidParams)
			}
			return runFetch(cmd, id, fetch)
		},
	}
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.PersistentFlags().StringVarP(&fetchFormat, "output", "o", "table", "Output format: table, json, markdown, yaml")
	fetchCmd.PersistentFlags().StringVar(&fetchOut, "out", "", "Write output to file (default stdout)")
	fetchCmd.PersistentFlags().IntVar(&fetchSeason, "season", 0, "Season year (default current year)")
	fetchCmd.PersistentFlags().BoolVar(&fetchStrict, "strict", false, "Exit non-zero when a fallback value is served")

	careerCmd := newFetchCommand("career <player-id>", "Career totals for one stat group",
		func(ctx context.Context, s *stats.Service, id int) (any, error) {
			return s.CareerStats(ctx, stats.CareerParams{PlayerID: id, Group: fetchGroup})
		})
	careerCmd.Flags().StringVar(&fetchGroup, "group", stats.GroupHitting, "Stat group: hitting, pitching")

	fetchCmd.AddCommand(
		newFetchCommand("pitcher <player-id>", "Pitcher season line",
			func(ctx context.Context, s *stats.Service, id int) (any, error) {
				return s.PitcherSeasonStats(ctx, stats.PlayerSeasonParams{PlayerID: id, Season: season()})
			}),
		newFetchCommand("batter <player-id>", "Batter season line",
			func(ctx context.Context, s *stats.Service, id int) (any, error) {
				return s.BatterSeasonStats(ctx, stats.PlayerSeasonParams{PlayerID: id, Season: season()})
			}),
		careerCmd,
		newFetchCommand("lineup <game-pk>", "Batting orders and probable pitchers of a game",
			func(ctx context.Context, s *stats.Service, id int) (any, error) {
				return s.Lineup(ctx, stats.LineupParams{GamePk: id})
			}),
		newFetchCommand("catcher <player-id>", "Catcher framing, blocking and throwing value",
			func(ctx context.Context, s *stats.Service, id int) (any, error) {
				return s.CatcherDefense(ctx, stats.CatcherParams{PlayerID: id, Season: season()})
			}),
		newFetchCommand("pitch-mix <player-id>", "Pitcher arsenal ordered by usage",
			func(ctx context.Context, s *stats.Service, id int) (any, error) {
				return s.PitchMix(ctx, stats.PitchMixParams{PlayerID: id, Season: season()})
			}),
		newFetchCommand("matchup <game-pk>", "Lineup plus season context for everyone in it",
			func(ctx context.Context, s *stats.Service, id int) (any, error) {
				// Zero lets the game feed decide the season.
				return s.Matchup(ctx, stats.MatchupParams{GamePk: id, Season: fetchSeason})
			}),
	)
}

func season() int {
	if fetchSeason != 0 {
		return fetchSeason
	}
	return time.Now().Year()
}

func runFetch(cmd *cobra.Command, id int, fetch fetchFunc) error {
	format, err := output.ParseFormat(fetchFormat)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, observability.CLILogger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := fetch(ctx, a.service, id)
	if err != nil {
		return err
	}

	rendered, err := output.Render(format, value)
	if err != nil {
		return err
	}

	sink, err := openSink(fetchOut)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()
	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		return err
	}

	cacheStats := a.service.CacheStats()
	observability.CLILogger.Debug("Fetch complete",
		zap.String("command", cmd.Name()),
		zap.Int64("cache_misses", cacheStats.Misses),
		zap.Int64("fetch_errors", cacheStats.FetchErrors))

	if reason := fallbackReason(value); reason != "" && fetchStrict {
		return fmt.Errorf("%w: %s", errFallbackServed, reason)
	}
	return nil
}

// fallbackReason returns the reason a fetched value is a fallback, or "".
func fallbackReason(value any) string {
	switch v := value.(type) {
	case *stats.PitchingLine:
		return v.Fallback
	case *stats.BattingLine:
		return v.Fallback
	case *stats.CareerStats:
		return v.Fallback
	case *stats.Lineup:
		return v.Fallback
	case *stats.CatcherDefense:
		return v.Fallback
	case *stats.PitchMix:
		return v.Fallback
	case *stats.Matchup:
		if v.Lineup != nil && v.Lineup.Fallback != "" {
			return v.Lineup.Fallback
		}
		if len(v.Failed) > 0 {
			return "failed lookups: " + strings.Join(v.Failed, ", ")
		}
	}
	return ""
}
