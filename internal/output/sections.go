package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/cache"
	"github.com/dugoutdata/dugout/internal/stats"
)

// section is one rendered table.
type section struct {
	Title  string
	Header []string
	Rows   [][]string
	Footer string
}

// Limits describes configured upstream budgets and cache TTLs.
type Limits struct {
	Upstreams []UpstreamLimits `json:"upstreams" yaml:"upstreams"`
	TTLs      []CategoryTTL    `json:"ttls" yaml:"ttls"`
	Margin    float64          `json:"rate_limit_margin" yaml:"rate_limit_margin"`
}

// UpstreamLimits is one upstream's effective budget and retry policy.
type UpstreamLimits struct {
	Name          string                  `json:"name" yaml:"name"`
	BaseURL       string                  `json:"base_url" yaml:"base_url"`
	APIVersion    string                  `json:"api_version" yaml:"api_version"`
	Budget        core.RateBudgetSnapshot `json:"budget" yaml:"budget"`
	MaxRetries    int                     `json:"max_retries" yaml:"max_retries"`
	RetryDelay    string                  `json:"retry_delay" yaml:"retry_delay"`
	MaxRetryDelay string                  `json:"max_retry_delay" yaml:"max_retry_delay"`
	Timeout       string                  `json:"timeout" yaml:"timeout"`
}

// CategoryTTL is the cache lifetime of one category.
type CategoryTTL struct {
	Category string `json:"category" yaml:"category"`
	TTL      string `json:"ttl" yaml:"ttl"`
}

func sectionsFor(value any) ([]section, error) {
	switch v := value.(type) {
	case *stats.PitchingLine:
		return []section{pitchingSection(v)}, nil
	case *stats.BattingLine:
		return []section{battingSection(v)}, nil
	case *stats.CareerStats:
		return []section{careerSection(v)}, nil
	case *stats.Lineup:
		return lineupSections(v), nil
	case *stats.CatcherDefense:
		return []section{catcherSection(v)}, nil
	case *stats.PitchMix:
		return []section{pitchMixSection(v)}, nil
	case *stats.Matchup:
		return matchupSections(v), nil
	case *Limits:
		return limitsSections(v), nil
	case cache.Stats:
		return []section{cacheStatsSection(v)}, nil
	default:
		return nil, fmt.Errorf("no table layout for %T", value)
	}
}

var (
	pitchingHeader = []string{"Player", "Season", "G", "GS", "IP", "BF", "K", "BB", "HR", "ERA", "WHIP"}
	battingHeader  = []string{"Player", "Season", "G", "PA", "AB", "H", "HR", "RBI", "BB", "K", "SB", "AVG", "OBP", "SLG", "OPS"}
)

func pitchingRow(label string, season int, t stats.PitchingTotals) []string {
	return []string{
		label, seasonCell(season),
		itoa(t.GamesPlayed), itoa(t.GamesStarted), fmt.Sprintf("%.1f", t.InningsPitched),
		itoa(t.BattersFaced), itoa(t.StrikeOuts), itoa(t.BaseOnBalls), itoa(t.HomeRuns),
		fmt.Sprintf("%.2f", t.ERA), fmt.Sprintf("%.2f", t.WHIP),
	}
}

func battingRow(label string, season int, t stats.BattingTotals) []string {
	return []string{
		label, seasonCell(season),
		itoa(t.GamesPlayed), itoa(t.PlateAppearances), itoa(t.AtBats), itoa(t.Hits),
		itoa(t.HomeRuns), itoa(t.RBI), itoa(t.BaseOnBalls), itoa(t.StrikeOuts), itoa(t.StolenBases),
		rate(t.Avg), rate(t.OBP), rate(t.SLG), rate(t.OPS),
	}
}

func pitchingSection(line *stats.PitchingLine) section {
	return section{
		Title:  "Pitching",
		Header: pitchingHeader,
		Rows:   [][]string{pitchingRow(itoa(line.PlayerID), line.Season, line.PitchingTotals)},
		Footer: sourceNote(line.SourceMarker, line.Fallback),
	}
}

func battingSection(line *stats.BattingLine) section {
	return section{
		Title:  "Hitting",
		Header: battingHeader,
		Rows:   [][]string{battingRow(itoa(line.PlayerID), line.Season, line.BattingTotals)},
		Footer: sourceNote(line.SourceMarker, line.Fallback),
	}
}

func careerSection(career *stats.CareerStats) section {
	s := section{Title: "Career " + career.Group, Footer: sourceNote(career.SourceMarker, career.Fallback)}
	switch {
	case career.Pitching != nil:
		s.Header = pitchingHeader
		s.Rows = [][]string{pitchingRow(itoa(career.PlayerID), 0, *career.Pitching)}
	case career.Batting != nil:
		s.Header = battingHeader
		s.Rows = [][]string{battingRow(itoa(career.PlayerID), 0, *career.Batting)}
	default:
		s.Header = []string{"Player", "Group"}
		s.Rows = [][]string{{itoa(career.PlayerID), career.Group}}
	}
	return s
}

func lineupSections(lineup *stats.Lineup) []section {
	sections := make([]section, 0, 2)
	for _, side := range []struct {
		label string
		team  stats.TeamLineup
	}{{"Away", lineup.Away}, {"Home", lineup.Home}} {
		title := fmt.Sprintf("%s: %s", side.label, orDash(side.team.TeamName))
		if side.team.ProbablePitcher != nil {
			title += fmt.Sprintf(" (SP %s)", side.team.ProbablePitcher.Name)
		}
		s := section{
			Title:  title,
			Header: []string{"#", "Player", "ID", "Pos"},
		}
		for _, slot := range side.team.Batters {
			s.Rows = append(s.Rows, []string{itoa(slot.Order), slot.Name, itoa(slot.PlayerID), slot.Position})
		}
		sections = append(sections, s)
	}
	sections[len(sections)-1].Footer = fmt.Sprintf("game %d %s, %s", lineup.GamePk, orDash(lineup.Status),
		sourceNote(lineup.SourceMarker, lineup.Fallback))
	return sections
}

func catcherSection(d *stats.CatcherDefense) section {
	return section{
		Title:  "Catcher defense",
		Header: []string{"Player", "Season", "Framing", "Blocking", "Throwing", "Pop", "Strike %"},
		Rows: [][]string{{
			playerLabel(d.PlayerID, d.Name), seasonCell(d.Season),
			fmt.Sprintf("%+.1f", d.FramingRuns), fmt.Sprintf("%+.1f", d.BlockingRuns), fmt.Sprintf("%+.1f", d.ThrowingRuns),
			fmt.Sprintf("%.2f", d.PopTime), fmt.Sprintf("%.1f", d.StrikeRate),
		}},
		Footer: sourceNote(d.SourceMarker, d.Fallback),
	}
}

func pitchMixSection(mix *stats.PitchMix) section {
	s := section{
		Title:  "Pitch mix: " + playerLabel(mix.PlayerID, mix.Name),
		Header: []string{"Pitch", "Type", "Usage %", "Velo", "Whiff %", "Count"},
		Footer: sourceNote(mix.SourceMarker, mix.Fallback),
	}
	for _, p := range mix.Pitches {
		s.Rows = append(s.Rows, []string{
			orDash(p.PitchName), p.PitchType,
			fmt.Sprintf("%.1f", p.UsagePct), fmt.Sprintf("%.1f", p.Velocity), fmt.Sprintf("%.1f", p.WhiffPct), itoa(p.PitchCount),
		})
	}
	return s
}

func matchupSections(m *stats.Matchup) []section {
	var sections []section
	if m.Lineup != nil {
		sections = append(sections, lineupSections(m.Lineup)...)
	}

	hitting := section{Title: fmt.Sprintf("Hitting %d", m.Season), Header: battingHeader}
	for _, id := range sortedKeys(m.Batters) {
		line := m.Batters[id]
		label := itoa(id)
		if line.Fallback != "" {
			label += " *"
		}
		hitting.Rows = append(hitting.Rows, battingRow(label, line.Season, line.BattingTotals))
	}
	sections = append(sections, hitting)

	pitching := section{Title: fmt.Sprintf("Pitching %d", m.Season), Header: pitchingHeader}
	for _, id := range sortedKeys(m.Pitchers) {
		line := m.Pitchers[id]
		label := itoa(id)
		if line.Fallback != "" {
			label += " *"
		}
		pitching.Rows = append(pitching.Rows, pitchingRow(label, line.Season, line.PitchingTotals))
	}
	sections = append(sections, pitching)

	for _, id := range sortedKeys(m.PitchMix) {
		sections = append(sections, pitchMixSection(m.PitchMix[id]))
	}

	footer := sourceNote(m.SourceMarker, "")
	if len(m.Failed) > 0 {
		footer += "; failed: " + strings.Join(m.Failed, ", ")
	}
	sections[len(sections)-1].Footer = footer + "; * = fallback"
	return sections
}

func limitsSections(l *Limits) []section {
	budgets := section{
		Title:  "Upstream budgets",
		Header: []string{"Upstream", "Base URL", "Version", "Capacity", "Refill", "Retries", "Delay", "Max delay", "Timeout"},
		Footer: fmt.Sprintf("rate limit margin %.2f", l.Margin),
	}
	for _, u := range l.Upstreams {
		budgets.Rows = append(budgets.Rows, []string{
			u.Name, u.BaseURL, u.APIVersion,
			itoa(u.Budget.Capacity), fmt.Sprintf("%d / %s", u.Budget.RefillRate, u.Budget.Interval),
			itoa(u.MaxRetries), u.RetryDelay, u.MaxRetryDelay, u.Timeout,
		})
	}

	ttls := section{Title: "Cache TTLs", Header: []string{"Category", "TTL"}}
	for _, ttl := range l.TTLs {
		ttls.Rows = append(ttls.Rows, []string{ttl.Category, ttl.TTL})
	}
	return []section{budgets, ttls}
}

func cacheStatsSection(s cache.Stats) section {
	return section{
		Title:  "Cache",
		Header: []string{"Hits", "Misses", "Coalesced", "Fetch errors", "Entries"},
		Rows: [][]string{{
			strconv.FormatInt(s.Hits, 10), strconv.FormatInt(s.Misses, 10), strconv.FormatInt(s.Coalesced, 10),
			strconv.FormatInt(s.FetchErrors, 10), itoa(s.Entries),
		}},
	}
}

func sourceNote(marker core.SourceMarker, fallback string) string {
	stamp := "unstamped"
	if !marker.SourceTimestamp.IsZero() {
		stamp = marker.SourceTimestamp.UTC().Format(time.RFC3339)
	}
	if fallback != "" {
		return fmt.Sprintf("fallback (%s) at %s", fallback, stamp)
	}
	return "fetched " + stamp
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func playerLabel(id int, name string) string {
	if name == "" {
		return itoa(id)
	}
	return fmt.Sprintf("%s (%d)", name, id)
}

// rate renders batting rates the way box scores do: .300, 1.000.
func rate(value float64) string {
	return strings.TrimPrefix(fmt.Sprintf("%.3f", value), "0")
}

func seasonCell(season int) string {
	if season == 0 {
		return "career"
	}
	return itoa(season)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
