package stats

import (
	"sort"
	"strconv"
	"strings"
)

// Vendor export endpoints. Both are season leaderboards; one download
// answers every player of that season.
const (
	CatcherDefenseEndpoint = "/leaderboard/catcher-defense"
	PitchArsenalEndpoint   = "/leaderboard/pitch-arsenal"
)

// Column aliases seen across export revisions.
var (
	playerIDColumns   = []string{"player_id", "playerid", "mlbam_id"}
	playerNameColumns = []string{"player_name", "name", "last_name, first_name"}
)

type catcherBoard map[int]CatcherDefense

type arsenalBoard map[int]PitchMix

func parseCatcherBoard(records []map[string]string, season int) catcherBoard {
	board := make(catcherBoard, len(records))
	for _, record := range records {
		id, ok := intColumn(record, playerIDColumns...)
		if !ok {
			continue
		}
		board[id] = CatcherDefense{
			PlayerID:     id,
			Season:       season,
			Name:         column(record, playerNameColumns...),
			FramingRuns:  floatColumn(record, "framing_runs", "runs_extra_strikes"),
			BlockingRuns: floatColumn(record, "blocking_runs", "blocks_above_average_runs"),
			ThrowingRuns: floatColumn(record, "throwing_runs", "arm_runs"),
			PopTime:      floatColumn(record, "pop_time", "pop_2b_sba"),
			StrikeRate:   floatColumn(record, "strike_rate"),
		}
	}
	return board
}

func parseArsenalBoard(records []map[string]string, season int) arsenalBoard {
	board := make(arsenalBoard)
	for _, record := range records {
		id, ok := intColumn(record, playerIDColumns...)
		if !ok {
			continue
		}
		mix, exists := board[id]
		if !exists {
			mix = PitchMix{PlayerID: id, Season: season, Name: column(record, playerNameColumns...)}
		}
		count, _ := intColumn(record, "pitches", "pitch_count")
		mix.Pitches = append(mix.Pitches, PitchUsage{
			PitchType:  column(record, "pitch_type"),
			PitchName:  column(record, "pitch_name"),
			UsagePct:   floatColumn(record, "pitch_usage", "usage_pct"),
			Velocity:   floatColumn(record, "velocity", "avg_speed"),
			WhiffPct:   floatColumn(record, "whiff_percent", "whiff_pct"),
			PitchCount: count,
		})
		board[id] = mix
	}

	for id, mix := range board {
		sort.SliceStable(mix.Pitches, func(i, j int) bool {
			return mix.Pitches[i].UsagePct > mix.Pitches[j].UsagePct
		})
		board[id] = mix
	}
	return board
}

func column(record map[string]string, names ...string) string {
	for _, name := range names {
		if value, ok := record[name]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func intColumn(record map[string]string, names ...string) (int, bool) {
	value := column(record, names...)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func floatColumn(record map[string]string, names ...string) float64 {
	value := strings.TrimSuffix(column(record, names...), "%")
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}
