package output

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dugoutdata/dugout/internal/core"
	"github.com/dugoutdata/dugout/internal/core/cache"
	"github.com/dugoutdata/dugout/internal/stats"
)

var stampedAt = time.Date(2025, 8, 12, 17, 30, 0, 0, time.UTC)

func samplePitching() *stats.PitchingLine {
	line := &stats.PitchingLine{
		SourceMarker: core.SourceMarker{SourceTimestamp: stampedAt, IsAPISource: true},
		PlayerID:     657277,
		Season:       2025,
	}
	line.GamesStarted = 31
	line.InningsPitched = 190.1
	line.StrikeOuts = 225
	line.ERA = 2.95
	line.WHIP = 1.02
	return line
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"", FormatTable, false},
		{"md", FormatMarkdown, false},
		{"yml", FormatYAML, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestTableFormatter(t *testing.T) {
	rendered, err := Render(FormatTable, samplePitching())
	require.NoError(t, err)

	assert.Contains(t, strings.ToLower(rendered), "pitching")
	assert.Contains(t, rendered, "657277")
	assert.Contains(t, rendered, "190.1")
	assert.Contains(t, rendered, "2.95")
	assert.Contains(t, strings.ToLower(rendered), "fetched 2025-08-12t17:30:00z")
}

func TestTableFormatterFallbackNote(t *testing.T) {
	line := &stats.BattingLine{
		SourceMarker: core.SourceMarker{SourceTimestamp: stampedAt, IsAPISource: true},
		PlayerID:     1,
		Season:       2025,
		Fallback:     "upstream retries exhausted",
	}

	rendered, err := Render(FormatMarkdown, line)
	require.NoError(t, err)
	assert.Contains(t, rendered, "| Player | Season |")
	assert.Contains(t, rendered, "fallback (upstream retries exhausted) at 2025-08-12T17:30:00Z")
	assert.Contains(t, rendered, "| .000 |")
}

func TestJSONAndYAMLFormatters(t *testing.T) {
	line := samplePitching()

	rendered, err := Render(FormatJSON, line)
	require.NoError(t, err)
	assert.Contains(t, rendered, `"playerId": 657277`)
	assert.Contains(t, rendered, `"isApiSource": true`)
	assert.NotContains(t, rendered, "fallback")

	rendered, err = Render(FormatYAML, line)
	require.NoError(t, err)
	assert.Contains(t, rendered, "playerId: 657277")
	assert.Contains(t, rendered, "strikeOuts: 225")
	assert.Contains(t, rendered, "isApiSource: true")
}

func TestLineupAndMatchupSections(t *testing.T) {
	lineup := &stats.Lineup{
		GamePk: 776543,
		Status: "Pre-Game",
		Away: stats.TeamLineup{
			TeamName:        "Los Angeles Dodgers",
			ProbablePitcher: &stats.PlayerRef{PlayerID: 808967, Name: "Yoshinobu Yamamoto"},
			Batters:         []stats.LineupSlot{{Order: 1, PlayerID: 660271, Name: "Shohei Ohtani", Position: "DH"}},
		},
		Home: stats.TeamLineup{TeamName: "San Francisco Giants", Batters: []stats.LineupSlot{}},
	}

	rendered, err := Render(FormatMarkdown, lineup)
	require.NoError(t, err)
	assert.Contains(t, rendered, "## Away: Los Angeles Dodgers (SP Yoshinobu Yamamoto)")
	assert.Contains(t, rendered, "| 1 | Shohei Ohtani | 660271 | DH |")
	assert.Contains(t, rendered, "game 776543 Pre-Game")

	matchup := &stats.Matchup{
		Lineup:   lineup,
		Season:   2025,
		Batters:  map[int]*stats.BattingLine{660271: {PlayerID: 660271, Season: 2025, Fallback: "upstream unavailable"}},
		Pitchers: map[int]*stats.PitchingLine{808967: {PlayerID: 808967, Season: 2025}},
		PitchMix: map[int]*stats.PitchMix{808967: {PlayerID: 808967, Name: "Yoshinobu Yamamoto", Pitches: []stats.PitchUsage{
			{PitchType: "FF", PitchName: "4-Seam Fastball", UsagePct: 35.1},
		}}},
		Failed: []string{"pitch-mix:657277"},
	}

	rendered, err = Render(FormatTable, matchup)
	require.NoError(t, err)
	assert.Contains(t, rendered, "660271 *")
	assert.Contains(t, rendered, "4-Seam Fastball")
	assert.Contains(t, strings.ToLower(rendered), "pitch-mix:657277")
}

func TestLimitsAndCacheStats(t *testing.T) {
	limits := &Limits{
		Margin: 0.8,
		Upstreams: []UpstreamLimits{{
			Name: "stats", BaseURL: "https://statsapi.mlb.com/api", APIVersion: "v1",
			Budget:     core.RateBudgetSnapshot{Capacity: 16, Tokens: 16, RefillRate: 16, Interval: time.Second},
			MaxRetries: 3, RetryDelay: "1s", MaxRetryDelay: "5s", Timeout: "30s",
		}},
		TTLs: []CategoryTTL{{Category: "lineup", TTL: "10m0s"}},
	}

	rendered, err := Render(FormatMarkdown, limits)
	require.NoError(t, err)
	assert.Contains(t, rendered, "| stats | https://statsapi.mlb.com/api | v1 | 16 | 16 / 1s | 3 | 1s | 5s | 30s |")
	assert.Contains(t, rendered, "| lineup | 10m0s |")
	assert.Contains(t, rendered, "rate limit margin 0.80")

	rendered, err = Render(FormatMarkdown, cache.Stats{Hits: 4, Misses: 2, Entries: 2})
	require.NoError(t, err)
	assert.Contains(t, rendered, "| 4 | 2 | 0 | 0 | 2 |")
}

func TestTableFormatterRejectsUnknownValue(t *testing.T) {
	_, err := Render(FormatTable, struct{}{})
	require.Error(t, err)

	// JSON has no layout requirement.
	rendered, err := Render(FormatJSON, map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Contains(t, rendered, `"a": 1`)
}
