package stats

import (
	"errors"
	"fmt"

	"github.com/dugoutdata/dugout/internal/core"
)

// ErrInvalidParams is returned before any upstream call when params are unusable.
var ErrInvalidParams = errors.New("invalid parameters")

// ErrPlayerNotFound is returned when a vendor export has no row for the player.
var ErrPlayerNotFound = errors.New("player not found")

// Stat groups accepted by the stats API.
const (
	GroupPitching = "pitching"
	GroupHitting  = "hitting"
)

// PlayerSeasonParams selects one player's season line.
type PlayerSeasonParams struct {
	PlayerID int `json:"playerId"`
	Season   int `json:"season"`
}

func (p PlayerSeasonParams) validate() error {
	if p.PlayerID <= 0 {
		return fmt.Errorf("%w: player id must be positive", ErrInvalidParams)
	}
	if p.Season < 1871 || p.Season > 2100 {
		return fmt.Errorf("%w: season %d out of range", ErrInvalidParams, p.Season)
	}
	return nil
}

// CareerParams selects a player's career totals for one stat group.
type CareerParams struct {
	PlayerID int    `json:"playerId"`
	Group    string `json:"group"`
}

func (p CareerParams) validate() error {
	if p.PlayerID <= 0 {
		return fmt.Errorf("%w: player id must be positive", ErrInvalidParams)
	}
	if p.Group != GroupPitching && p.Group != GroupHitting {
		return fmt.Errorf("%w: group must be %s or %s", ErrInvalidParams, GroupPitching, GroupHitting)
	}
	return nil
}

// LineupParams selects a game's batting orders.
type LineupParams struct {
	GamePk int `json:"gamePk"`
}

func (p LineupParams) validate() error {
	if p.GamePk <= 0 {
		return fmt.Errorf("%w: game pk must be positive", ErrInvalidParams)
	}
	return nil
}

// CatcherParams selects a catcher's defensive metrics for a season.
type CatcherParams = PlayerSeasonParams

// PitchMixParams selects a pitcher's arsenal usage for a season.
type PitchMixParams = PlayerSeasonParams

// MatchupParams selects a game plus the season whose stats describe it.
// Season zero means the season reported by the game feed.
type MatchupParams struct {
	GamePk int `json:"gamePk"`
	Season int `json:"season,omitempty"`
}

// PitchingTotals is the subset of the pitching stat block dugout consumes.
type PitchingTotals struct {
	GamesPlayed    int     `json:"gamesPlayed" yaml:"gamesPlayed"`
	GamesStarted   int     `json:"gamesStarted" yaml:"gamesStarted"`
	InningsPitched float64 `json:"inningsPitched" yaml:"inningsPitched"`
	BattersFaced   int     `json:"battersFaced" yaml:"battersFaced"`
	StrikeOuts     int     `json:"strikeOuts" yaml:"strikeOuts"`
	BaseOnBalls    int     `json:"baseOnBalls" yaml:"baseOnBalls"`
	HomeRuns       int     `json:"homeRuns" yaml:"homeRuns"`
	EarnedRuns     int     `json:"earnedRuns" yaml:"earnedRuns"`
	Wins           int     `json:"wins" yaml:"wins"`
	Losses         int     `json:"losses" yaml:"losses"`
	ERA            float64 `json:"era" yaml:"era"`
	WHIP           float64 `json:"whip" yaml:"whip"`
}

// BattingTotals is the subset of the hitting stat block dugout consumes.
type BattingTotals struct {
	GamesPlayed      int     `json:"gamesPlayed" yaml:"gamesPlayed"`
	PlateAppearances int     `json:"plateAppearances" yaml:"plateAppearances"`
	AtBats           int     `json:"atBats" yaml:"atBats"`
	Hits             int     `json:"hits" yaml:"hits"`
	Doubles          int     `json:"doubles" yaml:"doubles"`
	Triples          int     `json:"triples" yaml:"triples"`
	HomeRuns         int     `json:"homeRuns" yaml:"homeRuns"`
	RBI              int     `json:"rbi" yaml:"rbi"`
	BaseOnBalls      int     `json:"baseOnBalls" yaml:"baseOnBalls"`
	StrikeOuts       int     `json:"strikeOuts" yaml:"strikeOuts"`
	StolenBases      int     `json:"stolenBases" yaml:"stolenBases"`
	Avg              float64 `json:"avg" yaml:"avg"`
	OBP              float64 `json:"obp" yaml:"obp"`
	SLG              float64 `json:"slg" yaml:"slg"`
	OPS              float64 `json:"ops" yaml:"ops"`
}

// PitchingLine is a pitcher's season line.
type PitchingLine struct {
	core.SourceMarker `yaml:",inline"`
	PlayerID          int    `json:"playerId" yaml:"playerId"`
	Season            int    `json:"season" yaml:"season"`
	Fallback          string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	PitchingTotals    `yaml:",inline"`
}

// BattingLine is a batter's season line.
type BattingLine struct {
	core.SourceMarker `yaml:",inline"`
	PlayerID          int    `json:"playerId" yaml:"playerId"`
	Season            int    `json:"season" yaml:"season"`
	Fallback          string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	BattingTotals     `yaml:",inline"`
}

// CareerStats holds career totals. Exactly one of Pitching or Batting is set
// unless the value is a fallback.
type CareerStats struct {
	core.SourceMarker `yaml:",inline"`
	PlayerID          int             `json:"playerId" yaml:"playerId"`
	Group             string          `json:"group" yaml:"group"`
	Pitching          *PitchingTotals `json:"pitching,omitempty" yaml:"pitching,omitempty"`
	Batting           *BattingTotals  `json:"batting,omitempty" yaml:"batting,omitempty"`
	Fallback          string          `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// LineupSlot is one batter in a batting order.
type LineupSlot struct {
	Order    int    `json:"order" yaml:"order"`
	PlayerID int    `json:"playerId" yaml:"playerId"`
	Name     string `json:"name" yaml:"name"`
	Position string `json:"position" yaml:"position"`
}

// PlayerRef names a player.
type PlayerRef struct {
	PlayerID int    `json:"playerId" yaml:"playerId"`
	Name     string `json:"name" yaml:"name"`
}

// TeamLineup is one side of a game.
type TeamLineup struct {
	TeamID          int          `json:"teamId" yaml:"teamId"`
	TeamName        string       `json:"teamName" yaml:"teamName"`
	ProbablePitcher *PlayerRef   `json:"probablePitcher,omitempty" yaml:"probablePitcher,omitempty"`
	Batters         []LineupSlot `json:"batters" yaml:"batters"`
}

// Lineup holds both batting orders of a game. Batters are empty until the
// clubs post their lineups.
type Lineup struct {
	core.SourceMarker `yaml:",inline"`
	GamePk            int        `json:"gamePk" yaml:"gamePk"`
	Season            int        `json:"season" yaml:"season"`
	Status            string     `json:"status" yaml:"status"`
	Away              TeamLineup `json:"away" yaml:"away"`
	Home              TeamLineup `json:"home" yaml:"home"`
	Fallback          string     `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// CatcherDefense holds a catcher's framing, blocking and throwing value.
type CatcherDefense struct {
	core.SourceMarker `yaml:",inline"`
	PlayerID          int     `json:"playerId" yaml:"playerId"`
	Season            int     `json:"season" yaml:"season"`
	Name              string  `json:"name" yaml:"name"`
	FramingRuns       float64 `json:"framingRuns" yaml:"framingRuns"`
	BlockingRuns      float64 `json:"blockingRuns" yaml:"blockingRuns"`
	ThrowingRuns      float64 `json:"throwingRuns" yaml:"throwingRuns"`
	PopTime           float64 `json:"popTime" yaml:"popTime"`
	StrikeRate        float64 `json:"strikeRate" yaml:"strikeRate"`
	Fallback          string  `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// PitchUsage is one pitch type in an arsenal.
type PitchUsage struct {
	PitchType  string  `json:"pitchType" yaml:"pitchType"`
	PitchName  string  `json:"pitchName" yaml:"pitchName"`
	UsagePct   float64 `json:"usagePct" yaml:"usagePct"`
	Velocity   float64 `json:"velocity" yaml:"velocity"`
	WhiffPct   float64 `json:"whiffPct" yaml:"whiffPct"`
	PitchCount int     `json:"pitchCount" yaml:"pitchCount"`
}

// PitchMix is a pitcher's arsenal ordered by usage.
type PitchMix struct {
	core.SourceMarker `yaml:",inline"`
	PlayerID          int          `json:"playerId" yaml:"playerId"`
	Season            int          `json:"season" yaml:"season"`
	Name              string       `json:"name" yaml:"name"`
	Pitches           []PitchUsage `json:"pitches" yaml:"pitches"`
	Fallback          string       `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Matchup bundles a lineup with the season context of everyone in it.
type Matchup struct {
	core.SourceMarker `yaml:",inline"`
	Lineup            *Lineup               `json:"lineup" yaml:"lineup"`
	Season            int                   `json:"season" yaml:"season"`
	Batters           map[int]*BattingLine  `json:"batters" yaml:"batters"`
	Pitchers          map[int]*PitchingLine `json:"pitchers" yaml:"pitchers"`
	PitchMix          map[int]*PitchMix     `json:"pitchMix" yaml:"pitchMix"`
	Failed            []string              `json:"failed,omitempty" yaml:"failed,omitempty"`
}
