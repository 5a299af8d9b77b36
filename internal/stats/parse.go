package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dugoutdata/dugout/internal/core/client"
)

// statsResponse mirrors /people/{id}/stats.
type statsResponse struct {
	Stats []struct {
		Group struct {
			DisplayName string `json:"displayName"`
		} `json:"group"`
		Splits []struct {
			Season string         `json:"season"`
			Stat   map[string]any `json:"stat"`
		} `json:"splits"`
	} `json:"stats"`
}

type statSplit struct {
	season string
	stat   map[string]any
}

// firstSplit returns the first split of the requested group. ok is false when
// the player has no line for it, which is a valid answer rather than an error.
func firstSplit(payload map[string]any, group string) (statSplit, bool, error) {
	var resp statsResponse
	if err := client.Decode(payload, &resp); err != nil {
		return statSplit{}, false, err
	}
	for _, block := range resp.Stats {
		if block.Group.DisplayName != "" && block.Group.DisplayName != group {
			continue
		}
		if len(block.Splits) == 0 {
			continue
		}
		return statSplit{season: block.Splits[0].Season, stat: block.Splits[0].Stat}, true, nil
	}
	return statSplit{}, false, nil
}

func decodePitching(stat map[string]any) (PitchingTotals, error) {
	var totals PitchingTotals
	if err := client.Decode(cleanRates(stat), &totals); err != nil {
		return PitchingTotals{}, fmt.Errorf("decode pitching stats: %w", err)
	}
	return totals, nil
}

func decodeBatting(stat map[string]any) (BattingTotals, error) {
	var totals BattingTotals
	if err := client.Decode(cleanRates(stat), &totals); err != nil {
		return BattingTotals{}, fmt.Errorf("decode hitting stats: %w", err)
	}
	return totals, nil
}

// cleanRates drops placeholder rate values ("-.--", ".---") the API uses
// when a denominator is zero.
func cleanRates(stat map[string]any) map[string]any {
	cleaned := make(map[string]any, len(stat))
	for key, value := range stat {
		if text, ok := value.(string); ok && strings.Trim(text, "-.*") == "" {
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}

// feedResponse mirrors the parts of /game/{gamePk}/feed/live used for lineups.
type feedResponse struct {
	GameData struct {
		Game struct {
			Pk     int    `json:"pk"`
			Season string `json:"season"`
		} `json:"game"`
		Status struct {
			DetailedState string `json:"detailedState"`
		} `json:"status"`
		Teams struct {
			Away feedTeam `json:"away"`
			Home feedTeam `json:"home"`
		} `json:"teams"`
		ProbablePitchers struct {
			Away *feedPerson `json:"away"`
			Home *feedPerson `json:"home"`
		} `json:"probablePitchers"`
	} `json:"gameData"`
	LiveData struct {
		Boxscore struct {
			Teams struct {
				Away feedBoxTeam `json:"away"`
				Home feedBoxTeam `json:"home"`
			} `json:"teams"`
		} `json:"boxscore"`
	} `json:"liveData"`
}

type feedTeam struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type feedPerson struct {
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
}

type feedBoxTeam struct {
	BattingOrder []int                 `json:"battingOrder"`
	Players      map[string]feedPlayer `json:"players"`
}

type feedPlayer struct {
	Person   feedPerson `json:"person"`
	Position struct {
		Abbreviation string `json:"abbreviation"`
	} `json:"position"`
	BattingOrder string `json:"battingOrder"`
}

func parseLineup(payload map[string]any, gamePk int) (*Lineup, error) {
	var feed feedResponse
	if err := client.Decode(payload, &feed); err != nil {
		return nil, fmt.Errorf("decode game feed: %w", err)
	}

	lineup := &Lineup{
		GamePk: gamePk,
		Status: feed.GameData.Status.DetailedState,
		Away:   teamLineup(feed.GameData.Teams.Away, feed.GameData.ProbablePitchers.Away, feed.LiveData.Boxscore.Teams.Away),
		Home:   teamLineup(feed.GameData.Teams.Home, feed.GameData.ProbablePitchers.Home, feed.LiveData.Boxscore.Teams.Home),
	}
	if feed.GameData.Game.Pk != 0 && feed.GameData.Game.Pk != gamePk {
		return nil, fmt.Errorf("game feed answered for game %d, requested %d", feed.GameData.Game.Pk, gamePk)
	}
	if season, err := strconv.Atoi(feed.GameData.Game.Season); err == nil {
		lineup.Season = season
	}
	return lineup, nil
}

func teamLineup(team feedTeam, probable *feedPerson, box feedBoxTeam) TeamLineup {
	lineup := TeamLineup{TeamID: team.ID, TeamName: team.Name, Batters: []LineupSlot{}}
	if probable != nil && probable.ID != 0 {
		lineup.ProbablePitcher = &PlayerRef{PlayerID: probable.ID, Name: probable.FullName}
	}

	for i, id := range box.BattingOrder {
		slot := LineupSlot{Order: i + 1, PlayerID: id}
		if player, ok := box.Players["ID"+strconv.Itoa(id)]; ok {
			slot.Name = player.Person.FullName
			slot.Position = player.Position.Abbreviation
		}
		lineup.Batters = append(lineup.Batters, slot)
	}
	if len(lineup.Batters) > 0 {
		return lineup
	}

	// Older feeds only carry the per-player battingOrder code ("100", "200", ...).
	for _, player := range box.Players {
		code, err := strconv.Atoi(player.BattingOrder)
		if err != nil || code%100 != 0 {
			continue
		}
		lineup.Batters = append(lineup.Batters, LineupSlot{
			Order:    code / 100,
			PlayerID: player.Person.ID,
			Name:     player.Person.FullName,
			Position: player.Position.Abbreviation,
		})
	}
	sort.Slice(lineup.Batters, func(i, j int) bool {
		return lineup.Batters[i].Order < lineup.Batters[j].Order
	})
	return lineup
}

func requestedSeason(payload map[string]any) (int, bool) {
	switch v := payload[client.RequestedSeasonField].(type) {
	case int:
		return v, true
	case string:
		season, err := strconv.Atoi(v)
		return season, err == nil
	default:
		return 0, false
	}
}
