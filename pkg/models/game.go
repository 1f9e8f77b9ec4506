package models

import (
	"fmt"
	"time"
)

type Sport string

const (
	SportNFL             Sport = "nfl"
	SportNBA             Sport = "nba"
	SportCollegeFootball Sport = "college-football"
)

// Sports lists every supported sport.
func Sports() []Sport {
	return []Sport{SportNFL, SportNBA, SportCollegeFootball}
}

type GameStatus string

const (
	GameStatusPre  GameStatus = "pre"
	GameStatusIn   GameStatus = "in"
	GameStatusPost GameStatus = "post"
)

type Team struct {
	ID           string
	Abbreviation string
	DisplayName  string
}

// GameState is an immutable snapshot of a sporting event at one poll tick.
// A new snapshot is constructed per tick; existing snapshots are never mutated.
type GameState struct {
	EventID      string
	Sport        Sport
	HomeTeam     Team
	AwayTeam     Team
	HomeScore    int
	AwayScore    int
	Period       int
	ClockSeconds float64
	Status       GameStatus
	CapturedAt   time.Time
}

// Margin is the point differential from the home team's perspective.
// Positive means the home team is leading.
func (g GameState) Margin() int {
	return g.HomeScore - g.AwayScore
}

func (g GameState) IsLive() bool {
	return g.Status == GameStatusIn
}

func (g GameState) IsFinal() bool {
	return g.Status == GameStatusPost
}

// Matchup formats the game as "AWY@HOM" for logging and trade records.
func (g GameState) Matchup() string {
	return fmt.Sprintf("%s@%s", g.AwayTeam.Abbreviation, g.HomeTeam.Abbreviation)
}
