package espn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

func competitorFor(homeAway, score, abbr string) competitor {
	var c competitor
	c.HomeAway = homeAway
	c.Score = score
	c.Team.ID = "1"
	c.Team.Abbreviation = abbr
	c.Team.DisplayName = abbr
	return c
}

func liveEvent() event {
	var ev event
	ev.ID = "401547439"
	ev.Status.Type.State = "in"
	var comp competition
	comp.Competitors = []competitor{
		competitorFor("away", "14", "BUF"),
		competitorFor("home", "24", "KC"),
	}
	comp.Status.Period = 4
	comp.Status.Clock = 212.0
	ev.Competitions = []competition{comp}
	return ev
}

func TestParseEvent(t *testing.T) {
	now := time.Now()
	game, err := parseEvent(liveEvent(), models.SportNFL, now)
	require.NoError(t, err)

	assert.Equal(t, "401547439", game.EventID)
	assert.Equal(t, models.SportNFL, game.Sport)
	assert.Equal(t, "KC", game.HomeTeam.Abbreviation)
	assert.Equal(t, "BUF", game.AwayTeam.Abbreviation)
	assert.Equal(t, 24, game.HomeScore)
	assert.Equal(t, 14, game.AwayScore)
	assert.Equal(t, 4, game.Period)
	assert.Equal(t, 212.0, game.ClockSeconds)
	assert.Equal(t, models.GameStatusIn, game.Status)
	assert.Equal(t, now, game.CapturedAt)
	assert.True(t, game.IsLive())
	assert.Equal(t, 10, game.Margin())
	assert.Equal(t, "BUF@KC", game.Matchup())
}

func TestParseEventCompetitorOrderIrrelevant(t *testing.T) {
	ev := liveEvent()
	ev.Competitions[0].Competitors[0], ev.Competitions[0].Competitors[1] =
		ev.Competitions[0].Competitors[1], ev.Competitions[0].Competitors[0]

	game, err := parseEvent(ev, models.SportNFL, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "KC", game.HomeTeam.Abbreviation)
	assert.Equal(t, 24, game.HomeScore)
}

func TestParseEventRejectsMalformed(t *testing.T) {
	t.Run("no competitions", func(t *testing.T) {
		ev := liveEvent()
		ev.Competitions = nil
		_, err := parseEvent(ev, models.SportNFL, time.Now())
		require.Error(t, err)
	})

	t.Run("wrong competitor count", func(t *testing.T) {
		ev := liveEvent()
		ev.Competitions[0].Competitors = ev.Competitions[0].Competitors[:1]
		_, err := parseEvent(ev, models.SportNFL, time.Now())
		require.Error(t, err)
	})

	t.Run("two away competitors", func(t *testing.T) {
		ev := liveEvent()
		ev.Competitions[0].Competitors[1].HomeAway = "away"
		_, err := parseEvent(ev, models.SportNFL, time.Now())
		require.Error(t, err)
	})

	t.Run("unknown status", func(t *testing.T) {
		ev := liveEvent()
		ev.Status.Type.State = "halftime-show"
		_, err := parseEvent(ev, models.SportNFL, time.Now())
		require.Error(t, err)
	})
}

func TestParseScoreBlankIsZero(t *testing.T) {
	// Pre-game scoreboards report empty score strings.
	ev := liveEvent()
	ev.Status.Type.State = "pre"
	ev.Competitions[0].Competitors[0].Score = ""
	ev.Competitions[0].Competitors[1].Score = ""

	game, err := parseEvent(ev, models.SportNFL, time.Now())
	require.NoError(t, err)
	assert.Zero(t, game.HomeScore)
	assert.Zero(t, game.AwayScore)
	assert.Equal(t, models.GameStatusPre, game.Status)
}

func TestSportPathsCoverAllSports(t *testing.T) {
	for _, sport := range models.Sports() {
		_, ok := sportPaths[sport]
		assert.True(t, ok, "missing scoreboard path for %s", sport)
	}
}
