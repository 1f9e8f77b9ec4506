package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

func TestOptionsDSN(t *testing.T) {
	dsn := Options{
		Host:     "db.internal",
		Port:     5433,
		User:     "scoreline",
		Password: "hunter2",
		Database: "scoreline",
	}.dsn()

	assert.Equal(t, "host=db.internal port=5433 user=scoreline password=hunter2 dbname=scoreline sslmode=disable", dsn)

	withSSL := Options{SSLMode: "require"}.dsn()
	assert.Contains(t, withSSL, "sslmode=require")
}

func marketRowAt(ts time.Time, yesAsk int) marketStateRow {
	return marketStateRow{
		Timestamp: ts,
		EventID:   "401547439",
		Ticker:    "KXNFLGAME-KC",
		YesAsk:    yesAsk,
		Status:    "open",
	}
}

func TestLatestMarketAt(t *testing.T) {
	base := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
	rows := []marketStateRow{
		marketRowAt(base, 50),
		marketRowAt(base.Add(time.Minute), 55),
		marketRowAt(base.Add(2*time.Minute), 60),
	}

	assert.Nil(t, latestMarketAt(rows, base.Add(-time.Second)), "no market captured yet")

	m := latestMarketAt(rows, base)
	require.NotNil(t, m, "a row exactly at the tick counts")
	assert.Equal(t, 50, m.YesAsk)

	m = latestMarketAt(rows, base.Add(90*time.Second))
	require.NotNil(t, m)
	assert.Equal(t, 55, m.YesAsk, "the latest row at or before the tick wins")

	m = latestMarketAt(rows, base.Add(time.Hour))
	require.NotNil(t, m)
	assert.Equal(t, 60, m.YesAsk)

	assert.Nil(t, latestMarketAt(nil, base))
}

func TestGameStateRowRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)
	row := gameStateRow{
		Timestamp:    ts,
		EventID:      "401547439",
		Sport:        "nfl",
		HomeTeam:     "KC",
		AwayTeam:     "BUF",
		HomeScore:    24,
		AwayScore:    14,
		Period:       4,
		ClockSeconds: 212,
		Status:       "in",
	}

	game := row.toGameState()
	assert.Equal(t, models.SportNFL, game.Sport)
	assert.Equal(t, models.GameStatusIn, game.Status)
	assert.Equal(t, 10, game.Margin())
	assert.Equal(t, ts, game.CapturedAt)
	assert.True(t, game.IsLive())
}
