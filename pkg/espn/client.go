package espn

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

const baseURL = "https://site.api.espn.com/apis/site/v2/sports"

var sportPaths = map[models.Sport]string{
	models.SportNFL:             "/football/nfl",
	models.SportNBA:             "/basketball/nba",
	models.SportCollegeFootball: "/football/college-football",
}

// Error wraps a failed scoreboard request. These are transient: callers
// retry on the next poll rather than treating a missed tick as fatal.
type Error struct {
	Sport models.Sport
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("espn %s: %v", e.Sport, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches scoreboards from the unofficial ESPN site API. Endpoints
// may change without notice.
type Client struct {
	http   *resty.Client
	logger *logrus.Logger
}

func NewClient(timeout time.Duration, logger *logrus.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)

	return &Client{http: client, logger: logger}
}

type scoreboardResponse struct {
	Events []event `json:"events"`
}

type event struct {
	ID           string        `json:"id"`
	Status       eventStatus   `json:"status"`
	Competitions []competition `json:"competitions"`
}

type eventStatus struct {
	Type struct {
		State string `json:"state"`
	} `json:"type"`
}

type competition struct {
	Competitors []competitor `json:"competitors"`
	Status      struct {
		Clock  float64 `json:"clock"`
		Period int     `json:"period"`
	} `json:"status"`
}

type competitor struct {
	HomeAway string `json:"homeAway"`
	Score    string `json:"score"`
	Team     struct {
		ID           string `json:"id"`
		Abbreviation string `json:"abbreviation"`
		DisplayName  string `json:"displayName"`
	} `json:"team"`
}

// Scoreboard fetches the current scoreboard for a sport. The optional date
// is in YYYYMMDD form.
func (c *Client) Scoreboard(ctx context.Context, sport models.Sport, date string) ([]models.GameState, error) {
	path, ok := sportPaths[sport]
	if !ok {
		return nil, &Error{Sport: sport, Err: fmt.Errorf("unsupported sport")}
	}

	params := map[string]string{}
	if date != "" {
		params["dates"] = date
	}
	// College football scoreboard needs the FBS group filter.
	if sport == models.SportCollegeFootball {
		params["groups"] = "80"
	}

	var body scoreboardResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get(path + "/scoreboard")
	if err != nil {
		return nil, &Error{Sport: sport, Err: err}
	}
	if resp.IsError() {
		return nil, &Error{Sport: sport, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())}
	}

	now := time.Now()
	games := make([]models.GameState, 0, len(body.Events))
	for _, ev := range body.Events {
		game, err := parseEvent(ev, sport, now)
		if err != nil {
			c.logger.WithError(err).WithField("event_id", ev.ID).Debug("Skipping unparseable event")
			continue
		}
		games = append(games, game)
	}
	return games, nil
}

func parseEvent(ev event, sport models.Sport, now time.Time) (models.GameState, error) {
	if len(ev.Competitions) == 0 {
		return models.GameState{}, fmt.Errorf("event has no competitions")
	}
	comp := ev.Competitions[0]
	if len(comp.Competitors) != 2 {
		return models.GameState{}, fmt.Errorf("expected 2 competitors, got %d", len(comp.Competitors))
	}

	var home, away *competitor
	for i := range comp.Competitors {
		if comp.Competitors[i].HomeAway == "home" {
			home = &comp.Competitors[i]
		} else {
			away = &comp.Competitors[i]
		}
	}
	if home == nil || away == nil {
		return models.GameState{}, fmt.Errorf("missing home or away competitor")
	}

	status := models.GameStatus(ev.Status.Type.State)
	switch status {
	case models.GameStatusPre, models.GameStatusIn, models.GameStatusPost:
	default:
		return models.GameState{}, fmt.Errorf("unknown game status %q", ev.Status.Type.State)
	}

	return models.GameState{
		EventID: ev.ID,
		Sport:   sport,
		HomeTeam: models.Team{
			ID:           home.Team.ID,
			Abbreviation: home.Team.Abbreviation,
			DisplayName:  home.Team.DisplayName,
		},
		AwayTeam: models.Team{
			ID:           away.Team.ID,
			Abbreviation: away.Team.Abbreviation,
			DisplayName:  away.Team.DisplayName,
		},
		HomeScore:    parseScore(home.Score),
		AwayScore:    parseScore(away.Score),
		Period:       comp.Status.Period,
		ClockSeconds: comp.Status.Clock,
		Status:       status,
		CapturedAt:   now,
	}, nil
}

func parseScore(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// LiveGames returns only games currently in progress.
func (c *Client) LiveGames(ctx context.Context, sport models.Sport) ([]models.GameState, error) {
	games, err := c.Scoreboard(ctx, sport, "")
	if err != nil {
		return nil, err
	}
	live := games[:0]
	for _, game := range games {
		if game.IsLive() {
			live = append(live, game)
		}
	}
	return live, nil
}

// AllLiveGames fetches live games across every supported sport. A failing
// sport is logged and skipped so one bad feed does not blind the rest.
func (c *Client) AllLiveGames(ctx context.Context) (map[models.Sport][]models.GameState, error) {
	result := make(map[models.Sport][]models.GameState)
	for _, sport := range models.Sports() {
		games, err := c.LiveGames(ctx, sport)
		if err != nil {
			c.logger.WithError(err).WithField("sport", sport).Warn("Failed to fetch scoreboard")
			continue
		}
		if len(games) > 0 {
			result[sport] = games
		}
	}
	return result, nil
}
