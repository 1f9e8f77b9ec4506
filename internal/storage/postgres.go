package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scoreline-trading/scoreline/pkg/models"
)

// Options defines the PostgreSQL connection.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (o Options) dsn() string {
	sslmode := o.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.User, o.Password, o.Database, sslmode)
}

type gameStateRow struct {
	ID           uint      `gorm:"primaryKey"`
	Timestamp    time.Time `gorm:"index"`
	EventID      string    `gorm:"index"`
	Sport        string    `gorm:"index"`
	HomeTeam     string
	AwayTeam     string
	HomeScore    int
	AwayScore    int
	Period       int
	ClockSeconds float64
	Status       string
}

func (gameStateRow) TableName() string { return "game_states" }

type marketStateRow struct {
	ID           uint      `gorm:"primaryKey"`
	Timestamp    time.Time `gorm:"index"`
	EventID      string    `gorm:"index"`
	Ticker       string    `gorm:"index"`
	EventTicker  string
	YesBid       int
	YesAsk       int
	NoBid        int
	NoAsk        int
	LastPrice    int
	Volume       int
	OpenInterest int
	Status       string
}

func (marketStateRow) TableName() string { return "market_states" }

type signalRow struct {
	ID          uint      `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"index"`
	Ticker      string    `gorm:"index"`
	SignalType  string
	Side        string
	Size        int
	Price       int
	Strategy    string `gorm:"index"`
	Reason      string
	WasExecuted bool
}

func (signalRow) TableName() string { return "signals" }

type tradeRow struct {
	ID         string    `gorm:"primaryKey"`
	Timestamp  time.Time `gorm:"index"`
	EventID    string    `gorm:"index"`
	Sport      string
	Matchup    string
	Ticker     string `gorm:"index"`
	Strategy   string `gorm:"index"`
	SignalType string
	Side       string
	Size       int
	Price      int
	FillPrice  int
	Status     string `gorm:"index"`
	Reason     string
	PnL        int
	Simulated  bool
	Error      string
}

func (tradeRow) TableName() string { return "trades" }

// PostgresStore implements Store on top of gorm.
type PostgresStore struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and migrates the schema.
func Open(opt Options) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&gameStateRow{}, &marketStateRow{}, &signalRow{}, &tradeRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) SaveGameState(ctx context.Context, g models.GameState) error {
	row := gameStateRow{
		Timestamp:    g.CapturedAt,
		EventID:      g.EventID,
		Sport:        string(g.Sport),
		HomeTeam:     g.HomeTeam.Abbreviation,
		AwayTeam:     g.AwayTeam.Abbreviation,
		HomeScore:    g.HomeScore,
		AwayScore:    g.AwayScore,
		Period:       g.Period,
		ClockSeconds: g.ClockSeconds,
		Status:       string(g.Status),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) SaveMarketState(ctx context.Context, eventID string, m models.MarketState) error {
	row := marketStateRow{
		Timestamp:    m.CapturedAt,
		EventID:      eventID,
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		NoBid:        m.NoBid,
		NoAsk:        m.NoAsk,
		LastPrice:    m.LastPrice,
		Volume:       m.Volume,
		OpenInterest: m.OpenInterest,
		Status:       string(m.Status),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) SaveSignal(ctx context.Context, sig models.TradeSignal, executed bool) error {
	row := signalRow{
		Timestamp:   sig.CreatedAt,
		Ticker:      sig.Ticker,
		SignalType:  string(sig.Signal),
		Side:        string(sig.Side),
		Size:        sig.Size,
		Price:       sig.Price,
		Strategy:    sig.Strategy,
		Reason:      sig.Reason,
		WasExecuted: executed,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) SaveTradeRecord(ctx context.Context, rec models.TradeRecord) error {
	row := tradeRow{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp,
		EventID:    rec.EventID,
		Sport:      string(rec.Sport),
		Matchup:    rec.Matchup,
		Ticker:     rec.Signal.Ticker,
		Strategy:   rec.Strategy,
		SignalType: string(rec.Signal.Signal),
		Side:       string(rec.Signal.Side),
		Size:       rec.Signal.Size,
		Price:      rec.Signal.Price,
		FillPrice:  rec.FillPrice,
		Status:     string(rec.Status),
		Reason:     rec.Signal.Reason,
		PnL:        rec.PnL,
		Simulated:  rec.Simulated,
		Error:      rec.Error,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Snapshots loads game snapshots in timestamp order and attaches the most
// recent market snapshot captured at or before each game tick.
func (s *PostgresStore) Snapshots(ctx context.Context, f SnapshotFilter) ([]models.Snapshot, error) {
	gameQ := s.db.WithContext(ctx).Model(&gameStateRow{}).Order("timestamp, event_id")
	marketQ := s.db.WithContext(ctx).Model(&marketStateRow{}).Order("timestamp")

	if !f.Start.IsZero() {
		gameQ = gameQ.Where("timestamp >= ?", f.Start)
		marketQ = marketQ.Where("timestamp >= ?", f.Start)
	}
	if !f.End.IsZero() {
		gameQ = gameQ.Where("timestamp <= ?", f.End)
		marketQ = marketQ.Where("timestamp <= ?", f.End)
	}
	if f.Sport != "" {
		gameQ = gameQ.Where("sport = ?", string(f.Sport))
	}

	var gameRows []gameStateRow
	if err := gameQ.Find(&gameRows).Error; err != nil {
		return nil, err
	}
	var marketRows []marketStateRow
	if err := marketQ.Find(&marketRows).Error; err != nil {
		return nil, err
	}

	marketsByEvent := make(map[string][]marketStateRow)
	for _, row := range marketRows {
		marketsByEvent[row.EventID] = append(marketsByEvent[row.EventID], row)
	}

	snapshots := make([]models.Snapshot, 0, len(gameRows))
	for _, row := range gameRows {
		snap := models.Snapshot{
			Timestamp: row.Timestamp,
			Game:      row.toGameState(),
			Market:    latestMarketAt(marketsByEvent[row.EventID], row.Timestamp),
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (r gameStateRow) toGameState() models.GameState {
	return models.GameState{
		EventID:      r.EventID,
		Sport:        models.Sport(r.Sport),
		HomeTeam:     models.Team{Abbreviation: r.HomeTeam, DisplayName: r.HomeTeam},
		AwayTeam:     models.Team{Abbreviation: r.AwayTeam, DisplayName: r.AwayTeam},
		HomeScore:    r.HomeScore,
		AwayScore:    r.AwayScore,
		Period:       r.Period,
		ClockSeconds: r.ClockSeconds,
		Status:       models.GameStatus(r.Status),
		CapturedAt:   r.Timestamp,
	}
}

// latestMarketAt returns the last market row at or before ts. Rows arrive
// sorted by timestamp.
func latestMarketAt(rows []marketStateRow, ts time.Time) *models.MarketState {
	idx := sort.Search(len(rows), func(i int) bool { return rows[i].Timestamp.After(ts) })
	if idx == 0 {
		return nil
	}
	row := rows[idx-1]
	m := models.MarketState{
		Ticker:       row.Ticker,
		EventTicker:  row.EventTicker,
		YesBid:       row.YesBid,
		YesAsk:       row.YesAsk,
		NoBid:        row.NoBid,
		NoAsk:        row.NoAsk,
		LastPrice:    row.LastPrice,
		Volume:       row.Volume,
		OpenInterest: row.OpenInterest,
		Status:       models.MarketStatus(row.Status),
		CapturedAt:   row.Timestamp,
	}
	return &m
}

func (s *PostgresStore) TradesOn(ctx context.Context, day time.Time) ([]models.TradeRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var rows []tradeRow
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (s *PostgresStore) RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	var rows []tradeRow
	err := s.db.WithContext(ctx).
		Order("timestamp desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (s *PostgresStore) DailySummary(ctx context.Context, day time.Time) (DailySummary, error) {
	records, err := s.TradesOn(ctx, day)
	if err != nil {
		return DailySummary{}, err
	}

	summary := DailySummary{Day: day.Format("2006-01-02"), Trades: len(records)}
	for _, rec := range records {
		switch rec.Status {
		case models.TradeStatusExecuted:
			summary.Executed++
		case models.TradeStatusRejected:
			summary.Rejected++
		case models.TradeStatusFailed:
			summary.Failed++
		}
		summary.PnL += rec.PnL
	}
	return summary, nil
}

func toRecords(rows []tradeRow) []models.TradeRecord {
	records := make([]models.TradeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.TradeRecord{
			ID:        row.ID,
			Timestamp: row.Timestamp,
			EventID:   row.EventID,
			Sport:     models.Sport(row.Sport),
			Matchup:   row.Matchup,
			Strategy:  row.Strategy,
			Signal: models.TradeSignal{
				Signal:    models.Signal(row.SignalType),
				Ticker:    row.Ticker,
				Side:      models.OrderSide(row.Side),
				Size:      row.Size,
				Price:     row.Price,
				Reason:    row.Reason,
				Strategy:  row.Strategy,
				CreatedAt: row.Timestamp,
			},
			Status:    models.TradeStatus(row.Status),
			FillPrice: row.FillPrice,
			PnL:       row.PnL,
			Simulated: row.Simulated,
			Error:     row.Error,
		})
	}
	return records
}
