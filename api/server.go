package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoreline-trading/scoreline/internal/storage"
	"github.com/scoreline-trading/scoreline/pkg/models"
	"github.com/scoreline-trading/scoreline/pkg/risk"
	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

type Server struct {
	riskMgr    *risk.Manager
	strategies []*strategy.Strategy
	store      storage.Store
	logger     *logrus.Logger
	port       string
}

// NewServer builds the read-only status API. store may be nil when no
// database is configured; trade endpoints then return empty lists.
func NewServer(riskMgr *risk.Manager, strategies []*strategy.Strategy, store storage.Store, logger *logrus.Logger, port string) *Server {
	return &Server{
		riskMgr:    riskMgr,
		strategies: strategies,
		store:      store,
		logger:     logger,
		port:       port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/strategies", s.handleStrategies)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/summary", s.handleSummary)

	// Enable CORS for the dashboard
	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.riskMgr.Summary())
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	configs := make([]strategy.Config, 0, len(s.strategies))
	for _, strat := range s.strategies {
		configs = append(configs, strat.Config())
	}
	s.writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []models.TradeRecord{})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.store.RecentTrades(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load trades")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, storage.DailySummary{})
		return
	}

	day := time.Now()
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "invalid day, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	summary, err := s.store.DailySummary(r.Context(), day)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load daily summary")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
