package api

import (
	"net/http"
	"time"

	"budget-tracker-bot/internal/api/middleware"
	"budget-tracker-bot/internal/insights"
	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/logger"

	"github.com/rs/zerolog"
)

// Server exposes the ledger, reports and insights over JSON.
type Server struct {
	ledger   *ledger.Service
	insights *insights.Service
	log      zerolog.Logger
}

// NewServer creates the API server.
func NewServer(l *ledger.Service, ins *insights.Service, log zerolog.Logger) *Server {
	return &Server{
		ledger:   l,
		insights: ins,
		log:      logger.WithComponent(log, logger.ComponentAPI),
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health)

	const user = "/api/users/{userID}"

	// Expenses and incomes
	mux.HandleFunc("GET "+user+"/expenses", s.listExpenses)
	mux.HandleFunc("POST "+user+"/expenses", s.addExpense)
	mux.HandleFunc("DELETE "+user+"/expenses/{id}", s.deleteExpense)
	mux.HandleFunc("GET "+user+"/incomes", s.listIncomes)
	mux.HandleFunc("POST "+user+"/incomes", s.addIncome)
	mux.HandleFunc("DELETE "+user+"/incomes/{id}", s.deleteIncome)

	// Budget and balance
	mux.HandleFunc("GET "+user+"/budget", s.getBudget)
	mux.HandleFunc("PUT "+user+"/budget", s.setBudget)
	mux.HandleFunc("GET "+user+"/balance", s.getBalance)
	mux.HandleFunc("PUT "+user+"/balance", s.setBalance)
	mux.HandleFunc("POST "+user+"/balance/adjust", s.adjustBalance)
	mux.HandleFunc("GET "+user+"/progress", s.progress)

	// Periods
	mux.HandleFunc("POST "+user+"/rollover", s.rollover)
	mux.HandleFunc("GET "+user+"/archives", s.listArchives)
	mux.HandleFunc("GET "+user+"/archives/{key}", s.getArchive)
	mux.HandleFunc("GET "+user+"/archives/{key}/csv", s.exportArchive)
	mux.HandleFunc("GET "+user+"/reports/compare", s.compare)
	mux.HandleFunc("GET "+user+"/reports/trends", s.trends)

	// Insights
	mux.HandleFunc("POST "+user+"/insights", s.evaluateInsights)
	mux.HandleFunc("GET "+user+"/notifications", s.listNotifications)
	mux.HandleFunc("POST "+user+"/notifications/read", s.markAllRead)
	mux.HandleFunc("POST "+user+"/notifications/{id}/read", s.markRead)
	mux.HandleFunc("DELETE "+user+"/notifications", s.clearNotifications)

	return middleware.Chain(mux,
		middleware.Recovery(s.log),
		middleware.RequestID,
		middleware.Logger(s.log),
		middleware.CORS,
	)
}

// NewHTTPServer builds the http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.ledger.Now().Format(time.RFC3339),
	})
}
