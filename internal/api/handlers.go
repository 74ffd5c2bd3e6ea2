package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"budget-tracker-bot/internal/api/middleware"
	"budget-tracker-bot/internal/ledger"
	"budget-tracker-bot/internal/models"
	"budget-tracker-bot/internal/period"
	"budget-tracker-bot/internal/reports"
	"budget-tracker-bot/internal/utils"

	"github.com/shopspring/decimal"
)

const (
	defaultTopCategories = 3
	defaultTrendPeriods  = 6
)

var validationErrors = []error{
	models.ErrInvalidAmount,
	models.ErrEmptyName,
	models.ErrEmptyCategory,
	models.ErrEmptySource,
	models.ErrInvalidDate,
	models.ErrInvalidCycle,
	models.ErrNegativeBudget,
	models.ErrTextTooLong,
}

// writeDomainError maps ledger and validation errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, what+": not found")
		return
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg(what)
	middleware.WriteError(w, http.StatusInternalServerError, what)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) book(r *http.Request) *ledger.Book {
	return s.ledger.Book(r.PathValue("userID"))
}

// listExpenses handles GET /api/users/{userID}/expenses
func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.book(r).Expenses(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to list expenses", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": nonNil(expenses),
		"count":    len(expenses),
	})
}

type expenseRequest struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Date     models.Date     `json:"date"`
}

// addExpense handles POST /api/users/{userID}/expenses
func (s *Server) addExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decode(w, r, &req) {
		return
	}
	saved, err := s.book(r).AddExpense(r.Context(), models.Expense{
		Name:     req.Name,
		Amount:   req.Amount,
		Category: req.Category,
		Date:     req.Date,
	})
	if err != nil {
		s.writeDomainError(w, r, "Failed to add expense", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, saved)
}

// deleteExpense handles DELETE /api/users/{userID}/expenses/{id}
func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.book(r).DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listIncomes handles GET /api/users/{userID}/incomes
func (s *Server) listIncomes(w http.ResponseWriter, r *http.Request) {
	incomes, err := s.book(r).Incomes(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to list incomes", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"incomes": nonNil(incomes),
		"count":   len(incomes),
	})
}

type incomeRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source"`
	Date   models.Date     `json:"date"`
}

// addIncome handles POST /api/users/{userID}/incomes
func (s *Server) addIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if !decode(w, r, &req) {
		return
	}
	saved, err := s.book(r).AddIncome(r.Context(), models.Income{
		Amount: req.Amount,
		Source: req.Source,
		Date:   req.Date,
	})
	if err != nil {
		s.writeDomainError(w, r, "Failed to add income", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, saved)
}

// deleteIncome handles DELETE /api/users/{userID}/incomes/{id}
func (s *Server) deleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.book(r).DeleteIncome(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, "Failed to delete income", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getBudget handles GET /api/users/{userID}/budget
func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	settings, err := s.book(r).Budget(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to load budget", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, settings)
}

// setBudget handles PUT /api/users/{userID}/budget
func (s *Server) setBudget(w http.ResponseWriter, r *http.Request) {
	var settings models.BudgetSettings
	if !decode(w, r, &settings) {
		return
	}
	if err := s.book(r).SetBudget(r.Context(), settings); err != nil {
		s.writeDomainError(w, r, "Failed to save budget", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, settings)
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
	// UpdatedAt is omitted when the balance was never set.
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, book *ledger.Book) {
	balance, err := book.Balance(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to load balance", err)
		return
	}
	resp := balanceResponse{Balance: balance}
	updated, ok, err := book.BalanceUpdatedAt(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to load balance", err)
		return
	}
	if ok {
		resp.UpdatedAt = updated.Format("2006-01-02T15:04:05Z07:00")
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// getBalance handles GET /api/users/{userID}/balance
func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	s.writeBalance(w, r, s.book(r))
}

// setBalance handles PUT /api/users/{userID}/balance
func (s *Server) setBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	book := s.book(r)
	if _, err := book.SetBalance(r.Context(), req.Amount); err != nil {
		s.writeDomainError(w, r, "Failed to set balance", err)
		return
	}
	s.writeBalance(w, r, book)
}

// adjustBalance handles POST /api/users/{userID}/balance/adjust
func (s *Server) adjustBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta decimal.Decimal `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	book := s.book(r)
	if _, err := book.UpdateBalance(r.Context(), req.Delta); err != nil {
		s.writeDomainError(w, r, "Failed to update balance", err)
		return
	}
	s.writeBalance(w, r, book)
}

type progressResponse struct {
	Period         string                     `json:"period"`
	Label          string                     `json:"label"`
	Cycle          models.CyclePeriod         `json:"cycle"`
	Start          models.Date                `json:"start"`
	End            models.Date                `json:"end"`
	Budget         decimal.Decimal            `json:"budget"`
	Spent          decimal.Decimal            `json:"spent"`
	Remaining      decimal.Decimal            `json:"remaining"`
	Percentage     int                        `json:"percentage"`
	CategoryTotals map[string]decimal.Decimal `json:"categoryTotals"`
}

func newProgressResponse(p period.Progress, totals map[string]decimal.Decimal) progressResponse {
	if totals == nil {
		totals = map[string]decimal.Decimal{}
	}
	return progressResponse{
		Period:         p.Window.Key(),
		Label:          p.Window.Label(),
		Cycle:          p.Window.Cycle,
		Start:          p.Window.Start,
		End:            p.Window.LastDay(),
		Budget:         p.Budget,
		Spent:          p.Spent,
		Remaining:      p.Remaining,
		Percentage:     p.Percentage,
		CategoryTotals: totals,
	}
}

// progress handles GET /api/users/{userID}/progress
func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.book(r).Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to calculate progress", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, newProgressResponse(snap.Progress, snap.CategoryTotals))
}

// rollover handles POST /api/users/{userID}/rollover
func (s *Server) rollover(w http.ResponseWriter, r *http.Request) {
	res, err := s.book(r).Rollover(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to roll over period", err)
		return
	}
	resp := map[string]interface{}{"archived": res.Archived}
	if res.Archived {
		resp["archive"] = res.Archive
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// listArchives handles GET /api/users/{userID}/archives
func (s *Server) listArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := s.book(r).Archives(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to list archives", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"archives": nonNil(archives),
		"count":    len(archives),
	})
}

// getArchive handles GET /api/users/{userID}/archives/{key}
func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	archive, err := s.book(r).Archive(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeDomainError(w, r, "Archive", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, archive)
}

// exportArchive handles GET /api/users/{userID}/archives/{key}/csv
func (s *Server) exportArchive(w http.ResponseWriter, r *http.Request) {
	archive, err := s.book(r).Archive(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeDomainError(w, r, "Archive", err)
		return
	}
	var buffer bytes.Buffer
	if err := utils.GenerateArchiveCSV(&archive, s.ledger.Now(), &buffer); err != nil {
		s.writeDomainError(w, r, "Failed to generate CSV", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "expenses_"+archive.Key+".csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(buffer.Bytes())
}

// compare handles GET /api/users/{userID}/reports/compare?top=N
func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	archives, err := s.book(r).Archives(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to list archives", err)
		return
	}
	c, err := reports.Compare(archives, queryInt(r, "top", defaultTopCategories))
	if errors.Is(err, reports.ErrNoArchives) || errors.Is(err, reports.ErrNotEnoughArchives) {
		middleware.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeDomainError(w, r, "Failed to compare periods", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

// trends handles GET /api/users/{userID}/reports/trends?periods=N
func (s *Server) trends(w http.ResponseWriter, r *http.Request) {
	archives, err := s.book(r).Archives(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "Failed to list archives", err)
		return
	}
	if n := queryInt(r, "periods", defaultTrendPeriods); len(archives) > n {
		archives = archives[:n]
	}
	report, err := reports.Trends(archives)
	if errors.Is(err, reports.ErrNoArchives) {
		middleware.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.writeDomainError(w, r, "Failed to analyze trends", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// evaluateInsights handles POST /api/users/{userID}/insights
func (s *Server) evaluateInsights(w http.ResponseWriter, r *http.Request) {
	added, err := s.insights.EvaluateInsights(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeDomainError(w, r, "Failed to evaluate insights", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": nonNil(added),
		"count":         len(added),
	})
}

// listNotifications handles GET /api/users/{userID}/notifications
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	ns, err := s.insights.Notifications(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, "Failed to list notifications", err)
		return
	}
	unread, err := s.insights.UnreadCount(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, "Failed to list notifications", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": nonNil(ns),
		"count":         len(ns),
		"unread":        unread,
	})
}

// markRead handles POST /api/users/{userID}/notifications/{id}/read
func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	if err := s.insights.MarkRead(r.Context(), r.PathValue("userID"), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, "Notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// markAllRead handles POST /api/users/{userID}/notifications/read
func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.insights.MarkAllRead(r.Context(), r.PathValue("userID")); err != nil {
		s.writeDomainError(w, r, "Failed to update notifications", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearNotifications handles DELETE /api/users/{userID}/notifications
func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := s.insights.ClearAll(r.Context(), r.PathValue("userID")); err != nil {
		s.writeDomainError(w, r, "Failed to clear notifications", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && n > 0 {
		return n
	}
	return def
}

// nonNil keeps empty lists encoded as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
