// Package api provides the local HTTP interface: status, history, manual
// runs, payments and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ZakatSentinel/internal/eligibility"
	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/metrics"
	"ZakatSentinel/internal/model"
	"ZakatSentinel/internal/recorder"
	"ZakatSentinel/internal/scheduler"
	"ZakatSentinel/internal/tracker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Server is the HTTP API server.
type Server struct {
	sched    *scheduler.Scheduler
	recorder recorder.Recorder
	metrics  *metrics.Metrics
}

// NewServer creates a new API server.
func NewServer(sched *scheduler.Scheduler, rec recorder.Recorder, m *metrics.Metrics) *Server {
	return &Server{sched: sched, recorder: rec, metrics: m}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/nisab", s.handleNisab)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/mark-paid", s.handleMarkPaid)
	})

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

type thresholdJSON struct {
	Value      string `json:"value"`
	Provenance string `json:"provenance"`
	Source     string `json:"source,omitempty"`
}

type statusResponse struct {
	RunID           string        `json:"run_id,omitempty"`
	GregorianDate   string        `json:"gregorian_date"`
	HijriDate       string        `json:"hijri_date"`
	Threshold       thresholdJSON `json:"threshold"`
	Verdict         model.Verdict `json:"verdict"`
	MonthsRemaining int           `json:"months_remaining"`
}

func (s *Server) statusOf(obs model.Observation, th model.ThresholdSnapshot, v model.Verdict, runID string) statusResponse {
	p := eligibility.Policy{RequiredMonths: s.sched.Opts.RequiredMonths}
	return statusResponse{
		RunID:           runID,
		GregorianDate:   obs.Date.Format(time.DateOnly),
		HijriDate:       obs.Hijri.String(),
		Threshold:       toThresholdJSON(th),
		Verdict:         v,
		MonthsRemaining: max(eligibility.MonthsRemaining(v, p), 0),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o := s.sched.Last(); o != nil {
		writeJSON(w, http.StatusOK, s.statusOf(o.Observation, o.Threshold, o.Verdict, o.RunID))
		return
	}
	th := s.sched.Nisab.Current(r.Context())
	v, l, err := s.sched.Tracker.Evaluate(th.Value)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	latest, ok := l.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no observations recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, s.statusOf(latest, th, v, ""))
}

type entryJSON struct {
	GregorianDate string `json:"gregorian_date"`
	HijriYear     int    `json:"hijri_year"`
	HijriMonth    int    `json:"hijri_month"`
	Balance       string `json:"balance"`
	Above         bool   `json:"above_threshold"`
}

type paymentJSON struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

type runJSON struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	HijriYear    int       `json:"hijri_year,omitempty"`
	HijriMonth   int       `json:"hijri_month,omitempty"`
	TotalBalance string    `json:"total_balance,omitempty"`
	Threshold    string    `json:"threshold,omitempty"`
	Streak       int       `json:"streak"`
	LevyDue      bool      `json:"levy_due"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	l, err := s.sched.Tracker.History()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	th := s.sched.Nisab.Current(r.Context())

	entries := make([]entryJSON, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, entryJSON{
			GregorianDate: e.Date.Format(time.DateOnly),
			HijriYear:     e.Hijri.Year,
			HijriMonth:    e.Hijri.Month,
			Balance:       e.Balance.StringFixed(2),
			Above:         e.Balance.GreaterThanOrEqual(th.Value),
		})
	}
	payments := make([]paymentJSON, 0, len(l.Payments))
	for _, p := range l.Payments {
		payments = append(payments, paymentJSON{Date: p.Date.Format(time.DateOnly), Amount: p.Amount.StringFixed(2)})
	}
	runs := []runJSON{}
	if s.recorder != nil {
		rows, err := s.recorder.RecentRuns(20)
		if err != nil {
			log.Warnf("read recent runs: %v", err)
		}
		for _, row := range rows {
			runs = append(runs, runJSON{
				RunID: row.RunID, Timestamp: row.Timestamp, Status: row.Status,
				HijriYear: row.HijriYear, HijriMonth: row.HijriMonth,
				TotalBalance: row.TotalBalance, Threshold: row.Threshold,
				Streak: row.Streak, LevyDue: row.LevyDue,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": toThresholdJSON(th),
		"entries":   entries,
		"payments":  payments,
		"runs":      runs,
	})
}

func (s *Server) handleNisab(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toThresholdJSON(s.sched.Nisab.Current(r.Context())))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	out, err := s.sched.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, tracker.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		var se *tracker.StageError
		if errors.As(err, &se) {
			writeStoreError(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.statusOf(out.Observation, out.Threshold, out.Verdict, out.RunID))
}

type markPaidRequest struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := hijri.ParseGregorian(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative number")
		return
	}
	if err := s.sched.MarkPaid(date, amount); err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidDate):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, tracker.ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeStoreError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, paymentJSON{Date: date.Format(time.DateOnly), Amount: amount.StringFixed(2)})
}

func toThresholdJSON(t model.ThresholdSnapshot) thresholdJSON {
	return thresholdJSON{Value: t.Value.StringFixed(2), Provenance: string(t.Provenance), Source: t.Source}
}

// writeStoreError maps ledger failures to a response without leaking paths.
func writeStoreError(w http.ResponseWriter, err error) {
	log.Errorf("history store: %v", err)
	switch {
	case errors.Is(err, model.ErrDecryptionFailed):
		writeError(w, http.StatusInternalServerError, "history could not be decrypted")
	case errors.Is(err, model.ErrCorruptHistory):
		writeError(w, http.StatusInternalServerError, "history is corrupt")
	default:
		writeError(w, http.StatusInternalServerError, "history unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
		},
	})
}
