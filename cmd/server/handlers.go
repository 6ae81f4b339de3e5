package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/measurement"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/store"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

const (
	maxBodyBytes = 1 << 20
	retryAfter   = "30"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

type priceSectionRequest struct {
	Section roof.Section   `json:"section"`
	Job     quote.JobInput `json:"job"`
}

type priceQuoteRequest struct {
	Sections []roof.Section `json:"sections"`
	Job      quote.JobInput `json:"job"`

	Save                 bool   `json:"save"`
	Title                string `json:"title"`
	Address              string `json:"address"`
	MeasurementRequestID string `json:"measurementRequestId"`
}

type priceQuoteResponse struct {
	ID    string       `json:"id,omitempty"`
	Quote quote.Result `json:"quote"`
}

type financingRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type rateCardsResponse struct {
	Updated int `json:"updated"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	var req measurement.Request
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.pipeline.ResolveMeasurement(r.Context(), req.Lat, req.Lng, req.PlaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) handlePriceSection(w http.ResponseWriter, r *http.Request) {
	var req priceSectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := req.Job.Job()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.PriceSection(r.Context(), req.Section, job)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handlePriceQuote(w http.ResponseWriter, r *http.Request) {
	var req priceQuoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := req.Job.Job()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.PriceQuote(r.Context(), req.Sections, job)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := priceQuoteResponse{Quote: res}
	if req.Save {
		rec, err := s.store.SaveQuote(r.Context(), store.QuoteRecord{
			Title:                req.Title,
			Address:              req.Address,
			MeasurementRequestID: req.MeasurementRequestID,
			Quote:                res,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.ID = rec.ID
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleFinancing(w http.ResponseWriter, r *http.Request) {
	var req financingRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pipeline.CalculateFinancing(r.Context(), req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleQuotesList(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.store.ListQuotes(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *server) handleQuoteDetail(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleAdminWasteRules(w http.ResponseWriter, r *http.Request) {
	var cfg waste.Config
	if !s.decode(w, r, &cfg) {
		return
	}
	if err := s.store.SaveWasteRuleConfig(r.Context(), cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.waste.Invalidate()
	s.logger.Info("waste rules updated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAdminRateCards(w http.ResponseWriter, r *http.Request) {
	var entries []pricing.Entry
	if !s.decode(w, r, &entries) {
		return
	}
	if len(entries) == 0 {
		s.writeError(w, r, apperr.Validation("no rate card entries given"))
		return
	}
	err := s.store.InTx(r.Context(), func(tx *store.Store) error {
		for _, e := range entries {
			if err := tx.UpsertRateCardEntry(r.Context(), e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.pricing.Invalidate()
	s.logger.Info("rate card updated", zap.Int("entries", len(entries)))
	writeJSON(w, http.StatusOK, rateCardsResponse{Updated: len(entries)})
}

func (s *server) handleAdminFinancePlan(w http.ResponseWriter, r *http.Request) {
	var plan finance.Plan
	if !s.decode(w, r, &plan) {
		return
	}
	saved, err := s.store.SaveFinancePlan(r.Context(), plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("finance plan saved", zap.String("id", saved.ID), zap.Bool("active", saved.Active))
	writeJSON(w, http.StatusOK, saved)
}

func (s *server) handleAdminSetOverride(w http.ResponseWriter, r *http.Request) {
	var sections []roof.Section
	if !s.decode(w, r, &sections) {
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.store.SetManualOverride(r.Context(), key, sections); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("manual override saved", zap.String("key", key), zap.Int("sections", len(sections)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAdminDeleteOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	deleted, err := s.store.DeleteManualOverride(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !deleted {
		s.writeError(w, r, apperr.NotFound("no override for %q", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	resp := errorResponse{Error: string(kind), Message: "internal error"}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Context = appErr.Context
	}
	if kind == apperr.KindValidation {
		// Wrapped validation errors carry the section they came from.
		resp.Message = strings.TrimPrefix(err.Error(), string(apperr.KindValidation)+": ")
	}

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfter)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
