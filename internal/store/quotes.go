package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
)

// QuoteRecord is a saved quote snapshot. The priced result is stored as-is
// so it can be shown later without recalculation.
type QuoteRecord struct {
	ID                   string       `json:"id"`
	CreatedAt            time.Time    `json:"createdAt"`
	Title                string       `json:"title"`
	Address              string       `json:"address"`
	MeasurementRequestID string       `json:"measurementRequestId,omitempty"`
	Quote                quote.Result `json:"quote"`
}

// QuoteSummary is one row of the quote list.
type QuoteSummary struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Title     string          `json:"title"`
	Address   string          `json:"address"`
	County    string          `json:"county"`
	Total     decimal.Decimal `json:"total"`
}

// SaveQuote stores rec, assigning an ID and creation time when missing.
func (s *Store) SaveQuote(ctx context.Context, rec QuoteRecord) (QuoteRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Second)
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Address = strings.TrimSpace(rec.Address)

	quoteJSON, err := json.Marshal(rec.Quote)
	if err != nil {
		return QuoteRecord{}, fmt.Errorf("encode quote: %w", err)
	}
	totalsJSON, err := json.Marshal(rec.Quote.Totals)
	if err != nil {
		return QuoteRecord{}, fmt.Errorf("encode quote totals: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO quotes (id, created_at, title, address, county, measurement_request_id, quote_json, totals_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.Format(timeLayout), rec.Title, rec.Address, rec.Quote.Job.County,
		rec.MeasurementRequestID, string(quoteJSON), string(totalsJSON)); err != nil {
		return QuoteRecord{}, fmt.Errorf("insert quote: %w", err)
	}
	return rec, nil
}

// GetQuote returns the saved quote with id.
func (s *Store) GetQuote(ctx context.Context, id string) (QuoteRecord, error) {
	var rec QuoteRecord
	var createdAt, quoteJSON string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, created_at, title, address, measurement_request_id, quote_json
		FROM quotes
		WHERE id = ?
	`, id).Scan(&rec.ID, &createdAt, &rec.Title, &rec.Address, &rec.MeasurementRequestID, &quoteJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return QuoteRecord{}, apperr.NotFound("quote %q not found", id)
	}
	if err != nil {
		return QuoteRecord{}, fmt.Errorf("query quote: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(quoteJSON), &rec.Quote); err != nil {
		return QuoteRecord{}, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return rec, nil
}

// ListQuotes returns saved quotes newest first. A non-empty query filters on
// title and address.
func (s *Store) ListQuotes(ctx context.Context, query string) ([]QuoteSummary, error) {
	query = strings.TrimSpace(query)
	search := "%" + query + "%"
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, created_at, title, address, county, totals_json
		FROM quotes
		WHERE (? = '' OR title LIKE ? OR address LIKE ?)
		ORDER BY datetime(created_at) DESC, id DESC
	`, query, search, search)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]QuoteSummary, 0)
	for rows.Next() {
		var item QuoteSummary
		var createdAt, totalsJSON string
		if err := rows.Scan(&item.ID, &createdAt, &item.Title, &item.Address, &item.County, &totalsJSON); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		item.CreatedAt = parseTime(createdAt)
		item.Total = extractTotal(totalsJSON)
		quotes = append(quotes, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return quotes, nil
}

func extractTotal(totalsJSON string) decimal.Decimal {
	var totals pricing.Totals
	if err := json.Unmarshal([]byte(totalsJSON), &totals); err != nil {
		return decimal.Zero
	}
	return totals.Total
}
