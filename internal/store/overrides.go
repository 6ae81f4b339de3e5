package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// ManualOverride returns the operator-entered sections stored under key.
func (s *Store) ManualOverride(ctx context.Context, key string) ([]roof.Section, bool, error) {
	var raw string
	err := s.q.QueryRowContext(ctx, `SELECT sections_json FROM manual_overrides WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query manual override: %w", err)
	}
	var sections []roof.Section
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil, false, fmt.Errorf("decode manual override %q: %w", key, err)
	}
	return sections, true, nil
}

// SetManualOverride validates sections and stores them under key, replacing
// any previous override.
func (s *Store) SetManualOverride(ctx context.Context, key string, sections []roof.Section) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.Validation("override key is required")
	}
	if len(sections) == 0 {
		return apperr.Validation("override %q has no sections", key)
	}
	for i := range sections {
		if sections[i].SystemType == "" {
			sections[i].SystemType = sections[i].Kind.DefaultSystem()
		}
		if err := sections[i].Validate(); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("encode manual override: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO manual_overrides (key, sections_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			sections_json = excluded.sections_json,
			updated_at = CURRENT_TIMESTAMP
	`, key, string(raw)); err != nil {
		return fmt.Errorf("save manual override: %w", err)
	}
	return nil
}

// DeleteManualOverride removes the override under key and reports whether
// one existed.
func (s *Store) DeleteManualOverride(ctx context.Context, key string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM manual_overrides WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete manual override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete manual override: %w", err)
	}
	return n > 0, nil
}
