package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Stats returns counters for one locale. A locale never loaded reports zeros.
func (s *Store) Stats(ctx context.Context, locale string) (*Stats, error) {
	st := Stats{Locale: locale}
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM patents WHERE locale = ?`, locale).Scan(&st.Patents)
	if err != nil {
		return nil, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM gaps WHERE locale = ?`, locale).Scan(&st.Gaps)
	if err != nil {
		return nil, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM details WHERE locale = ?`, locale).Scan(&st.Details)
	if err != nil {
		return nil, err
	}

	var loaded int64
	err = s.DB.QueryRowContext(ctx,
		`SELECT parsing_date, last_id, loaded_at FROM sequences WHERE locale = ?`, locale).
		Scan(&st.ParsingDate, &st.LastID, &loaded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		t := time.UnixMilli(loaded)
		st.LoadedAt = &t
	}
	return &st, nil
}
