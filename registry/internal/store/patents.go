// CLAUDE:SUMMARY Transactional replacement of a locale's canonical sequence, patent lookup, FTS5 title search and gap listing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/aipo/dbopen"
	"github.com/hazyhaar/aipo/registry/internal/model"
)

// ReplaceSequence swaps the locale's records and gaps for seq in a single
// transaction. Readers see either the old or the new sequence.
func (s *Store) ReplaceSequence(ctx context.Context, locale, parsingDate string, seq model.Sequence) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM patents WHERE locale = ?`, locale); err != nil {
			return fmt.Errorf("store: clear patents: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM gaps WHERE locale = ?`, locale); err != nil {
			return fmt.Errorf("store: clear gaps: %w", err)
		}

		ins, err := tx.PrepareContext(ctx,
			`INSERT INTO patents (locale, certificate_id, application_id, title, patent_link) VALUES (?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("store: prepare patents: %w", err)
		}
		defer ins.Close()
		for _, r := range seq.Records {
			if _, err := ins.ExecContext(ctx, locale, r.CertificateID, r.ApplicationID, r.Title, r.Link); err != nil {
				return fmt.Errorf("store: insert patent %d: %w", r.CertificateID, err)
			}
		}

		gap, err := tx.PrepareContext(ctx, `INSERT INTO gaps (locale, certificate_id) VALUES (?,?)`)
		if err != nil {
			return fmt.Errorf("store: prepare gaps: %w", err)
		}
		defer gap.Close()
		for _, id := range seq.Gaps {
			if _, err := gap.ExecContext(ctx, locale, id); err != nil {
				return fmt.Errorf("store: insert gap %d: %w", id, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO sequences (locale, parsing_date, last_id, loaded_at) VALUES (?,?,?,?)
			ON CONFLICT(locale) DO UPDATE SET parsing_date=excluded.parsing_date,
				last_id=excluded.last_id, loaded_at=excluded.loaded_at`,
			locale, parsingDate, seq.Last(), s.now().UnixMilli())
		if err != nil {
			return fmt.Errorf("store: record sequence: %w", err)
		}
		return nil
	})
}

// GetPatent returns one record with its details. ErrNotFound when the id is
// not in the locale's sequence.
func (s *Store) GetPatent(ctx context.Context, locale string, id int) (*Patent, error) {
	var p Patent
	var fields sql.NullString
	var extractedAt sql.NullInt64
	err := s.DB.QueryRowContext(ctx,
		`SELECT p.locale, p.certificate_id, p.application_id, p.title, p.patent_link,
			d.fields_json, d.extracted_at
		FROM patents p
		LEFT JOIN details d ON d.locale = p.locale AND d.certificate_id = p.certificate_id
		WHERE p.locale = ? AND p.certificate_id = ?`, locale, id).
		Scan(&p.Locale, &p.CertificateID, &p.ApplicationID, &p.Title, &p.Link, &fields, &extractedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s patent %d", ErrNotFound, locale, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get patent: %w", err)
	}
	if fields.Valid {
		p.Details = []byte(fields.String)
	}
	if extractedAt.Valid {
		t := time.UnixMilli(extractedAt.Int64)
		p.ExtractedAt = &t
	}
	return &p, nil
}

// SearchPatents runs a full-text search on titles within one locale, best
// matches first. Every word of query must match, as a prefix.
func (s *Store) SearchPatents(ctx context.Context, locale, query string, limit int) ([]*SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT p.certificate_id, p.application_id, p.title, p.patent_link, rank
		FROM patents_fts f
		JOIN patents p ON p.rowid = f.rowid
		WHERE patents_fts MATCH ? AND p.locale = ?
		ORDER BY rank, p.certificate_id
		LIMIT ?`, match, locale, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.CertificateID, &r.ApplicationID, &r.Title, &r.Link, &r.Rank); err != nil {
			return nil, fmt.Errorf("store: scan search result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// ListGaps returns the locale's documented gaps, ascending.
func (s *Store) ListGaps(ctx context.Context, locale string) ([]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT certificate_id FROM gaps WHERE locale = ? ORDER BY certificate_id`, locale)
	if err != nil {
		return nil, fmt.Errorf("store: list gaps: %w", err)
	}
	defer rows.Close()

	gaps := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		gaps = append(gaps, id)
	}
	return gaps, rows.Err()
}

// ftsQuery quotes each word so user input cannot inject FTS5 syntax.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"*`
	}
	return strings.Join(words, " ")
}
