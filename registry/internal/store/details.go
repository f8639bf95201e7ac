package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// UpsertDetail stores the extracted fields of one record.
func (s *Store) UpsertDetail(ctx context.Context, locale string, id int, fields any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: encode detail %d: %w", id, err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO details (locale, certificate_id, fields_json, extracted_at) VALUES (?,?,?,?)
		ON CONFLICT(locale, certificate_id) DO UPDATE SET
			fields_json=excluded.fields_json, extracted_at=excluded.extracted_at`,
		locale, id, string(data), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upsert detail %d: %w", id, err)
	}
	return nil
}
