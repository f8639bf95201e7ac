package store

import "database/sql"

// Schema is the registry index: one canonical sequence per locale, its
// documented gaps, and the extracted details of each record.
const Schema = `
CREATE TABLE IF NOT EXISTS patents (
    locale          TEXT NOT NULL,
    certificate_id  INTEGER NOT NULL,
    application_id  INTEGER NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    patent_link     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (locale, certificate_id)
);

-- FTS5 on patent titles
CREATE VIRTUAL TABLE IF NOT EXISTS patents_fts USING fts5(
    title, content='patents', content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS patents_ai AFTER INSERT ON patents BEGIN
    INSERT INTO patents_fts(rowid, title) VALUES (new.rowid, new.title);
END;
CREATE TRIGGER IF NOT EXISTS patents_ad AFTER DELETE ON patents BEGIN
    INSERT INTO patents_fts(patents_fts, rowid, title) VALUES('delete', old.rowid, old.title);
END;
CREATE TRIGGER IF NOT EXISTS patents_au AFTER UPDATE ON patents BEGIN
    INSERT INTO patents_fts(patents_fts, rowid, title) VALUES('delete', old.rowid, old.title);
    INSERT INTO patents_fts(rowid, title) VALUES (new.rowid, new.title);
END;

CREATE TABLE IF NOT EXISTS gaps (
    locale          TEXT NOT NULL,
    certificate_id  INTEGER NOT NULL,
    PRIMARY KEY (locale, certificate_id)
);

-- Details survive sequence replacement: certificate ids are stable.
CREATE TABLE IF NOT EXISTS details (
    locale          TEXT NOT NULL,
    certificate_id  INTEGER NOT NULL,
    fields_json     TEXT NOT NULL,
    extracted_at    INTEGER NOT NULL,
    PRIMARY KEY (locale, certificate_id)
);

CREATE TABLE IF NOT EXISTS sequences (
    locale          TEXT PRIMARY KEY,
    parsing_date    TEXT NOT NULL DEFAULT '',
    last_id         INTEGER NOT NULL,
    loaded_at       INTEGER NOT NULL
);
`

// ApplySchema creates all tables, indexes and triggers.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
