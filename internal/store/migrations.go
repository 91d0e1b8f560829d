package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cards (
		id          TEXT PRIMARY KEY,
		board_id    TEXT NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cards_board ON cards(board_id);

	CREATE TABLE IF NOT EXISTS domains (
		id         TEXT PRIMARY KEY,
		board_id   TEXT NOT NULL,
		name       TEXT NOT NULL CHECK (length(trim(name)) > 0),
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_domains_board_name ON domains(board_id, name);

	CREATE TABLE IF NOT EXISTS entities (
		id              TEXT PRIMARY KEY,
		domain_id       TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
		name            TEXT NOT NULL CHECK (length(trim(name)) > 0),
		aliases         TEXT NOT NULL DEFAULT '[]',
		entity_type     TEXT NOT NULL DEFAULT 'concept',
		description     TEXT NOT NULL DEFAULT '',
		confidence      REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		external_id     TEXT,
		external_source TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		CHECK ((external_id IS NULL) = (external_source IS NULL))
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_entities_domain_name ON entities(domain_id, name);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_entities_external ON entities(external_source, external_id)
		WHERE external_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS facts (
		id                TEXT PRIMARY KEY,
		domain_id         TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
		subject_id        TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		predicate         TEXT NOT NULL CHECK (length(predicate) > 0),
		object_entity_id  TEXT REFERENCES entities(id) ON DELETE CASCADE,
		object_value      TEXT,
		object_type       TEXT NOT NULL DEFAULT '',
		confidence        REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		extraction_method TEXT NOT NULL,
		negated           INTEGER NOT NULL DEFAULT 0,
		valid_from        TEXT NOT NULL,
		valid_until       TEXT,
		created_at        TEXT NOT NULL,
		CHECK ((object_entity_id IS NULL) <> (object_value IS NULL))
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_facts_active_entity
		ON facts(domain_id, subject_id, predicate, object_entity_id)
		WHERE valid_until IS NULL AND object_entity_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS ux_facts_active_value
		ON facts(domain_id, subject_id, predicate, object_value)
		WHERE valid_until IS NULL AND object_value IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject_id);
	CREATE INDEX IF NOT EXISTS idx_facts_object ON facts(object_entity_id);

	CREATE TABLE IF NOT EXISTS mentions (
		id                TEXT PRIMARY KEY,
		entity_id         TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		card_id           TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
		mention_text      TEXT NOT NULL,
		source_field      TEXT NOT NULL,
		text_offset_start INTEGER,
		text_offset_end   INTEGER,
		confidence        REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		extraction_method TEXT NOT NULL,
		match_strategy    TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		CHECK (text_offset_start IS NULL OR text_offset_start >= 0),
		CHECK (text_offset_end IS NULL OR text_offset_end >= 0),
		CHECK (text_offset_start IS NULL OR text_offset_end IS NULL OR text_offset_start <= text_offset_end)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_mentions
		ON mentions(entity_id, card_id, mention_text, source_field);
	CREATE INDEX IF NOT EXISTS idx_mentions_card ON mentions(card_id);

	CREATE TABLE IF NOT EXISTS card_facts (
		id                TEXT PRIMARY KEY,
		card_id           TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
		fact_id           TEXT NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
		role              TEXT NOT NULL CHECK (role IN ('source', 'evidence', 'related')),
		source_field      TEXT NOT NULL DEFAULT '',
		text_offset_start INTEGER,
		text_offset_end   INTEGER,
		created_at        TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_card_facts ON card_facts(card_id, fact_id, role);`,
}

func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: recording version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i+1, err)
		}
		s.logger.Info("applied schema migration", zap.Int("version", i+1))
	}
	return nil
}
