package database

import (
	"strings"

	"github.com/pkg/errors"
)

// migration one schema step; statements run in order
type migration struct {
	version    int
	statements []string
}

// {{doc}} is replaced by the dialect's large text type.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE projects (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				owner_wallet VARCHAR(64) NOT NULL,
				owner_user VARCHAR(64) NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL,
				doc {{doc}} NOT NULL,
				version BIGINT NOT NULL DEFAULT 1,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE INDEX idx_projects_owner_wallet ON projects (owner_wallet)`,
			`CREATE INDEX idx_projects_owner_user ON projects (owner_user)`,
			`CREATE INDEX idx_projects_created ON projects (created_at)`,
			`CREATE TABLE milestone_votes (
				milestone_id VARCHAR(64) NOT NULL,
				voter_wallet VARCHAR(64) NOT NULL,
				project_id VARCHAR(64) NOT NULL,
				PRIMARY KEY (milestone_id, voter_wallet)
			)`,
			`CREATE INDEX idx_milestone_votes_project ON milestone_votes (project_id)`,
			`CREATE TABLE contributions (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				project_id VARCHAR(64) NOT NULL,
				wallet_address VARCHAR(64) NOT NULL,
				user_id VARCHAR(64) NOT NULL DEFAULT '',
				amount VARCHAR(80) NOT NULL,
				chain_tx_ref VARCHAR(128) NULL UNIQUE,
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX idx_contributions_project ON contributions (project_id)`,
			`CREATE INDEX idx_contributions_wallet ON contributions (wallet_address)`,
			`CREATE INDEX idx_contributions_user ON contributions (user_id)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE users (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				wallet_address VARCHAR(64) NOT NULL UNIQUE,
				doc {{doc}} NOT NULL,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE TABLE mirror_writes (
				tx_ref VARCHAR(128) NOT NULL PRIMARY KEY,
				status VARCHAR(16) NOT NULL,
				doc {{doc}} NOT NULL,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE INDEX idx_mirror_writes_status ON mirror_writes (status, created_at)`,
		},
	},
}

// runMigrations applies every migration newer than the recorded schema
// version.
func (s *SQLDatabase) runMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return errors.Wrap(err, "creating schema_version")
	}
	var current int
	if err := s.db.Get(&current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return errors.Wrap(err, "reading schema version")
	}

	docType := "TEXT"
	if s.dbType == DBTypeMySQL {
		docType = "MEDIUMTEXT"
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return err
		}
		for _, stmt := range m.statements {
			if _, err := tx.Exec(strings.ReplaceAll(stmt, "{{doc}}", docType)); err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "applying migration v%d", m.version)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "recording migration v%d", m.version)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Infof("Applied schema migration v%d", m.version)
	}
	return nil
}
