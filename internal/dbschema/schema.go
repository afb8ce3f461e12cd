// Package dbschema creates the four tables and the audit log imgrelay
// needs, mirroring the original's db.py SQL_CREATE_* statements and
// perkeep's pattern (see pkg/sorted/mysql) of issuing idempotent
// CREATE TABLE IF NOT EXISTS statements against a *sql.DB at boot.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"
)

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS bots (
		bot_id SMALLINT PRIMARY KEY AUTO_INCREMENT,
		bot_token VARCHAR(64) NOT NULL,
		UNIQUE KEY uniq_bot_token (bot_token)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS files (
		file_uuid BINARY(16) PRIMARY KEY,
		file_id VARCHAR(191) NOT NULL,
		msg_id INT NOT NULL,
		bot_id SMALLINT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_file_id (file_id),
		FOREIGN KEY (bot_id) REFERENCES bots(bot_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS queues (
		file_uuid BINARY(16) PRIMARY KEY,
		state SMALLINT NOT NULL DEFAULT 0,
		file_id VARCHAR(191) NULL,
		msg_id INT NULL,
		bot_id SMALLINT NULL,
		retry_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		available_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_state (state),
		FOREIGN KEY (bot_id) REFERENCES bots(bot_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS url_caches (
		file_uuid BINARY(16) PRIMARY KEY,
		file_id VARCHAR(191) NULL,
		bot_token VARCHAR(64) NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (file_uuid) REFERENCES files(file_uuid) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS gc_runs (
		run_id INT AUTO_INCREMENT PRIMARY KEY,
		run_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		cnt_unstick INT NOT NULL DEFAULT 0,
		cnt_recommit INT NOT NULL DEFAULT 0,
		cnt_retry INT NOT NULL DEFAULT 0,
		cnt_deleted INT NOT NULL DEFAULT 0
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates every table imgrelay needs, if it does not already
// exist. It is safe to call on every boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range createStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dbschema: %w", err)
		}
	}
	return nil
}
