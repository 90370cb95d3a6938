package store

import (
	"context"
	"database/sql"
	"time"

	tracklog "github.com/klaytn-labs/mempool-tracker/log"
)

var migLogger = tracklog.NewModuleLogger(tracklog.ModuleMigrator)

// migration is a single named, idempotent schema change. Modeling
// migrations as a plain ordered slice of small value objects (rather
// than a registry keyed by reflection or an interface with runtime
// type assertions) follows the design note in the original
// specification: "model them as tagged variants or small value
// objects and iterate in declaration order."
type migration struct {
	id string
	up func(tx *sql.Tx) error
}

// migrations is the ordered, load-bearing list of schema changes.
// Order matters: migration 4 depends on the column renamed away in
// migration 1.
var migrations = []migration{
	{id: "0001_init", up: migrateInit},
	{id: "update_child_txid_col_name", up: migrateRenameParentToChild},
	{id: "add_tx_not_seen_in_mempool", up: migrateAddSeenInMempool},
	{id: "add_replacement_txid", up: migrateAddReplacesColumn},
	{id: "parent_txid", up: migrateAddParentTxid},
}

func migrateInit(tx *sql.Tx) error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS migrations (
			id TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`,
		// parent_txid here is the *legacy* column name — it actually
		// held the child's txid. Migration update_child_txid_col_name
		// renames it to child_txid; migration parent_txid later
		// re-adds a column under this same name with the opposite
		// (true parent) semantic.
		`CREATE TABLE IF NOT EXISTS transactions (
			inputs_hash TEXT PRIMARY KEY,
			tx_id TEXT NOT NULL,
			tx_data TEXT NOT NULL,
			found_at INTEGER NOT NULL,
			mined_at INTEGER,
			pruned_at INTEGER,
			absolute_fee INTEGER NOT NULL DEFAULT 0,
			fee_rate INTEGER NOT NULL DEFAULT 0,
			parent_txid TEXT,
			is_cpfp_parent BOOLEAN NOT NULL DEFAULT FALSE,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tx_id ON transactions(tx_id)`,
		`CREATE TABLE IF NOT EXISTS rbf (
			inputs_hash TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			fee_total INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		// Keyed by an autoincrementing id rather than tx_id: snapshots
		// record pool-level state, not a specific transaction, and the
		// table is append-only by design (the same block tip is
		// snapshotted repeatedly as mempool size/tx_count drift between
		// blocks), so no uniqueness constraint on
		// (block_height, block_hash) is applied. See Open Question (a).
		`CREATE TABLE IF NOT EXISTS mempool_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			size INTEGER NOT NULL,
			tx_count INTEGER NOT NULL,
			block_height INTEGER NOT NULL,
			block_hash TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS mining_info (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			hash_rate_distribution TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateRenameParentToChild(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE transactions RENAME COLUMN parent_txid TO child_txid`)
	return err
}

func migrateAddSeenInMempool(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE transactions ADD COLUMN seen_in_mempool BOOLEAN NOT NULL DEFAULT TRUE`)
	return err
}

// replaces holds the txid of the replacement transaction (the one
// RecordRBF was called with), not the txid it displaced.
func migrateAddReplacesColumn(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE rbf ADD COLUMN replaces TEXT`)
	return err
}

func migrateAddParentTxid(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE transactions ADD COLUMN parent_txid TEXT`)
	return err
}

// RunMigrations applies every migration whose id is absent from the
// migrations ledger, in declaration order, each inside its own
// transaction so a crash mid-migration is survivable by re-running:
// SQLite runs DDL transactionally, so a half-applied migration is
// rolled back and will simply be retried on the next call.
func (s *Store) RunMigrations(ctx context.Context) error {
	for _, m := range migrations {
		applied, err := migrationApplied(ctx, s.db, m.id)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.up(tx); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO migrations (id, applied_at) VALUES (?, ?)`,
			m.id, time.Now().Unix(),
		); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		migLogger.Info("applied migration", "id", m.id)
	}
	return nil
}

func migrationApplied(ctx context.Context, db *sql.DB, id string) (bool, error) {
	// The migrations ledger itself might not exist yet on a completely
	// fresh database; only 0001_init can hit that case, and it always
	// creates the table first, so treat "no such table" as "not applied".
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE id = ?`, id).Scan(&count)
	if err != nil {
		if id == "0001_init" {
			return false, nil
		}
		return false, err
	}
	return count > 0, nil
}
