// Package store implements the persistent Store and Migrator
// components: SQLite-backed transaction/RBF/snapshot/mining-info
// tables, reached through a shared *sql.DB connection pool that every
// worker holds a handle to.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/btcsuite/btcd/wire"
	"github.com/klaytn-labs/mempool-tracker/btctx"
	tracklog "github.com/klaytn-labs/mempool-tracker/log"
)

var logger = tracklog.NewModuleLogger(tracklog.ModuleStore)

// Store is a thin wrapper around a *sql.DB connection pool. *sql.DB is
// already safe for concurrent use and cheap to share, so Store itself
// is the "cloneable reference to a connection pool" the design notes
// call for — workers hold the same *Store, never a single locked
// connection.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the SQLite file at path and
// configures its connection pool. maxOpenConns should be sized to
// roughly the number of workers plus a couple of headroom connections
// for tickers/bootstrap.
func NewStore(path string, maxOpenConns int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Flush is a best-effort durability barrier, forwarding to SQLite's
// passive WAL checkpoint the way the original implementation forwards
// to rusqlite's cache_flush.
func (s *Store) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`)
	return err
}

// RemoveStaleTxs deletes every row for which both mined_at and
// pruned_at are NULL: stale "live" rows from a prior run cannot be
// trusted across an outage. Called exactly once at startup.
func (s *Store) RemoveStaleTxs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE mined_at IS NULL AND pruned_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("remove stale txs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	staleTxRemovedGauge.Update(n)
	return n, nil
}

// InsertMempoolTx is an INSERT OR REPLACE on inputs_hash. Before the
// insert, any live row whose tx_id matches one of tx's previous
// outpoints is updated to record this tx as its CPFP child.
func (s *Store) InsertMempoolTx(ctx context.Context, tx *wire.MsgTx, foundAt *time.Time, fee, feeRate uint64) error {
	inputsHash := InputsHashHex(tx.TxIn)
	txid := tx.TxHash().String()
	txData, err := btctx.Encode(tx)
	if err != nil {
		return err
	}

	found := time.Now()
	if foundAt != nil {
		found = *foundAt
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	parentTxid, err := markCPFPParents(ctx, dbtx, tx, txid)
	if err != nil {
		return fmt.Errorf("mark cpfp parents: %w", err)
	}
	var parentTxidArg interface{}
	if parentTxid != "" {
		parentTxidArg = parentTxid
	}

	if _, err := dbtx.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(inputs_hash, tx_id, tx_data, found_at, mined_at, pruned_at, absolute_fee, fee_rate, parent_txid, seen_in_mempool, version)
		VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?, TRUE,
			COALESCE((SELECT version FROM transactions WHERE inputs_hash = ?), 1))`,
		inputsHash, txid, txData, found.Unix(), fee, feeRate, parentTxidArg, inputsHash,
	); err != nil {
		return fmt.Errorf("insert mempool tx: %w", err)
	}

	return dbtx.Commit()
}

// markCPFPParents implements the CPFP-detection half of
// InsertMempoolTx's contract: for every input of tx, if the store
// already holds a live row whose tx_id equals that input's previous
// outpoint txid, mark that row as a CPFP parent of tx. It returns the
// last matched parent's txid (or "" if tx has no live parent in the
// store), so the caller can record the symmetric parent_txid on tx's
// own row.
func markCPFPParents(ctx context.Context, dbtx *sql.Tx, tx *wire.MsgTx, childTxid string) (string, error) {
	var parentTxid string
	for _, in := range tx.TxIn {
		prevTxid := in.PreviousOutPoint.Hash.String()
		res, err := dbtx.ExecContext(ctx, `
			UPDATE transactions
			SET child_txid = ?, is_cpfp_parent = TRUE
			WHERE tx_id = ? AND mined_at IS NULL AND pruned_at IS NULL`,
			childTxid, prevTxid,
		)
		if err != nil {
			return "", err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			logger.Info("marked cpfp parent", "parentTxid", prevTxid, "childTxid", childTxid)
			parentTxid = prevTxid
		}
	}
	return parentTxid, nil
}

// TxExists looks up a transaction by its inputs-hash.
func (s *Store) TxExists(ctx context.Context, tx *wire.MsgTx) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE inputs_hash = ?`,
		InputsHashHex(tx.TxIn),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("tx exists: %w", err)
	}
	return count > 0, nil
}

// RecordMinedTx clears input witnesses, updates mined_at, and records
// whether the tx had ever been seen in the mempool. If no row exists
// for its inputs-hash, a new row is written noting it was never seen
// in the mempool (delivered straight by a block).
func (s *Store) RecordMinedTx(ctx context.Context, tx *wire.MsgTx) error {
	inputsHash := InputsHashHex(tx.TxIn)
	txid := tx.TxHash().String()

	seenBefore, err := s.TxExists(ctx, tx)
	if err != nil {
		return err
	}

	pruned := PruneWitnesses(tx)
	txData, err := btctx.Encode(pruned)
	if err != nil {
		return err
	}
	minedAt := time.Now().Unix()

	if seenBefore {
		_, err = s.db.ExecContext(ctx, `
			UPDATE transactions
			SET tx_id = ?, tx_data = ?, mined_at = ?, pruned_at = NULL, seen_in_mempool = TRUE
			WHERE inputs_hash = ?`,
			txid, txData, minedAt, inputsHash,
		)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO transactions
				(inputs_hash, tx_id, tx_data, found_at, mined_at, absolute_fee, fee_rate, seen_in_mempool, version)
			VALUES (?, ?, ?, ?, ?, 0, 0, FALSE, 1)`,
			inputsHash, txid, txData, minedAt, minedAt,
		)
		if err == nil {
			logger.Info("recorded mined tx not seen in mempool", "txid", txid)
		}
	}
	if err != nil {
		return fmt.Errorf("record mined tx: %w", err)
	}
	return nil
}

// RecordCoinbaseTx writes the special coinbase row shape: inputs_hash
// equal to the txid (coinbases have no spendable inputs to hash),
// found_at equal to mined_at, zero fee and fee rate. Silently refuses
// if tx is not actually a coinbase.
func (s *Store) RecordCoinbaseTx(ctx context.Context, tx *wire.MsgTx) error {
	if !btctx.IsCoinbase(tx) {
		return nil
	}
	txid := tx.TxHash().String()
	txData, err := btctx.Encode(tx)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transactions
			(inputs_hash, tx_id, tx_data, found_at, mined_at, absolute_fee, fee_rate, seen_in_mempool, version)
		VALUES (?, ?, ?, ?, ?, 0, 0, FALSE, 1)`,
		txid, txid, txData, now, now,
	)
	if err != nil {
		return fmt.Errorf("record coinbase tx: %w", err)
	}
	return nil
}

// RecordRBF records one replacement round for the given inputs-hash.
// If no row exists for that inputs-hash, this is a documented no-op:
// the replaced transaction was never in our database, most likely
// because the tracker started after it entered the mempool.
func (s *Store) RecordRBF(ctx context.Context, tx *wire.MsgTx, feeTotal, feeRate uint64) error {
	inputsHash := InputsHashHex(tx.TxIn)

	exists, err := s.TxExists(ctx, tx)
	if err != nil {
		return err
	}
	if !exists {
		logger.Warn("replaced tx not in our DB", "inputsHash", inputsHash, "replacementTxid", tx.TxHash().String())
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rbf (inputs_hash, created_at, fee_total, replaces, version)
		VALUES (?, ?, ?, ?,
			COALESCE((SELECT version FROM rbf WHERE inputs_hash = ?), 1))`,
		inputsHash, time.Now().Unix(), feeTotal, tx.TxHash().String(), inputsHash,
	)
	if err != nil {
		return fmt.Errorf("record rbf: %w", err)
	}
	rbfEventCounter.Inc(1)
	logger.Info("recorded rbf replacement", "inputsHash", inputsHash, "feeTotal", feeTotal, "feeRate", feeRate)
	return nil
}

// UpdateTxidByInputsHash updates the transaction row's tx_id to tx's
// txid for the row keyed by tx's inputs-hash. Called after RecordRBF
// so the row's identity (inputs_hash) stays fixed across replacement
// rounds while tx_id tracks the latest txid.
func (s *Store) UpdateTxidByInputsHash(ctx context.Context, tx *wire.MsgTx) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET tx_id = ? WHERE inputs_hash = ?`,
		tx.TxHash().String(), InputsHashHex(tx.TxIn),
	)
	if err != nil {
		return fmt.Errorf("update txid by inputs hash: %w", err)
	}
	return nil
}

// TxidsInMempool returns every live row's tx_id.
func (s *Store) TxidsInMempool(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_id FROM transactions WHERE mined_at IS NULL AND pruned_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("txids in mempool: %w", err)
	}
	defer rows.Close()

	var txids []string
	for rows.Next() {
		var txid string
		if err := rows.Scan(&txid); err != nil {
			return nil, err
		}
		txids = append(txids, txid)
	}
	liveTxCountGauge.Update(int64(len(txids)))
	return txids, rows.Err()
}

// TxidsOfTxsNotInList returns the set of our live txids that do not
// appear in upstreamTxids. An empty upstreamTxids list returns an
// empty result rather than pruning everything — an empty upstream
// list may be a transient RPC/node condition.
func (s *Store) TxidsOfTxsNotInList(ctx context.Context, upstreamTxids []string) ([]string, error) {
	if len(upstreamTxids) == 0 {
		return []string{}, nil
	}

	ours, err := s.TxidsInMempool(ctx)
	if err != nil {
		return nil, err
	}

	upstreamSet := make(map[string]struct{}, len(upstreamTxids))
	for _, txid := range upstreamTxids {
		upstreamSet[txid] = struct{}{}
	}

	missing := make([]string, 0)
	for _, txid := range ours {
		if _, ok := upstreamSet[txid]; !ok {
			missing = append(missing, txid)
		}
	}
	return missing, nil
}

// RecordPrunedTxs sets pruned_at = now on every row matching one of
// the given txids that is still live.
func (s *Store) RecordPrunedTxs(ctx context.Context, txids []string) error {
	if len(txids) == 0 {
		return nil
	}

	now := time.Now().Unix()
	const chunkSize = 400
	for start := 0; start < len(txids); start += chunkSize {
		end := start + chunkSize
		if end > len(txids) {
			end = len(txids)
		}
		chunk := txids[start:end]

		placeholders := make([]byte, 0, 2*len(chunk))
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, now)
		for i, txid := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, txid)
		}

		query := fmt.Sprintf(`
			UPDATE transactions
			SET pruned_at = ?
			WHERE tx_id IN (%s) AND mined_at IS NULL AND pruned_at IS NULL`,
			string(placeholders))

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("record pruned txs: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			prunedTxCounter.Inc(n)
		}
	}
	return nil
}

// RecordMempoolState appends a pool-wide snapshot row.
func (s *Store) RecordMempoolState(ctx context.Context, size, txCount uint64, blockHeight int64, blockHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mempool_snapshots (created_at, size, tx_count, block_height, block_hash)
		VALUES (?, ?, ?, ?, ?)`,
		time.Now().Unix(), size, txCount, blockHeight, blockHash,
	)
	if err != nil {
		return fmt.Errorf("record mempool state: %w", err)
	}
	mempoolSizeGauge.Update(int64(size))
	mempoolTxCountGauge.Update(int64(txCount))
	return nil
}

// RecordMiningInfo appends an opaque mining-info document.
func (s *Store) RecordMiningInfo(ctx context.Context, doc json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mining_info (created_at, hash_rate_distribution)
		VALUES (?, ?)`,
		time.Now().Unix(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("record mining info: %w", err)
	}
	return nil
}

