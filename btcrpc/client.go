// Package btcrpc wraps bitcoind's JSON-RPC interface, adding the
// bitcoind-specific pieces (IBD status, mempool-loaded status, cookie
// auth) that github.com/btcsuite/btcd/rpcclient doesn't expose as
// typed methods, since that client targets btcd's own RPC surface.
package btcrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Client is a thin, cloneable wrapper: each worker dials its own
// Client against the same host/port, matching spec.md §5's
// requirement that "the upstream RPC client is also cloneable per
// worker."
type Client struct {
	rpc *rpcclient.Client
}

// Auth selects exactly one authentication method, mirroring the
// original CLI's requirement that exactly one of a cookie file or a
// user/password pair be provided.
type Auth struct {
	User       string
	Password   string
	CookieFile string
}

// resolve returns the (user, password) pair to hand to rpcclient,
// reading the cookie file if one was configured.
func (a Auth) resolve() (user, pass string, err error) {
	if a.CookieFile != "" {
		return readCookieFile(a.CookieFile)
	}
	return a.User, a.Password, nil
}

func readCookieFile(path string) (user, pass string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", "", fmt.Errorf("empty cookie file %s", path)
	}
	line := scanner.Text()
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cookie file %s", path)
	}
	return parts[0], parts[1], nil
}

// Dial connects to a bitcoind JSON-RPC endpoint at host:port.
func Dial(host string, port uint16, auth Auth) (*Client, error) {
	user, pass, err := auth.resolve()
	if err != nil {
		return nil, err
	}

	cfg := &rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", host, port),
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	rpc, err := rpcclient.New(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bitcoind rpc: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

// Shutdown releases the underlying HTTP client.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// BlockchainInfo reports whether the node is still in initial block
// download.
type BlockchainInfo struct {
	InitialBlockDownload bool  `json:"initialblockdownload"`
	Blocks               int64 `json:"blocks"`
}

func (c *Client) BlockchainInfo() (*BlockchainInfo, error) {
	raw, err := c.rpc.RawRequest("getblockchaininfo", nil)
	if err != nil {
		return nil, fmt.Errorf("getblockchaininfo: %w", err)
	}
	var info BlockchainInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode getblockchaininfo: %w", err)
	}
	return &info, nil
}

// MempoolInfo reports pool-wide size in bytes, transaction count, and
// whether the node has finished loading its mempool (relevant right
// after startup / after a crash recovery).
type MempoolInfo struct {
	Loaded bool   `json:"loaded"`
	Size   uint64 `json:"size"`
	Bytes  uint64 `json:"bytes"`
	Usage  uint64 `json:"usage"`
}

func (c *Client) MempoolInfo() (*MempoolInfo, error) {
	raw, err := c.rpc.RawRequest("getmempoolinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("getmempoolinfo: %w", err)
	}
	var info MempoolInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode getmempoolinfo: %w", err)
	}
	return &info, nil
}

// RawMempool returns the txids currently in the node's mempool.
func (c *Client) RawMempool() ([]string, error) {
	hashes, err := c.rpc.GetRawMempool()
	if err != nil {
		return nil, fmt.Errorf("getrawmempool: %w", err)
	}
	txids := make([]string, len(hashes))
	for i, h := range hashes {
		txids[i] = h.String()
	}
	return txids, nil
}

// MempoolEntry is the subset of getrawmempoolverbose's per-entry
// fields the tracker needs: the node's own first-seen time.
type MempoolEntry struct {
	Time int64
}

// RawMempoolVerbose returns every mempool entry's node-reported
// first-seen time, keyed by txid.
func (c *Client) RawMempoolVerbose() (map[string]MempoolEntry, error) {
	verbose, err := c.rpc.GetRawMempoolVerbose()
	if err != nil {
		return nil, fmt.Errorf("getrawmempoolverbose: %w", err)
	}
	out := make(map[string]MempoolEntry, len(verbose))
	for txid, entry := range verbose {
		out[txid] = MempoolEntry{Time: entry.Time}
	}
	return out, nil
}

// RawTransaction fetches and decodes a transaction by txid at
// verbosity 0.
func (c *Client) RawTransaction(txidHex string) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(txidHex)
	if err != nil {
		return nil, fmt.Errorf("parse txid %s: %w", txidHex, err)
	}
	tx, err := c.rpc.GetRawTransaction(hash)
	if err != nil {
		return nil, fmt.Errorf("getrawtransaction %s: %w", txidHex, err)
	}
	return tx.MsgTx(), nil
}

// TxStatus is the subset of getrawtransaction verbosity-1 fields the
// classifier needs: confirmation count.
type TxStatus struct {
	Confirmations int64
}

// RawTransactionStatus fetches a transaction's confirmation status at
// verbosity 1.
func (c *Client) RawTransactionStatus(txidHex string) (*TxStatus, error) {
	hash, err := chainhash.NewHashFromStr(txidHex)
	if err != nil {
		return nil, fmt.Errorf("parse txid %s: %w", txidHex, err)
	}
	result, err := c.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return nil, fmt.Errorf("getrawtransaction verbose %s: %w", txidHex, err)
	}
	return &TxStatus{Confirmations: int64(result.Confirmations)}, nil
}

// BlockCount returns the node's current block height.
func (c *Client) BlockCount() (int64, error) {
	count, err := c.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("getblockcount: %w", err)
	}
	return count, nil
}

// BlockHash returns the block hash at the given height.
func (c *Client) BlockHash(height int64) (string, error) {
	hash, err := c.rpc.GetBlockHash(height)
	if err != nil {
		return "", fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return hash.String(), nil
}

// PrevOutValue resolves the value of a specific previous output,
// satisfying feeresolver.PrevOutFetcher. The context is accepted for
// interface-compatibility with callers that thread cancellation
// through every RPC call; the underlying btcd client is not
// context-aware, so it is otherwise unused here.
func (c *Client) PrevOutValue(_ context.Context, txid chainhash.Hash, vout uint32) (btcutil.Amount, error) {
	tx, err := c.rpc.GetRawTransaction(&txid)
	if err != nil {
		return 0, fmt.Errorf("getrawtransaction %s: %w", txid, err)
	}
	msgTx := tx.MsgTx()
	if int(vout) >= len(msgTx.TxOut) {
		return 0, fmt.Errorf("vout %d out of range for tx %s", vout, txid)
	}
	return btcutil.Amount(msgTx.TxOut[vout].Value), nil
}
