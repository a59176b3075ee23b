// Package storage implements the PostgreSQL persistence layer. The state
// manager's trees are stored as replayable leaf sequences: appending the
// saved leaves (incremental trees) or re-inserting the saved keys (sorted
// trees) in order reproduces the exact node structure, so only leaves,
// roots, supply and block headers are persisted.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxe/core/internal/merkle"
	"github.com/fluxe/core/internal/state"
	"github.com/fluxe/core/pkg/types"
)

// Storage errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDBConnection = errors.New("database connection error")
	ErrCorruptState = errors.New("persisted state does not replay to its saved roots")
)

// Tree names used as persistence keys.
const (
	treeCmt     = "cmt"
	treeObj     = "obj"
	treeIngress = "ingress"
	treeExit    = "exit"
	treeNft     = "nft"
	treeCb      = "cb"
)

// PostgresStore persists protocol state and sealed block headers.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "fluxe",
		Password: "",
		Database: "fluxe",
		SSLMode:  "disable",
		MaxConns: 20,
	}
}

// NewPostgresStore connects and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg *Config) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tree_leaves (
			tree TEXT NOT NULL,
			idx BIGINT NOT NULL,
			leaf BYTEA NOT NULL,
			PRIMARY KEY (tree, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS state_roots (
			name TEXT PRIMARY KEY,
			hash BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS supply (
			asset BIGINT PRIMARY KEY,
			amount NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS block_headers (
			batch_id BIGINT PRIMARY KEY,
			prev_roots BYTEA NOT NULL,
			new_roots BYTEA NOT NULL,
			agg_proof BYTEA NOT NULL,
			ts BIGINT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveState replaces the persisted snapshot with the manager's current
// contents in one transaction.
func (s *PostgresStore) SaveState(ctx context.Context, m *state.Manager) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"tree_leaves", "state_roots", "supply"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	incremental := map[string]*merkle.IncrementalTree{
		treeCmt:     m.CmtTree,
		treeObj:     m.ObjTree,
		treeIngress: m.IngressTree,
		treeExit:    m.ExitTree,
	}
	for name, tree := range incremental {
		for i := uint64(0); i < tree.NumLeaves(); i++ {
			leaf, err := tree.GetLeaf(i)
			if err != nil {
				return err
			}
			b := leaf.Bytes()
			if _, err := tx.Exec(ctx,
				"INSERT INTO tree_leaves (tree, idx, leaf) VALUES ($1, $2, $3)",
				name, int64(i), b[:],
			); err != nil {
				return err
			}
		}
	}

	sorted := map[string]*merkle.SortedTree{
		treeNft: m.NftTree,
		treeCb:  m.CbTree,
	}
	for name, tree := range sorted {
		for i, key := range tree.KeysByIndex() {
			b := key.Bytes()
			if _, err := tx.Exec(ctx,
				"INSERT INTO tree_leaves (tree, idx, leaf) VALUES ($1, $2, $3)",
				name, int64(i), b[:],
			); err != nil {
				return err
			}
		}
	}

	roots := m.Roots()
	rootRows := map[string]types.Field{
		"cmt_root": roots.CmtRoot, "nft_root": roots.NftRoot,
		"obj_root": roots.ObjRoot, "cb_root": roots.CbRoot,
		"ingress_root": roots.IngressRoot, "exit_root": roots.ExitRoot,
		"sanctions_root": roots.SanctionsRoot, "pool_rules_root": roots.PoolRulesRoot,
	}
	for name, root := range rootRows {
		b := root.Bytes()
		if _, err := tx.Exec(ctx,
			"INSERT INTO state_roots (name, hash) VALUES ($1, $2)",
			name, b[:],
		); err != nil {
			return err
		}
	}

	for _, asset := range m.SupplyAssets() {
		amount := m.Supply(asset)
		if _, err := tx.Exec(ctx,
			"INSERT INTO supply (asset, amount) VALUES ($1, $2)",
			int64(asset), amount.Dec(),
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// LoadState rebuilds a manager by replaying the persisted leaf sequences
// and checks the result against the saved roots.
func (s *PostgresStore) LoadState(ctx context.Context, height int) (*state.Manager, error) {
	m := state.NewManager(height)

	incremental := map[string]*merkle.IncrementalTree{
		treeCmt:     m.CmtTree,
		treeObj:     m.ObjTree,
		treeIngress: m.IngressTree,
		treeExit:    m.ExitTree,
	}
	for name, tree := range incremental {
		leaves, err := s.loadLeaves(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, leaf := range leaves {
			if _, err := tree.Append(leaf); err != nil {
				return nil, err
			}
		}
	}

	sorted := map[string]*merkle.SortedTree{
		treeNft: m.NftTree,
		treeCb:  m.CbTree,
	}
	for name, tree := range sorted {
		keys, err := s.loadLeaves(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if _, err := tree.Insert(key); err != nil {
				return nil, err
			}
		}
	}

	sanctionsRoot, err := s.loadRoot(ctx, "sanctions_root")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	m.SetSanctionsRoot(sanctionsRoot)

	poolRulesRoot, err := s.loadRoot(ctx, "pool_rules_root")
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	m.SetPoolRulesRoot(poolRulesRoot)

	rows, err := s.pool.Query(ctx, "SELECT asset, amount::TEXT FROM supply")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var asset int64
		var amountStr string
		if err := rows.Scan(&asset, &amountStr); err != nil {
			return nil, err
		}
		amount := new(types.Amount)
		if err := amount.SetFromDecimal(amountStr); err != nil {
			return nil, err
		}
		m.MintSupply(types.AssetType(asset), amount)
	}

	// Replayed roots must match the saved ones.
	for name, got := range map[string]types.Field{
		"cmt_root": m.CmtTree.Root(), "nft_root": m.NftTree.Root(),
		"obj_root": m.ObjTree.Root(), "cb_root": m.CbTree.Root(),
		"ingress_root": m.IngressTree.Root(), "exit_root": m.ExitTree.Root(),
	} {
		saved, err := s.loadRoot(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !saved.Equal(&got) {
			return nil, fmt.Errorf("%w: %s", ErrCorruptState, name)
		}
	}

	return m, nil
}

// SaveBlockHeader appends a sealed header.
func (s *PostgresStore) SaveBlockHeader(ctx context.Context, h *types.BlockHeader) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO block_headers (batch_id, prev_roots, new_roots, agg_proof, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (batch_id) DO NOTHING
	`,
		int64(h.BatchID),
		packRoots(&h.PrevRoots),
		packRoots(&h.NewRoots),
		h.AggProof,
		int64(h.Timestamp),
	)
	return err
}

// GetBlockHeader fetches a header by batch id.
func (s *PostgresStore) GetBlockHeader(ctx context.Context, batchID uint64) (*types.BlockHeader, error) {
	var prev, next, aggProof []byte
	var ts int64

	err := s.pool.QueryRow(ctx,
		"SELECT prev_roots, new_roots, agg_proof, ts FROM block_headers WHERE batch_id = $1",
		int64(batchID),
	).Scan(&prev, &next, &aggProof, &ts)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	prevRoots, err := unpackRoots(prev)
	if err != nil {
		return nil, err
	}
	newRoots, err := unpackRoots(next)
	if err != nil {
		return nil, err
	}

	return &types.BlockHeader{
		PrevRoots: prevRoots,
		NewRoots:  newRoots,
		BatchID:   batchID,
		AggProof:  aggProof,
		Timestamp: uint64(ts),
	}, nil
}

func (s *PostgresStore) loadLeaves(ctx context.Context, tree string) ([]types.Field, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT leaf FROM tree_leaves WHERE tree = $1 ORDER BY idx ASC", tree)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaves []types.Field
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		leaves = append(leaves, types.FieldFromBytes(b))
	}
	return leaves, rows.Err()
}

func (s *PostgresStore) loadRoot(ctx context.Context, name string) (types.Field, error) {
	var b []byte
	err := s.pool.QueryRow(ctx,
		"SELECT hash FROM state_roots WHERE name = $1", name).Scan(&b)
	if err == pgx.ErrNoRows {
		return types.Field{}, ErrNotFound
	}
	if err != nil {
		return types.Field{}, err
	}
	return types.FieldFromBytes(b), nil
}

func packRoots(r *types.StateRoots) []byte {
	out := make([]byte, 0, 8*32)
	for _, f := range r.Slice() {
		b := f.Bytes()
		out = append(out, b[:]...)
	}
	return out
}

func unpackRoots(b []byte) (types.StateRoots, error) {
	if len(b) != 8*32 {
		return types.StateRoots{}, errors.New("malformed packed roots")
	}
	fields := make([]types.Field, 8)
	for i := 0; i < 8; i++ {
		fields[i] = types.FieldFromBytes(b[i*32 : (i+1)*32])
	}
	return types.StateRoots{
		CmtRoot: fields[0], NftRoot: fields[1], ObjRoot: fields[2], CbRoot: fields[3],
		IngressRoot: fields[4], ExitRoot: fields[5], SanctionsRoot: fields[6], PoolRulesRoot: fields[7],
	}, nil
}
