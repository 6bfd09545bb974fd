package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store on Postgres.
type Store struct {
	pool    *pgxpool.Pool
	q       dbtx
	inTx    bool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		q:       pool,
		metrics: m,
	}
}

// Open connects to databaseURL and makes sure the schema exists.
func Open(ctx context.Context, databaseURL string, m *metrics.Metrics) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := NewStore(pool, m)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the pool. It is a no-op on a transaction-scoped store.
func (s *Store) Close() error {
	if !s.inTx {
		s.pool.Close()
	}
	return nil
}

func (s *Store) observe(op, table string, start time.Time, err error) error {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, table, time.Since(start).Seconds(), err)
	}
	if err == nil {
		return nil
	}
	return &ledger.StoreError{Op: op, Err: err}
}

func (s *Store) exists(ctx context.Context, op, table, query, arg string) (bool, error) {
	start := time.Now()
	var ok bool
	err := s.q.QueryRow(ctx, query, arg).Scan(&ok)
	return ok, s.observe(op, table, start, err)
}

func (s *Store) SignatureExists(ctx context.Context, signature string) (bool, error) {
	return s.exists(ctx, "SignatureExists", "events",
		`SELECT EXISTS (SELECT 1 FROM events WHERE signature = $1)`, signature)
}

func (s *Store) AccountExists(ctx context.Context, address string) (bool, error) {
	return s.exists(ctx, "AccountExists", "token_accounts",
		`SELECT EXISTS (SELECT 1 FROM token_accounts WHERE address = $1)`, address)
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	start := time.Now()
	_, err := s.q.Exec(ctx, `
		INSERT INTO token_accounts (address, mint, owner, balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE
		SET mint = EXCLUDED.mint, owner = EXCLUDED.owner, balance = EXCLUDED.balance
	`, a.Address, a.Mint, a.Owner, a.Balance)
	return s.observe("SaveAccount", "token_accounts", start, err)
}

func (s *Store) SaveEvent(ctx context.Context, e ledger.Event) error {
	signers := e.Signers
	if signers == nil {
		signers = []string{}
	}
	start := time.Now()
	_, err := s.q.Exec(ctx, `
		INSERT INTO events (signature, type, signers, mint, source, destination, account, owner, authority, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signature) DO NOTHING
	`, e.Signature, string(e.Type), signers, e.Mint, e.Source, e.Destination, e.Account, e.Owner, e.Authority, e.Amount)
	return s.observe("SaveEvent", "events", start, err)
}

func (s *Store) SaveMint(ctx context.Context, m ledger.Mint) error {
	start := time.Now()
	_, err := s.q.Exec(ctx, `
		INSERT INTO mints (
			mint, mint_authority_option, mint_authority, supply, decimals,
			is_initialized, freeze_authority_option, freeze_authority
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (mint) DO UPDATE SET
			mint_authority_option = EXCLUDED.mint_authority_option,
			mint_authority = EXCLUDED.mint_authority,
			supply = EXCLUDED.supply,
			decimals = EXCLUDED.decimals,
			is_initialized = EXCLUDED.is_initialized,
			freeze_authority_option = EXCLUDED.freeze_authority_option,
			freeze_authority = EXCLUDED.freeze_authority
	`, m.Address, int64(m.MintAuthorityOption), m.MintAuthority, m.Supply, int16(m.Decimals),
		m.IsInitialized, int64(m.FreezeAuthorityOption), m.FreezeAuthority)
	return s.observe("SaveMint", "mints", start, err)
}

func (s *Store) UpdateBalance(ctx context.Context, address, balance string) error {
	start := time.Now()
	_, err := s.q.Exec(ctx, `UPDATE token_accounts SET balance = $2 WHERE address = $1`, address, balance)
	return s.observe("UpdateBalance", "token_accounts", start, err)
}

func (s *Store) UpdateSupply(ctx context.Context, mint, supply string) error {
	start := time.Now()
	_, err := s.q.Exec(ctx, `UPDATE mints SET supply = $2 WHERE mint = $1`, mint, supply)
	return s.observe("UpdateSupply", "mints", start, err)
}

func (s *Store) GetAccount(ctx context.Context, address string) (*ledger.Account, error) {
	start := time.Now()
	var a ledger.Account
	err := s.q.QueryRow(ctx, `
		SELECT address, mint, owner, balance FROM token_accounts WHERE address = $1
	`, address).Scan(&a.Address, &a.Mint, &a.Owner, &a.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err := s.observe("GetAccount", "token_accounts", start, err); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetMintForAccounts(ctx context.Context, addresses []string) (string, error) {
	if len(addresses) == 0 {
		return "", nil
	}
	start := time.Now()
	rows, err := s.q.Query(ctx, `SELECT DISTINCT mint FROM token_accounts WHERE address = ANY($1)`, addresses)
	if err != nil {
		return "", s.observe("GetMintForAccounts", "token_accounts", start, err)
	}
	mints, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err := s.observe("GetMintForAccounts", "token_accounts", start, err); err != nil {
		return "", err
	}
	if len(mints) != 1 {
		return "", nil
	}
	return mints[0], nil
}

func (s *Store) GetSupply(ctx context.Context, mint string) (string, error) {
	start := time.Now()
	var supply string
	err := s.q.QueryRow(ctx, `SELECT supply FROM mints WHERE mint = $1`, mint).Scan(&supply)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ledger.ErrNotFound
	}
	return supply, s.observe("GetSupply", "mints", start, err)
}

func (s *Store) GetMint(ctx context.Context, mint string) (*ledger.Mint, error) {
	start := time.Now()
	var (
		m                       ledger.Mint
		authorityOpt, freezeOpt int64
		decimals                int16
	)
	err := s.q.QueryRow(ctx, `
		SELECT mint, mint_authority_option, mint_authority, supply, decimals,
		       is_initialized, freeze_authority_option, freeze_authority
		FROM mints WHERE mint = $1
	`, mint).Scan(&m.Address, &authorityOpt, &m.MintAuthority, &m.Supply, &decimals,
		&m.IsInitialized, &freezeOpt, &m.FreezeAuthority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err := s.observe("GetMint", "mints", start, err); err != nil {
		return nil, err
	}
	m.MintAuthorityOption = uint32(authorityOpt)
	m.FreezeAuthorityOption = uint32(freezeOpt)
	m.Decimals = uint8(decimals)
	return &m, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	start := time.Now()
	rows, err := s.q.Query(ctx, `SELECT address, mint, owner, balance FROM token_accounts ORDER BY address`)
	if err != nil {
		return nil, s.observe("ListAccounts", "token_accounts", start, err)
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Account, error) {
		var a ledger.Account
		err := row.Scan(&a.Address, &a.Mint, &a.Owner, &a.Balance)
		return a, err
	})
	return accounts, s.observe("ListAccounts", "token_accounts", start, err)
}

func (s *Store) ListBalances(ctx context.Context) ([]ledger.Balance, error) {
	start := time.Now()
	rows, err := s.q.Query(ctx, `SELECT address, balance FROM token_accounts ORDER BY address`)
	if err != nil {
		return nil, s.observe("ListBalances", "token_accounts", start, err)
	}
	balances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Balance, error) {
		var b ledger.Balance
		err := row.Scan(&b.Address, &b.Balance)
		return b, err
	})
	return balances, s.observe("ListBalances", "token_accounts", start, err)
}

func (s *Store) ListEvents(ctx context.Context, f ledger.EventFilter) ([]ledger.Event, error) {
	query := `SELECT signature, type, signers, mint, source, destination, account, owner, authority, amount FROM events`
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Signature != "" {
		conds = append(conds, "signature = "+arg(f.Signature))
	}
	if f.Type != "" {
		conds = append(conds, "type = "+arg(string(f.Type)))
	}
	if f.Address != "" {
		p := arg(f.Address)
		conds = append(conds, fmt.Sprintf("(%s IN (source, destination, account, owner) OR %s = ANY(signers))", p, p))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	start := time.Now()
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, s.observe("ListEvents", "events", start, err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Event, error) {
		var (
			e   ledger.Event
			typ string
		)
		err := row.Scan(&e.Signature, &typ, &e.Signers, &e.Mint, &e.Source, &e.Destination,
			&e.Account, &e.Owner, &e.Authority, &e.Amount)
		e.Type = ledger.EventType(typ)
		return e, err
	})
	return events, s.observe("ListEvents", "events", start, err)
}

// Atomic runs fn inside a database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &ledger.StoreError{Op: "Begin", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&Store{pool: s.pool, q: tx, inTx: true, metrics: s.metrics}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &ledger.StoreError{Op: "Commit", Err: err}
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
