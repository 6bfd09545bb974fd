// Package sqlite is the embedded ledger backend: a single SQLite file in
// WAL mode with one writer connection.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brojonat/mintledger/service/ledger"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - events, mints, token_accounts
const currentSchemaVersion = 1

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.Store on SQLite.
type Store struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger *slog.Logger
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Debug("opened sqlite ledger", "path", path)
	return &Store{db: db, q: db, logger: logger}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database. It is a no-op on a transaction-scoped store.
func (s *Store) Close() error {
	if s.inTx || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ledger.StoreError{Op: op, Err: err}
}

func (s *Store) exists(ctx context.Context, op, query, arg string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(op, err)
	}
	return true, nil
}

func (s *Store) SignatureExists(ctx context.Context, signature string) (bool, error) {
	return s.exists(ctx, "SignatureExists", `SELECT 1 FROM events WHERE signature = ?`, signature)
}

func (s *Store) AccountExists(ctx context.Context, address string) (bool, error) {
	return s.exists(ctx, "AccountExists", `SELECT 1 FROM token_accounts WHERE address = ?`, address)
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO token_accounts (address, mint, owner, balance)
		VALUES (?, ?, ?, ?)
	`, a.Address, a.Mint, a.Owner, a.Balance)
	return storeErr("SaveAccount", err)
}

func (s *Store) SaveEvent(ctx context.Context, e ledger.Event) error {
	signers, err := json.Marshal(nonNil(e.Signers))
	if err != nil {
		return storeErr("SaveEvent", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO events (signature, type, signers, mint, source, destination, account, owner, authority, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO NOTHING
	`, e.Signature, string(e.Type), string(signers), e.Mint, e.Source, e.Destination, e.Account, e.Owner, e.Authority, e.Amount)
	return storeErr("SaveEvent", err)
}

func (s *Store) SaveMint(ctx context.Context, m ledger.Mint) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO mints (
			mint, mint_authority_option, mint_authority, supply, decimals,
			is_initialized, freeze_authority_option, freeze_authority
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Address, m.MintAuthorityOption, m.MintAuthority, m.Supply, m.Decimals,
		m.IsInitialized, m.FreezeAuthorityOption, m.FreezeAuthority)
	return storeErr("SaveMint", err)
}

func (s *Store) UpdateBalance(ctx context.Context, address, balance string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE token_accounts SET balance = ? WHERE address = ?`, balance, address)
	return storeErr("UpdateBalance", err)
}

func (s *Store) UpdateSupply(ctx context.Context, mint, supply string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE mints SET supply = ? WHERE mint = ?`, supply, mint)
	return storeErr("UpdateSupply", err)
}

func (s *Store) GetAccount(ctx context.Context, address string) (*ledger.Account, error) {
	var a ledger.Account
	err := s.q.QueryRowContext(ctx, `
		SELECT address, mint, owner, balance FROM token_accounts WHERE address = ?
	`, address).Scan(&a.Address, &a.Mint, &a.Owner, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("GetAccount", err)
	}
	return &a, nil
}

func (s *Store) GetMintForAccounts(ctx context.Context, addresses []string) (string, error) {
	if len(addresses) == 0 {
		return "", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(addresses)), ",")
	args := make([]any, len(addresses))
	for i, a := range addresses {
		args[i] = a
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT mint FROM token_accounts WHERE address IN (`+placeholders+`)`, args...)
	if err != nil {
		return "", storeErr("GetMintForAccounts", err)
	}
	defer rows.Close()

	var mints []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", storeErr("GetMintForAccounts", err)
		}
		mints = append(mints, m)
	}
	if err := rows.Err(); err != nil {
		return "", storeErr("GetMintForAccounts", err)
	}
	if len(mints) != 1 {
		return "", nil
	}
	return mints[0], nil
}

func (s *Store) GetSupply(ctx context.Context, mint string) (string, error) {
	var supply string
	err := s.q.QueryRowContext(ctx, `SELECT supply FROM mints WHERE mint = ?`, mint).Scan(&supply)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrNotFound
	}
	if err != nil {
		return "", storeErr("GetSupply", err)
	}
	return supply, nil
}

func (s *Store) GetMint(ctx context.Context, mint string) (*ledger.Mint, error) {
	var m ledger.Mint
	err := s.q.QueryRowContext(ctx, `
		SELECT mint, mint_authority_option, mint_authority, supply, decimals,
		       is_initialized, freeze_authority_option, freeze_authority
		FROM mints WHERE mint = ?
	`, mint).Scan(&m.Address, &m.MintAuthorityOption, &m.MintAuthority, &m.Supply, &m.Decimals,
		&m.IsInitialized, &m.FreezeAuthorityOption, &m.FreezeAuthority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("GetMint", err)
	}
	return &m, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT address, mint, owner, balance FROM token_accounts ORDER BY address`)
	if err != nil {
		return nil, storeErr("ListAccounts", err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.Address, &a.Mint, &a.Owner, &a.Balance); err != nil {
			return nil, storeErr("ListAccounts", err)
		}
		out = append(out, a)
	}
	return out, storeErr("ListAccounts", rows.Err())
}

func (s *Store) ListBalances(ctx context.Context) ([]ledger.Balance, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT address, balance FROM token_accounts ORDER BY address`)
	if err != nil {
		return nil, storeErr("ListBalances", err)
	}
	defer rows.Close()

	var out []ledger.Balance
	for rows.Next() {
		var b ledger.Balance
		if err := rows.Scan(&b.Address, &b.Balance); err != nil {
			return nil, storeErr("ListBalances", err)
		}
		out = append(out, b)
	}
	return out, storeErr("ListBalances", rows.Err())
}

func (s *Store) ListEvents(ctx context.Context, f ledger.EventFilter) ([]ledger.Event, error) {
	query := `SELECT signature, type, signers, mint, source, destination, account, owner, authority, amount FROM events`
	var (
		conds []string
		args  []any
	)
	if f.Signature != "" {
		conds = append(conds, "signature = ?")
		args = append(args, f.Signature)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Address != "" {
		conds = append(conds, `(? IN (source, destination, account, owner)
			OR EXISTS (SELECT 1 FROM json_each(events.signers) WHERE json_each.value = ?))`)
		args = append(args, f.Address, f.Address)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("ListEvents", err)
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			e       ledger.Event
			typ     string
			signers string
		)
		if err := rows.Scan(&e.Signature, &typ, &signers, &e.Mint, &e.Source, &e.Destination,
			&e.Account, &e.Owner, &e.Authority, &e.Amount); err != nil {
			return nil, storeErr("ListEvents", err)
		}
		e.Type = ledger.EventType(typ)
		if err := json.Unmarshal([]byte(signers), &e.Signers); err != nil {
			return nil, storeErr("ListEvents", fmt.Errorf("decode signers of %s: %w", e.Signature, err))
		}
		out = append(out, e)
	}
	return out, storeErr("ListEvents", rows.Err())
}

// Atomic runs fn inside a database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("Begin", err)
	}
	if err := fn(&Store{db: s.db, q: tx, inTx: true, logger: s.logger}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.ErrorContext(ctx, "rollback failed", "error", rbErr)
		}
		return err
	}
	return storeErr("Commit", tx.Commit())
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ ledger.Store = (*Store)(nil)
