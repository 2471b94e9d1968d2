package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/solclient/service/snapshot"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Transaction is a transaction record persisted from the client state.
type Transaction struct {
	ID        string
	Endpoint  string
	Address   string
	Status    string
	Signature *string
	Error     *string
	UpdatedAt time.Time
	CreatedAt time.Time
}

// UpsertTransactionParams contains the parameters for writing a transaction record.
type UpsertTransactionParams struct {
	ID        string
	Endpoint  string
	Address   string
	Status    string
	Signature *string
	Error     *string
	UpdatedAt time.Time
}

// ListTransactionsParams contains pagination parameters.
type ListTransactionsParams struct {
	Limit  int32
	Offset int32
}

const transactionColumns = "id, endpoint, address, status, signature, error, updated_at, created_at"

// SaveSnapshot stores s under name, replacing any previous snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, name string, state snapshot.State) error {
	raw, err := state.Marshal()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshots (name, version, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET version = EXCLUDED.version, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		name, state.Version, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %q: %w", name, err)
	}
	return nil
}

// LoadSnapshot returns the snapshot stored under name, or
// snapshot.ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (snapshot.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM snapshots WHERE name = $1`, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return snapshot.State{}, snapshot.ErrNotFound
	}
	if err != nil {
		return snapshot.State{}, fmt.Errorf("failed to load snapshot %q: %w", name, err)
	}
	return snapshot.Unmarshal(raw)
}

// UpsertTransaction inserts a transaction record or updates the stored one.
// An update never moves a record back in time.
func (s *Store) UpsertTransaction(ctx context.Context, params UpsertTransactionParams) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, endpoint, address, status, signature, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    signature = COALESCE(EXCLUDED.signature, transactions.signature),
		    error = EXCLUDED.error,
		    updated_at = EXCLUDED.updated_at
		WHERE transactions.updated_at <= EXCLUDED.updated_at
		RETURNING `+transactionColumns,
		params.ID,
		params.Endpoint,
		params.Address,
		params.Status,
		pgtextFromStringPtr(params.Signature),
		pgtextFromStringPtr(params.Error),
		pgtype.Timestamptz{Time: params.UpdatedAt, Valid: true},
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// The stored record is newer.
		return s.GetTransaction(ctx, params.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction %s: %w", params.ID, err)
	}
	return txn, nil
}

// GetTransaction retrieves a transaction record by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// GetTransactionBySignature retrieves the transaction record carrying signature.
func (s *Store) GetTransactionBySignature(ctx context.Context, signature string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE signature = $1
		ORDER BY updated_at DESC
		LIMIT 1`, signature)
	return scanTransaction(row)
}

// ListTransactions retrieves transaction records, most recently updated first.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) ([]*Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`, params.Limit, params.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// Helper functions to convert between pgx types and domain types

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		txn       Transaction
		signature pgtype.Text
		errText   pgtype.Text
		updatedAt pgtype.Timestamptz
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&txn.ID, &txn.Endpoint, &txn.Address, &txn.Status, &signature, &errText, &updatedAt, &createdAt); err != nil {
		return nil, err
	}
	txn.Signature = stringPtrFromPgtext(signature)
	txn.Error = stringPtrFromPgtext(errText)
	txn.UpdatedAt = updatedAt.Time
	txn.CreatedAt = createdAt.Time
	return &txn, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
