package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, amount::text, currency, type, status, reference, wallet_address,
    blockchain_tx_hash, block_number, tx_hash, failure_reason, recipient_wallet_address,
    sender_wallet_address, bank_code, account_number, created_at, updated_at`

// PostgresRepository persists transaction records in PostgreSQL. The
// (reference, type) unique index is the double-processing guard.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed transaction log.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t Transaction) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(t.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions (id, user_id, amount, currency, type, status, reference,
        wallet_address, blockchain_tx_hash, block_number, tx_hash, failure_reason, recipient_wallet_address,
        sender_wallet_address, bank_code, account_number, created_at, updated_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		id, userID, t.Amount.String(), t.Currency, string(t.Type), string(t.Status), t.Reference,
		t.WalletAddress, t.BlockchainTxHash, int64(t.BlockNumber), t.TxHash, t.FailureReason, t.RecipientWalletAddress,
		t.SenderWalletAddress, t.BankCode, t.AccountNumber, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateReference
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID)
	if err != nil {
		return Transaction{}, err
	}
	out, err := collectTransactions(rows)
	if err != nil {
		return Transaction{}, err
	}
	if len(out) == 0 {
		return Transaction{}, ErrTransactionNotFound
	}
	return out[0], nil
}

func (r *PostgresRepository) FindByReference(ctx context.Context, reference string) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 ORDER BY created_at, id`, reference)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.UserID != "" {
		userID, err := uuid.Parse(f.UserID)
		if err != nil {
			return nil, nil
		}
		add("user_id = $%d", userID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Unsettled {
		where = append(where, "tx_hash = ''")
	}
	if f.AwaitingReceipt {
		where = append(where, "status = 'PENDING'", "blockchain_tx_hash <> ''")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *PostgresRepository) Complete(ctx context.Context, id string, blockNumber uint64, at time.Time) error {
	return r.transition(ctx, id, `UPDATE transactions SET status = 'COMPLETED',
        block_number = CASE WHEN $2::bigint > 0 THEN $2::bigint ELSE block_number END, updated_at = $3 WHERE id = $1`,
		int64(blockNumber), at.UTC())
}

func (r *PostgresRepository) Fail(ctx context.Context, id, reason string, at time.Time) error {
	return r.transition(ctx, id, `UPDATE transactions SET status = 'FAILED', failure_reason = $2, updated_at = $3 WHERE id = $1`,
		reason, at.UTC())
}

func (r *PostgresRepository) SetSettlementHash(ctx context.Context, id, hash string, at time.Time) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return ErrTransactionNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE transactions SET tx_hash = $2, updated_at = $3 WHERE id = $1 AND tx_hash = ''`, txID, hash, at.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadySettled
}

// transition locks the row, checks it is PENDING and applies update; update
// receives the id as $1 followed by args.
func (r *PostgresRepository) transition(ctx context.Context, id, update string, args ...any) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return ErrTransactionNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, txID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return err
	}
	if Status(status) != StatusPending {
		return ErrInvalidTransition
	}

	if _, err := tx.Exec(ctx, update, append([]any{txID}, args...)...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t            Transaction
			id, userID   uuid.UUID
			amount       string
			kind, status string
			blockNumber  int64
			created, upd time.Time
		)
		if err := rows.Scan(&id, &userID, &amount, &t.Currency, &kind, &status, &t.Reference, &t.WalletAddress,
			&t.BlockchainTxHash, &blockNumber, &t.TxHash, &t.FailureReason, &t.RecipientWalletAddress,
			&t.SenderWalletAddress, &t.BankCode, &t.AccountNumber, &created, &upd); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.UserID = userID.String()
		t.Amount = value
		t.Type = Type(kind)
		t.Status = Status(status)
		t.BlockNumber = uint64(blockNumber)
		t.CreatedAt = created.UTC()
		t.UpdatedAt = upd.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
