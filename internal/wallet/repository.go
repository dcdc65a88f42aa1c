package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrWalletExists   = errors.New("wallet exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	FindByUser(ctx context.Context, userID string) (Wallet, error)
	FindByAddress(ctx context.Context, address string) (Wallet, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, user_id, address, encrypted_key, currency, balance::text, created_at, updated_at`

// Create inserts a wallet record. Each user and each address may own one wallet.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(wallet.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, address, encrypted_key, currency, balance, created_at, updated_at)
        VALUES ($1, $2, lower($3), $4, $5, $6::numeric, $7, $8)`,
		walletID, userID, wallet.Address, wallet.EncryptedKey, wallet.Currency, wallet.Balance.String(),
		wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrWalletExists
	}
	return err
}

// FindByUser fetches the wallet owned by userID.
func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) (Wallet, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, id))
}

// FindByAddress fetches a wallet by address, case-insensitively.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = lower($1)`, address))
}

// UpdateBalance refreshes the cached balance.
func (r *PostgresRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return ErrWalletNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = $2 WHERE id = $3`, balance.String(), at.UTC(), walletID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                    Wallet
		idVal, userID        uuid.UUID
		balance              string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&idVal, &userID, &w.Address, &w.EncryptedKey, &w.Currency, &balance, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.UserID = userID.String()
	w.Balance = amount
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}
