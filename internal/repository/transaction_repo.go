package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"evcentral/internal/models"
)

const activeTransactionIndex = "transactions_one_active_per_charger"

// TransactionRepository handles persistence of charging transactions.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, charger_id, id_tag, connector_id, meter_start, meter_stop, start_time, stop_time, status, simulated, stop_reason`

// CreateTransaction inserts tx and fills its id. A second open transaction on
// the same charger fails with ErrActiveTransaction.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	const query = `
		INSERT INTO transactions (charger_id, id_tag, connector_id, meter_start, start_time, status, simulated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		tx.ChargerID,
		tx.IDTag,
		tx.ConnectorID,
		tx.MeterStart,
		tx.StartTime,
		tx.Status,
		tx.Simulated,
	).Scan(&tx.ID)
	if isUniqueViolation(err, activeTransactionIndex) {
		return ErrActiveTransaction
	}
	return err
}

// CloseTransaction records the stop of an open transaction.
func (r *TransactionRepository) CloseTransaction(ctx context.Context, id int64, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) error {
	const query = `
		UPDATE transactions
		SET meter_stop = $2,
		    stop_time = $3,
		    status = $4,
		    stop_reason = $5
		WHERE id = $1 AND stop_time IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id, meterStop, stopTime, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AmendStop overwrites the stop of a closed transaction whose stop reason is
// still pendingReason. Anything else is ErrNotFound.
func (r *TransactionRepository) AmendStop(ctx context.Context, id int64, pendingReason string, meterStop int64, stopTime time.Time, status models.TransactionStatus, reason string) error {
	const query = `
		UPDATE transactions
		SET meter_stop = $3,
		    stop_time = $4,
		    status = $5,
		    stop_reason = $6
		WHERE id = $1 AND stop_time IS NOT NULL AND stop_reason = $2
	`
	tag, err := r.db.Exec(ctx, query, id, pendingReason, meterStop, stopTime, status, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTransaction returns the transaction or ErrNotFound.
func (r *TransactionRepository) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ActiveTransaction returns the open transaction of a charger or ErrNotFound.
func (r *TransactionRepository) ActiveTransaction(ctx context.Context, chargerID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE charger_id = $1 AND stop_time IS NULL`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, chargerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// ListTransactions returns last N transactions, newest first.
func (r *TransactionRepository) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY start_time DESC, id DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tx models.Transaction
	if err := row.Scan(
		&tx.ID,
		&tx.ChargerID,
		&tx.IDTag,
		&tx.ConnectorID,
		&tx.MeterStart,
		&tx.MeterStop,
		&tx.StartTime,
		&tx.StopTime,
		&tx.Status,
		&tx.Simulated,
		&tx.StopReason,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}
