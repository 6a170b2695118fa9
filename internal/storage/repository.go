// Package storage persists commitments, terms, payments and adjustment
// records in SQLite. Every exported method is a single-row operation;
// higher layers never get a multi-row transaction, which keeps the
// repository honest about the store it stands in for.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"impegni/internal/core"

	_ "modernc.org/sqlite"
)

const dateFormat = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Cascade deletes depend on this pragma.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) GetCommitment(ctx context.Context, id int64) (core.Commitment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner, name, category, direction FROM commitments WHERE id = ?`, id)

	var c core.Commitment
	var direction string
	if err := row.Scan(&c.ID, &c.Owner, &c.Name, &c.Category, &direction); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Commitment{}, fmt.Errorf("commitment %d: %w", id, core.ErrNotFound)
		}
		return core.Commitment{}, fmt.Errorf("get commitment: %w", err)
	}
	c.Direction = core.FlowDirection(direction)
	return c, nil
}

func (r *SQLiteRepository) InsertCommitment(ctx context.Context, c core.Commitment) (core.Commitment, error) {
	if err := c.Validate(); err != nil {
		return core.Commitment{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO commitments (owner, name, category, direction) VALUES (?, ?, ?, ?)`,
		c.Owner, c.Name, c.Category, string(c.Direction))
	if err != nil {
		return core.Commitment{}, fmt.Errorf("insert commitment: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return core.Commitment{}, fmt.Errorf("commitment insert id: %w", err)
	}

	slog.InfoContext(ctx, "Commitment saved",
		"id", c.ID,
		"name", c.Name,
		"direction", c.Direction)

	return c, nil
}

// DeleteCommitment removes the commitment; terms and payments follow via
// foreign-key cascade.
func (r *SQLiteRepository) DeleteCommitment(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM commitments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete commitment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete commitment rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("commitment %d: %w", id, core.ErrNotFound)
	}
	return nil
}

const termColumns = `id, commitment_id, version, amount_original_cents, currency_original,
	amount_base_cents, frequency, effective_from, effective_until`

func scanTerm(row interface{ Scan(...any) error }) (core.Term, error) {
	var t core.Term
	var baseCents sql.NullInt64
	var frequency, from string
	var until sql.NullString

	err := row.Scan(&t.ID, &t.CommitmentID, &t.Version, &t.AmountOriginal.Cents,
		&t.CurrencyOriginal, &baseCents, &frequency, &from, &until)
	if err != nil {
		return core.Term{}, err
	}

	t.Frequency = core.Frequency(frequency)
	if baseCents.Valid {
		t.AmountBase = &core.Money{Cents: baseCents.Int64}
	}
	if t.EffectiveFrom, err = core.ParseDate(from); err != nil {
		return core.Term{}, fmt.Errorf("parse effective from: %w", err)
	}
	if until.Valid {
		d, err := core.ParseDate(until.String)
		if err != nil {
			return core.Term{}, fmt.Errorf("parse effective until: %w", err)
		}
		t.EffectiveUntil = &d
	}
	return t, nil
}

func (r *SQLiteRepository) GetTerm(ctx context.Context, id int64) (core.Term, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE id = ?`, id)
	t, err := scanTerm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Term{}, fmt.Errorf("term %d: %w", id, core.ErrNotFound)
		}
		return core.Term{}, fmt.Errorf("get term: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) TermsByCommitment(ctx context.Context, commitmentID int64) ([]core.Term, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE commitment_id = ? ORDER BY version`, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	defer rows.Close()

	var out []core.Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) InsertTerm(ctx context.Context, t core.Term) (core.Term, error) {
	var baseCents sql.NullInt64
	if t.AmountBase != nil {
		baseCents = sql.NullInt64{Int64: t.AmountBase.Cents, Valid: true}
	}
	var until sql.NullString
	if t.EffectiveUntil != nil {
		until = sql.NullString{String: t.EffectiveUntil.Format(dateFormat), Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO terms (commitment_id, version, amount_original_cents, currency_original,
			amount_base_cents, frequency, effective_from, effective_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.CommitmentID, t.Version, t.AmountOriginal.Cents, t.CurrencyOriginal,
		baseCents, string(t.Frequency), t.EffectiveFrom.Format(dateFormat), until)
	if err != nil {
		return core.Term{}, fmt.Errorf("insert term: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return core.Term{}, fmt.Errorf("term insert id: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) SetTermEffectiveUntil(ctx context.Context, id int64, until core.Date) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE terms SET effective_until = ? WHERE id = ?`, until.Format(dateFormat), id)
	if err != nil {
		return fmt.Errorf("set term effective until: %w", err)
	}
	return requireRow(res, "term", id)
}

func (r *SQLiteRepository) SetTermEffectiveFrom(ctx context.Context, id int64, from core.Date) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE terms SET effective_from = ? WHERE id = ?`, from.Format(dateFormat), id)
	if err != nil {
		return fmt.Errorf("set term effective from: %w", err)
	}
	return requireRow(res, "term", id)
}

const paymentColumns = `id, commitment_id, term_id, period_date, amount_base_cents, amount_original_cents`

func scanPayment(row interface{ Scan(...any) error }) (core.Payment, error) {
	var p core.Payment
	var period string
	var originalCents sql.NullInt64

	err := row.Scan(&p.ID, &p.CommitmentID, &p.TermID, &period, &p.AmountBase.Cents, &originalCents)
	if err != nil {
		return core.Payment{}, err
	}
	if p.PeriodDate, err = core.ParseDate(period); err != nil {
		return core.Payment{}, fmt.Errorf("parse period date: %w", err)
	}
	if originalCents.Valid {
		p.AmountOriginal = &core.Money{Cents: originalCents.Int64}
	}
	return p, nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, id int64) (core.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Payment{}, fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
		}
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) paymentsWhere(ctx context.Context, where string, arg int64) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+where+` ORDER BY period_date`, arg)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) PaymentsByCommitment(ctx context.Context, commitmentID int64) ([]core.Payment, error) {
	return r.paymentsWhere(ctx, "commitment_id = ?", commitmentID)
}

func (r *SQLiteRepository) PaymentsByTerm(ctx context.Context, termID int64) ([]core.Payment, error) {
	return r.paymentsWhere(ctx, "term_id = ?", termID)
}

func (r *SQLiteRepository) InsertPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}

	var originalCents sql.NullInt64
	if p.AmountOriginal != nil {
		originalCents = sql.NullInt64{Int64: p.AmountOriginal.Cents, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (commitment_id, term_id, period_date, amount_base_cents, amount_original_cents)
		 VALUES (?, ?, ?, ?, ?)`,
		p.CommitmentID, p.TermID, p.PeriodDate.Format(dateFormat), p.AmountBase.Cents, originalCents)
	if err != nil {
		return core.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment insert id: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved",
		"id", p.ID,
		"commitment_id", p.CommitmentID,
		"period_date", p.PeriodDate.String(),
		"amount_cents", p.AmountBase.Cents)

	return p, nil
}

// UpdatePaymentAssignment moves one payment to a new term and period
// date. The UNIQUE (commitment_id, period_date) constraint rejects a
// move into an occupied slot, which is what makes the reassignment
// engine's processing order observable here.
func (r *SQLiteRepository) UpdatePaymentAssignment(ctx context.Context, id int64, termID int64, period core.Date) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET term_id = ?, period_date = ? WHERE id = ?`,
		termID, period.Format(dateFormat), id)
	if err != nil {
		return fmt.Errorf("update payment assignment: %w", err)
	}
	return requireRow(res, "payment", id)
}

func (r *SQLiteRepository) InsertAdjustment(ctx context.Context, a core.PaymentAdjustment) (core.PaymentAdjustment, error) {
	if err := a.Validate(); err != nil {
		return core.PaymentAdjustment{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_adjustments (payment_id, original_period_date, new_period_date,
			original_term_id, new_term_id, reason, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PaymentID, a.OriginalPeriodDate.Format(dateFormat), a.NewPeriodDate.Format(dateFormat),
		a.OriginalTermID, a.NewTermID, a.Reason, a.Actor, a.CreatedAt)
	if err != nil {
		return core.PaymentAdjustment{}, fmt.Errorf("insert adjustment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return core.PaymentAdjustment{}, fmt.Errorf("adjustment insert id: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) AdjustmentsByPayment(ctx context.Context, paymentID int64) ([]core.PaymentAdjustment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payment_id, original_period_date, new_period_date, original_term_id,
			new_term_id, reason, actor, created_at
		 FROM payment_adjustments WHERE payment_id = ? ORDER BY id`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentAdjustment
	for rows.Next() {
		var a core.PaymentAdjustment
		var original, updated string
		if err := rows.Scan(&a.ID, &a.PaymentID, &original, &updated,
			&a.OriginalTermID, &a.NewTermID, &a.Reason, &a.Actor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		if a.OriginalPeriodDate, err = core.ParseDate(original); err != nil {
			return nil, fmt.Errorf("parse original period date: %w", err)
		}
		if a.NewPeriodDate, err = core.ParseDate(updated); err != nil {
			return nil, fmt.Errorf("parse new period date: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, core.ErrNotFound)
	}
	return nil
}
