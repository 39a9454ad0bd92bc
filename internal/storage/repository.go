// Package storage persists commitments, terms and payments in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finansheet/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// legacyUnboundedSentinel marks open-ended terms in rows imported from
// the spreadsheet era. Normalized to NULL-equivalent on read.
const legacyUnboundedSentinel = 999

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

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Run migrations
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

// Categories

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Commitments

func (r *SQLiteRepository) CreateCommitment(ctx context.Context, c core.Commitment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO commitments (id, name, category_id, flow_type, linked_commitment_id)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, nullString(c.CategoryID), string(c.Flow), nullString(c.LinkedCommitmentID))
	if err != nil {
		return fmt.Errorf("create commitment: %w", err)
	}

	for _, t := range c.Terms {
		if err := insertTerm(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Commitment saved",
		"id", c.ID, "name", c.Name, "terms", len(c.Terms))
	return nil
}

func (r *SQLiteRepository) GetCommitment(ctx context.Context, id string) (core.Commitment, error) {
	var c core.Commitment
	var categoryID, linkedID sql.NullString
	var flow string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, category_id, flow_type, linked_commitment_id
		 FROM commitments WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &categoryID, &flow, &linkedID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Commitment{}, ErrNotFound
	}
	if err != nil {
		return core.Commitment{}, fmt.Errorf("get commitment: %w", err)
	}
	c.CategoryID = categoryID.String
	c.Flow = core.FlowType(flow)
	c.LinkedCommitmentID = linkedID.String

	terms, err := r.ListTerms(ctx, id)
	if err != nil {
		return core.Commitment{}, err
	}
	c.Terms = terms
	return c, nil
}

func (r *SQLiteRepository) ListCommitments(ctx context.Context) ([]core.Commitment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, category_id, flow_type, linked_commitment_id
		 FROM commitments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	defer rows.Close()

	var out []core.Commitment
	index := make(map[string]int)
	for rows.Next() {
		var c core.Commitment
		var categoryID, linkedID sql.NullString
		var flow string
		if err := rows.Scan(&c.ID, &c.Name, &categoryID, &flow, &linkedID); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		c.CategoryID = categoryID.String
		c.Flow = core.FlowType(flow)
		c.LinkedCommitmentID = linkedID.String
		index[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attach every term in one pass instead of a query per commitment.
	termRows, err := r.db.QueryContext(ctx,
		`SELECT id, commitment_id, effective_from, effective_until, amount_original,
		        currency_original, frequency, installments_count, due_day_of_month, is_divided_amount
		 FROM terms ORDER BY commitment_id, effective_from`)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	defer termRows.Close()

	for termRows.Next() {
		t, err := scanTerm(termRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[t.CommitmentID]; ok {
			out[i].Terms = append(out[i].Terms, t)
		}
	}
	return out, termRows.Err()
}

func (r *SQLiteRepository) DeleteCommitment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM commitments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete commitment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Terms

func (r *SQLiteRepository) CreateTerm(ctx context.Context, t core.Term) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := insertTerm(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTerm(ctx context.Context, tx *sql.Tx, t core.Term) error {
	var installments any
	if n, ok := t.Installments.Finite(); ok {
		installments = n
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO terms (id, commitment_id, effective_from, effective_until, amount_original,
		                    currency_original, frequency, installments_count, due_day_of_month, is_divided_amount)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CommitmentID, t.EffectiveFrom.Format(dateLayout), nullDate(t.EffectiveUntil),
		t.AmountOriginal, string(t.CurrencyOriginal), string(t.Frequency),
		installments, t.DueDayOfMonth, boolToInt(t.IsDividedAmount))
	if err != nil {
		return fmt.Errorf("create term: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListTerms(ctx context.Context, commitmentID string) ([]core.Term, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, commitment_id, effective_from, effective_until, amount_original,
		        currency_original, frequency, installments_count, due_day_of_month, is_divided_amount
		 FROM terms WHERE commitment_id = ? ORDER BY effective_from`, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	defer rows.Close()

	var out []core.Term
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CloseTerm sets a term's end date, ending its coverage.
func (r *SQLiteRepository) CloseTerm(ctx context.Context, termID string, until time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE terms SET effective_until = ? WHERE id = ?`,
		until.Format(dateLayout), termID)
	if err != nil {
		return fmt.Errorf("close term: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ShiftTermStart moves a term's effective start and relocates the period
// of every payment attached to it by the same number of months, keeping
// payment history aligned with the rescheduled installment plan.
func (r *SQLiteRepository) ShiftTermStart(ctx context.Context, termID string, from time.Time, months int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE terms SET effective_from = ? WHERE id = ?`,
		from.Format(dateLayout), termID)
	if err != nil {
		return fmt.Errorf("shift term start: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET period_date = date(period_date, ? || ' months') WHERE term_id = ?`,
		fmt.Sprintf("%+d", months), termID)
	if err != nil {
		return fmt.Errorf("shift payment periods: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Term start shifted",
		"term_id", termID, "months", months)
	return nil
}

// Payments

// UpsertPayment inserts a payment, replacing any existing record for the
// same commitment and period.
func (r *SQLiteRepository) UpsertPayment(ctx context.Context, p core.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, commitment_id, term_id, period_date, payment_date, amount_original,
		                       currency_original, fx_rate_to_base, overridden_amount, due_date, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (commitment_id, period_date) DO UPDATE SET
		     term_id = excluded.term_id,
		     payment_date = excluded.payment_date,
		     amount_original = excluded.amount_original,
		     currency_original = excluded.currency_original,
		     fx_rate_to_base = excluded.fx_rate_to_base,
		     overridden_amount = excluded.overridden_amount,
		     due_date = excluded.due_date,
		     notes = excluded.notes,
		     sync_status = 'pending'`,
		p.ID, p.CommitmentID, p.TermID, p.Period.Start().Format(dateLayout),
		nullDate(p.PaymentDate), p.AmountOriginal, string(p.CurrencyOriginal),
		p.FxRateToBase, nullFloat(p.OverriddenAmount), nullDate(p.DueDate), p.Notes)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved",
		"id", p.ID, "commitment_id", p.CommitmentID, "period", p.Period.String())
	return nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	row := r.db.QueryRowContext(ctx, paymentSelect+` WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, ErrNotFound
	}
	return p, err
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, commitmentID string) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		paymentSelect+` WHERE commitment_id = ? ORDER BY period_date`, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListPaymentsForPeriod returns every commitment's payment row for one
// billing month, for the grid view.
func (r *SQLiteRepository) ListPaymentsForPeriod(ctx context.Context, period core.Period) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		paymentSelect+` WHERE period_date = ? ORDER BY commitment_id`,
		period.Start().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list payments for period: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (r *SQLiteRepository) DeletePayment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Sync queue

// GetPendingSyncPayments returns payments not yet exported, oldest first.
func (r *SQLiteRepository) GetPendingSyncPayments(ctx context.Context, limit int) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		paymentSelect+` WHERE sync_status = 'pending' ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// MarkSynced marks a payment as successfully exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET sync_status = 'synced' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark payment synced: %w", err)
	}
	slog.InfoContext(ctx, "Payment marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a payment as having failed export.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark payment sync error: %w", err)
	}
	slog.WarnContext(ctx, "Payment marked with sync error", "id", id)
	return nil
}

// Scan helpers

const paymentSelect = `SELECT id, commitment_id, term_id, period_date, payment_date, amount_original,
       currency_original, fx_rate_to_base, overridden_amount, due_date, notes
FROM payments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerm(row rowScanner) (core.Term, error) {
	var t core.Term
	var from string
	var until sql.NullString
	var currency, frequency string
	var installments sql.NullInt64
	var divided int
	err := row.Scan(&t.ID, &t.CommitmentID, &from, &until, &t.AmountOriginal,
		&currency, &frequency, &installments, &t.DueDayOfMonth, &divided)
	if err != nil {
		return core.Term{}, fmt.Errorf("scan term: %w", err)
	}
	if t.EffectiveFrom, err = time.Parse(dateLayout, from); err != nil {
		return core.Term{}, fmt.Errorf("parse effective_from: %w", err)
	}
	if until.Valid {
		u, err := time.Parse(dateLayout, until.String)
		if err != nil {
			return core.Term{}, fmt.Errorf("parse effective_until: %w", err)
		}
		t.EffectiveUntil = &u
	}
	t.CurrencyOriginal = core.Currency(currency)
	t.Frequency = core.Frequency(frequency)
	t.Installments = installmentsFromRow(installments)
	t.IsDividedAmount = divided != 0
	return t, nil
}

// installmentsFromRow maps NULL and the legacy 999 sentinel to an
// open-ended term.
func installmentsFromRow(n sql.NullInt64) core.Installments {
	if !n.Valid || n.Int64 >= legacyUnboundedSentinel || n.Int64 <= 0 {
		return core.UnboundedInstallments()
	}
	return core.FiniteInstallments(int(n.Int64))
}

func scanPayment(row rowScanner) (core.Payment, error) {
	var p core.Payment
	var periodDate string
	var paymentDate, dueDate sql.NullString
	var currency string
	var overridden sql.NullFloat64
	err := row.Scan(&p.ID, &p.CommitmentID, &p.TermID, &periodDate, &paymentDate,
		&p.AmountOriginal, &currency, &p.FxRateToBase, &overridden, &dueDate, &p.Notes)
	if err != nil {
		return core.Payment{}, err
	}
	start, err := time.Parse(dateLayout, periodDate)
	if err != nil {
		return core.Payment{}, fmt.Errorf("parse period_date: %w", err)
	}
	p.Period = core.PeriodOf(start)
	if paymentDate.Valid {
		d, err := time.Parse(dateLayout, paymentDate.String)
		if err != nil {
			return core.Payment{}, fmt.Errorf("parse payment_date: %w", err)
		}
		p.PaymentDate = &d
	}
	if dueDate.Valid {
		d, err := time.Parse(dateLayout, dueDate.String)
		if err != nil {
			return core.Payment{}, fmt.Errorf("parse due_date: %w", err)
		}
		p.DueDate = &d
	}
	p.CurrencyOriginal = core.Currency(currency)
	if overridden.Valid {
		p.OverriddenAmount = &overridden.Float64
	}
	return p, nil
}

func collectPayments(rows *sql.Rows) ([]core.Payment, error) {
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

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
