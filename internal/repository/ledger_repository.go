package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/unicampus/credits-api/internal/models"
)

// LedgerRepository persists the append-only credit ledger and keeps the
// materialized balance on the student row consistent with it. The balance is
// mutated exclusively through Post; no other code path writes
// students.available_credits.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// PostEntryParams describes one balance-affecting event.
type PostEntryParams struct {
	StudentID    int64
	Kind         models.EntryKind
	Amount       decimal.Decimal
	Description  string
	EnrollmentID *int64
	IssuedBy     *int64
}

// Post applies the signed amount to the student's balance and appends the
// ledger entry carrying the resulting balance snapshot. Both writes run on
// the caller's transaction, so they commit or roll back together with the
// rest of the enclosing operation. The balance update re-reads the row in
// place rather than trusting any previously fetched value, which rules out
// lost updates between concurrent postings. Callers are expected to have
// verified sufficient balance for debits; the non-negative balance
// constraint is the database-level backstop.
func (r *LedgerRepository) Post(ctx context.Context, tx *sqlx.Tx, p PostEntryParams) (*models.CreditEntry, error) {
	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("post ledger entry: amount must be positive, got %s", p.Amount)
	}

	now := time.Now().UTC()
	delta := p.Kind.Signed(p.Amount)

	const updateQuery = `UPDATE students SET available_credits = available_credits + $2, updated_at = $3
        WHERE id = $1 RETURNING available_credits`
	var balanceAfter decimal.Decimal
	if err := tx.GetContext(ctx, &balanceAfter, updateQuery, p.StudentID, delta, now); err != nil {
		return nil, err
	}

	entry := &models.CreditEntry{
		StudentID:    p.StudentID,
		Kind:         p.Kind,
		Amount:       p.Amount,
		BalanceAfter: balanceAfter,
		Description:  p.Description,
		EnrollmentID: p.EnrollmentID,
		IssuedBy:     p.IssuedBy,
		Reference:    uuid.NewString(),
		CreatedAt:    now,
	}

	const insertQuery = `INSERT INTO credit_entries (student_id, kind, amount, balance_after, description, enrollment_id, issued_by, reference, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := tx.GetContext(ctx, &entry.ID, insertQuery,
		entry.StudentID, entry.Kind, entry.Amount, entry.BalanceAfter,
		entry.Description, entry.EnrollmentID, entry.IssuedBy, entry.Reference, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert credit entry: %w", err)
	}

	return entry, nil
}

// GetBalance returns the student's current available credits.
func (r *LedgerRepository) GetBalance(ctx context.Context, studentID int64) (decimal.Decimal, error) {
	const query = `SELECT available_credits FROM students WHERE id = $1`
	var balance decimal.Decimal
	if err := r.db.GetContext(ctx, &balance, query, studentID); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// ListByStudent returns the student's ledger entries newest first.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID int64, filter models.LedgerFilter) ([]models.CreditEntry, int, error) {
	base := `FROM credit_entries WHERE student_id = $1`
	args := []interface{}{studentID}

	if filter.Kind != "" {
		base += fmt.Sprintf(" AND kind = $%d", len(args)+1)
		args = append(args, filter.Kind)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, kind, amount, balance_after, description, enrollment_id, issued_by, reference, created_at
        %s ORDER BY id DESC LIMIT %d OFFSET %d`, base, size, offset)

	var entries []models.CreditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list credit entries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count credit entries: %w", err)
	}
	return entries, total, nil
}
