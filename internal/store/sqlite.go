package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/sqlguard"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const transactionColumns = `id, date, amount, currency, expense_type, category, is_income,
	payment_method, money_source, description, notes,
	exchange_rate, converted_amount, converted_currency, created_at`

// breakdownColumns whitelists the columns Breakdown may group by.
var breakdownColumns = map[domain.BreakdownField]string{
	domain.ByCategory:      "category",
	domain.ByPaymentMethod: "payment_method",
	domain.ByMoneySource:   "money_source",
	domain.ByExpenseType:   "expense_type",
}

// SQLiteRepository stores transactions in a single SQLite file. One open
// connection serializes writes, so duplicate-id inserts and concurrent
// deletes resolve in commit order.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// OpenDB opens the SQLite file at path without touching its schema.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return db, nil
}

// Migrate applies every pending embedded migration.
func Migrate(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("Migrate: up: %w", err)
	}
	return nil
}

// MigrateDown reverts every applied migration.
func MigrateDown(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("MigrateDown: down: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version.
func MigrationVersion(db *sql.DB) (uint, bool, error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("MigrationVersion: %w", err)
	}
	return version, dirty, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations instance: %w", err)
	}
	return m, nil
}

// DB exposes the underlying handle for migration tooling.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection with a trivial query.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}

// Insert stores tx. ON CONFLICT DO NOTHING keeps an existing row intact.
func (r *SQLiteRepository) Insert(ctx context.Context, tx *domain.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, date, amount, currency, expense_type, category,
			is_income, payment_method, money_source, description,
			notes, exchange_rate, converted_amount, converted_currency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		tx.ID,
		tx.Date,
		tx.Amount,
		tx.Currency,
		nullString(tx.ExpenseType),
		nullString(tx.Category),
		boolToInt(tx.IsIncome),
		nullString(tx.PaymentMethod),
		nullString(tx.MoneySource),
		nullString(tx.Description),
		nullString(tx.Notes),
		nullFloat(tx.ExchangeRate),
		nullFloat(tx.ConvertedAmount),
		nullString(tx.ConvertedCurrency),
	)
	if err != nil {
		return fmt.Errorf("Insert: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Insert: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Insert: %w: %s", domain.ErrDuplicateID, tx.ID)
	}
	return nil
}

// Get loads one transaction by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get: %w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: scan: %w", err)
	}
	return tx, nil
}

// Delete removes one transaction by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("Delete: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Delete: %w: %s", domain.ErrNotFound, id)
	}
	return nil
}

// DeleteAll wipes the table once confirmed.
func (r *SQLiteRepository) DeleteAll(ctx context.Context, confirm string) (int64, error) {
	if confirm != domain.ConfirmDeleteAll {
		return 0, fmt.Errorf("DeleteAll: %w: pass confirm=%s", domain.ErrConfirmationRequired, domain.ConfirmDeleteAll)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("DeleteAll: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteAll: rows affected: %w", err)
	}
	return n, nil
}

// Stats aggregates over the whole table in one statement.
func (r *SQLiteRepository) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_income = 1 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_income = 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_income = 1 THEN amount ELSE -amount END), 0),
			COUNT(*),
			COUNT(CASE WHEN is_income = 0 THEN 1 END),
			COUNT(CASE WHEN is_income = 1 THEN 1 END)
		FROM transactions`,
	).Scan(&s.TotalIncome, &s.TotalExpenses, &s.Balance, &s.TotalTransactions, &s.ExpenseCount, &s.IncomeCount)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("Stats: scan: %w", err)
	}
	return s, nil
}

// Recent lists transactions by date, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY date DESC, created_at DESC, rowid DESC
		LIMIT ?`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("Recent: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("Recent: scan: %w", err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Recent: rows: %w", err)
	}
	return out, nil
}

// Breakdown sums expenses per distinct value of the grouping column.
func (r *SQLiteRepository) Breakdown(ctx context.Context, by domain.BreakdownField) ([]domain.BreakdownRow, error) {
	col, ok := breakdownColumns[by]
	if !ok {
		return nil, fmt.Errorf("Breakdown: %w: unknown breakdown %q", domain.ErrValidation, by)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(`+col+`, ''), SUM(amount), COUNT(*), AVG(amount)
		FROM transactions
		WHERE is_income = 0
		GROUP BY COALESCE(`+col+`, '')
		ORDER BY SUM(amount) DESC, COALESCE(`+col+`, '')`)
	if err != nil {
		return nil, fmt.Errorf("Breakdown: query: %w", err)
	}
	defer rows.Close()

	var out []domain.BreakdownRow
	for rows.Next() {
		var b domain.BreakdownRow
		if err := rows.Scan(&b.Key, &b.Total, &b.Count, &b.Average); err != nil {
			return nil, fmt.Errorf("Breakdown: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Breakdown: rows: %w", err)
	}
	return out, nil
}

// Catalog returns the distinct advisory values stored so far.
func (r *SQLiteRepository) Catalog(ctx context.Context) (domain.Catalog, error) {
	var c domain.Catalog
	targets := []struct {
		col  string
		dest *[]string
	}{
		{"category", &c.Categories},
		{"payment_method", &c.PaymentMethods},
		{"money_source", &c.MoneySources},
	}
	for _, t := range targets {
		values, err := r.distinct(ctx, t.col)
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("Catalog: %s: %w", t.col, err)
		}
		*t.dest = values
	}
	return c, nil
}

func (r *SQLiteRepository) distinct(ctx context.Context, col string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT `+col+` FROM transactions WHERE `+col+` IS NOT NULL AND `+col+` <> '' ORDER BY `+col)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Query runs a guarded read-only statement and returns every row.
func (r *SQLiteRepository) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	if err := sqlguard.CheckReadOnly(query); err != nil {
		return domain.QueryResult{}, err
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("Query: %w: %v", domain.ErrValidation, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("Query: columns: %w", err)
	}

	result := domain.QueryResult{Columns: cols, Rows: [][]interface{}{}}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.QueryResult{}, fmt.Errorf("Query: scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return domain.QueryResult{}, fmt.Errorf("Query: rows: %w", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s rowScanner) (*domain.Transaction, error) {
	var (
		tx                                        domain.Transaction
		expenseType, category, paymentMethod      sql.NullString
		moneySource, description, notes, convCurr sql.NullString
		exchangeRate, convertedAmount             sql.NullFloat64
		isIncome                                  int64
	)
	err := s.Scan(
		&tx.ID, &tx.Date, &tx.Amount, &tx.Currency, &expenseType, &category, &isIncome,
		&paymentMethod, &moneySource, &description, &notes,
		&exchangeRate, &convertedAmount, &convCurr, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.IsIncome = isIncome != 0
	tx.ExpenseType = expenseType.String
	tx.Category = category.String
	tx.PaymentMethod = paymentMethod.String
	tx.MoneySource = moneySource.String
	tx.Description = description.String
	tx.Notes = notes.String
	tx.ConvertedCurrency = convCurr.String
	if exchangeRate.Valid {
		tx.ExchangeRate = domain.Float(exchangeRate.Float64)
	}
	if convertedAmount.Valid {
		tx.ConvertedAmount = domain.Float(convertedAmount.Float64)
	}
	return &tx, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
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

var _ Repository = (*SQLiteRepository)(nil)
