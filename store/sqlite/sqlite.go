/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Store using SQLite. The PostgreSQL store in
  store/postgres follows the same table layout; only dialect details differ.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on expense_movements
  - No DELETE statements on expense_movements (except Reset, dev only)
  - Corrections via opposite movements only

KEY TABLES:
  expense_movements:  Immutable ledger of expenses
  month_closures:     One row per closed (tenant, month)
  expense_categories: Labels; partial unique index on active names
  salary_rates:       Effective-dated hourly rates (seq = insertion order)
  hours_worked:       One row per (employee, month)

INDEXES:
  - idx_month_closures_key: UNIQUE closure key. A concurrent closure that
    loses the race fails here and the whole transaction rolls back.
  - idx_categories_active_name: One active category per name and tenant
  - idx_movements_tenant_date: Report and closure range scans (hot path)

CONCURRENCY:
  The pool is capped at one connection (WAL mode, busy timeout), so SQLite
  serializes writers itself. Inside WithTx only the *sql.Tx may be used;
  touching s.db there would wait forever for the connection the tx holds.
  Rows are always closed before the next query for the same reason.

MIGRATION:
  Schema is applied on New() by golang-migrate from the embedded
  migrations/ directory.

USAGE:
  store, err := sqlite.New("./data/backoffice.db")
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Timestamps are stored with a fixed-width layout so that string
// comparison in SQL matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements generic.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ generic.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the embedded migrations. The migrate instance is not
// closed: its sqlite3 driver would close the shared *sql.DB.
func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) ListTenants(ctx context.Context) ([]generic.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []generic.Tenant
	for rows.Next() {
		var t generic.Tenant
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) GetTenant(ctx context.Context, id generic.TenantID) (*generic.Tenant, error) {
	var t generic.Tenant
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM tenants WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListBranches(ctx context.Context, tenantID generic.TenantID) ([]generic.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, seq FROM branches WHERE tenant_id = ? ORDER BY seq`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	var branches []generic.Branch
	for rows.Next() {
		var b generic.Branch
		if err := rows.Scan(&b.ID, &b.TenantID, &b.Name, &b.Seq); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

const employeeColumns = `id, tenant_id, name, branch_id, is_owner`

func (s *Store) ListEmployees(ctx context.Context, tenantID generic.TenantID) ([]generic.Employee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []generic.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (generic.Employee, error) {
	var (
		e        generic.Employee
		branchID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.Name, &branchID, &e.IsOwner); err != nil {
		return e, err
	}
	e.BranchID = generic.BranchID(branchID.String)
	return e, nil
}

// =============================================================================
// SALES & INVENTORY
// =============================================================================

func (s *Store) ListSales(ctx context.Context, tenantID generic.TenantID, from, to time.Time) ([]generic.Sale, error) {
	where := `s.tenant_id = ? AND s.at >= ?`
	args := []any{tenantID, formatTimestamp(from)}
	if !to.IsZero() {
		where += ` AND s.at <= ?`
		args = append(args, formatTimestamp(to))
	}

	sales, index, err := s.querySales(ctx, where, args)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	if err := s.attachSaleLines(ctx, where, args, sales, index); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) querySales(ctx context.Context, where string, args []any) ([]generic.Sale, map[generic.SaleID]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.tenant_id, s.branch_id, s.total, s.at FROM sales s WHERE `+where+` ORDER BY s.at, s.id`,
		args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []generic.Sale
	index := make(map[generic.SaleID]int)
	for rows.Next() {
		var (
			sale     generic.Sale
			branchID sql.NullString
			at       string
		)
		if err := rows.Scan(&sale.ID, &sale.TenantID, &branchID, &sale.Total, &at); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sale.BranchID = generic.BranchID(branchID.String)
		if sale.At, err = parseTimestamp(at); err != nil {
			return nil, nil, fmt.Errorf("sale %s: %w", sale.ID, err)
		}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	return sales, index, rows.Err()
}

func (s *Store) attachSaleLines(ctx context.Context, where string, args []any, sales []generic.Sale, index map[generic.SaleID]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.sale_id, l.product_id, l.quantity, l.unit_price
		FROM sale_lines l JOIN sales s ON s.id = l.sale_id
		WHERE `+where+`
		ORDER BY l.sale_id, l.line_no`, args...)
	if err != nil {
		return fmt.Errorf("failed to query sale lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID generic.SaleID
			line   generic.SaleLine
		)
		if err := rows.Scan(&saleID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan sale line: %w", err)
		}
		if i, ok := index[saleID]; ok {
			sales[i].Lines = append(sales[i].Lines, line)
		}
	}
	return rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, tenantID generic.TenantID) ([]generic.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, cost, quantity, active FROM products WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []generic.Product
	for rows.Next() {
		var p generic.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Cost, &p.Quantity, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// CATEGORIES
// =============================================================================

const categoryColumns = `id, tenant_id, name, is_default, active`

func (s *Store) GetCategory(ctx context.Context, id generic.CategoryID) (*generic.ExpenseCategory, error) {
	return s.getCategory(ctx, `SELECT `+categoryColumns+` FROM expense_categories WHERE id = ?`, id)
}

func (s *Store) FindCategoryByName(ctx context.Context, tenantID generic.TenantID, name string) (*generic.ExpenseCategory, error) {
	return s.getCategory(ctx, `
		SELECT `+categoryColumns+` FROM expense_categories
		WHERE tenant_id = ? AND lower(name) = lower(?) AND active = 1`, tenantID, name)
}

func (s *Store) getCategory(ctx context.Context, query string, args ...any) (*generic.ExpenseCategory, error) {
	var c generic.ExpenseCategory
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.TenantID, &c.Name, &c.IsDefault, &c.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, tenantID generic.TenantID, includeInactive bool) ([]generic.ExpenseCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM expense_categories WHERE tenant_id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []generic.ExpenseCategory
	for rows.Next() {
		var c generic.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.IsDefault, &c.Active); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) SaveCategory(ctx context.Context, c generic.ExpenseCategory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, tenant_id, name, is_default, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_default = excluded.is_default, active = excluded.active
	`, c.ID, c.TenantID, c.Name, c.IsDefault, c.Active)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateCategory
		}
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *Store) DeactivateCategory(ctx context.Context, id generic.CategoryID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE expense_categories SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "category", ID: string(id), Err: generic.ErrCategoryNotFound}
	}
	return nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

const templateColumns = `id, tenant_id, category_id, amount, recurring, effective_from, description`

func (s *Store) ListTemplates(ctx context.Context, tenantID generic.TenantID) ([]generic.ExpenseTemplate, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM expense_templates
		WHERE tenant_id = ? ORDER BY effective_from, id`, tenantID)
}

func (s *Store) ListTemplatesApplying(ctx context.Context, tenantID generic.TenantID, monthEnd generic.Date) ([]generic.ExpenseTemplate, error) {
	return s.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM expense_templates
		WHERE tenant_id = ? AND effective_from <= ?
		  AND (recurring = 1 OR substr(effective_from, 1, 7) = ?)
		ORDER BY effective_from, id`,
		tenantID, monthEnd.String(), monthEnd.YearMonth().String())
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]generic.ExpenseTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []generic.ExpenseTemplate
	for rows.Next() {
		var (
			t    generic.ExpenseTemplate
			from string
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CategoryID, &t.Amount, &t.Recurring, &from, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if t.EffectiveFrom, err = generic.ParseDate(from); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) SaveTemplate(ctx context.Context, t generic.ExpenseTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO expense_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TenantID, t.CategoryID, t.Amount.String(), t.Recurring, t.EffectiveFrom.String(), t.Description)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// =============================================================================
// SALARY RATES & HOURS
// =============================================================================

func (s *Store) LatestRate(ctx context.Context, employeeID generic.EmployeeID, cutoff generic.Date) (*generic.SalaryRate, error) {
	var (
		r    generic.SalaryRate
		from string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, hourly_rate, effective_from, seq FROM salary_rates
		WHERE employee_id = ? AND effective_from <= ?
		ORDER BY effective_from DESC, seq DESC
		LIMIT 1
	`, employeeID, cutoff.String()).Scan(&r.ID, &r.EmployeeID, &r.HourlyRate, &from, &r.Seq)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.EffectiveFrom, err = generic.ParseDate(from); err != nil {
		return nil, fmt.Errorf("rate %s: %w", r.ID, err)
	}
	return &r, nil
}

func (s *Store) AddRate(ctx context.Context, r generic.SalaryRate) (generic.SalaryRate, error) {
	if r.ID == "" {
		r.ID = generic.RateID(generic.NewID())
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO salary_rates (id, employee_id, hourly_rate, effective_from)
		VALUES (?, ?, ?, ?)
	`, r.ID, r.EmployeeID, r.HourlyRate.String(), r.EffectiveFrom.String())
	if err != nil {
		return generic.SalaryRate{}, fmt.Errorf("failed to add rate: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return generic.SalaryRate{}, err
	}
	r.Seq = seq
	return r, nil
}

func (s *Store) ListRates(ctx context.Context, employeeID generic.EmployeeID) ([]generic.SalaryRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, hourly_rate, effective_from, seq FROM salary_rates
		WHERE employee_id = ? ORDER BY effective_from, seq
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []generic.SalaryRate
	for rows.Next() {
		var (
			r    generic.SalaryRate
			from string
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.HourlyRate, &from, &r.Seq); err != nil {
			return nil, err
		}
		if r.EffectiveFrom, err = generic.ParseDate(from); err != nil {
			return nil, fmt.Errorf("rate %s: %w", r.ID, err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func (s *Store) GetHours(ctx context.Context, employeeID generic.EmployeeID, ym generic.YearMonth) (*generic.HoursWorked, error) {
	var hours decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT hours FROM hours_worked WHERE employee_id = ? AND period = ?`,
		employeeID, ym.String()).Scan(&hours)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &generic.HoursWorked{EmployeeID: employeeID, Period: ym, Hours: hours}, nil
}

func (s *Store) ListHours(ctx context.Context, employeeID generic.EmployeeID, from, to generic.YearMonth) ([]generic.HoursWorked, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, hours FROM hours_worked
		WHERE employee_id = ? AND period >= ? AND period <= ?
		ORDER BY period
	`, employeeID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query hours: %w", err)
	}
	defer rows.Close()

	var result []generic.HoursWorked
	for rows.Next() {
		var (
			period string
			hours  decimal.Decimal
		)
		if err := rows.Scan(&period, &hours); err != nil {
			return nil, err
		}
		ym, err := generic.ParseYearMonth(period)
		if err != nil {
			return nil, err
		}
		result = append(result, generic.HoursWorked{EmployeeID: employeeID, Period: ym, Hours: hours})
	}
	return result, rows.Err()
}

func (s *Store) UpsertHours(ctx context.Context, h generic.HoursWorked) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hours_worked (employee_id, period, hours) VALUES (?, ?, ?)
		ON CONFLICT(employee_id, period) DO UPDATE SET hours = excluded.hours
	`, h.EmployeeID, h.Period.String(), h.Hours.String())
	if err != nil {
		return fmt.Errorf("failed to upsert hours: %w", err)
	}
	return nil
}

// =============================================================================
// MOVEMENT STORE (append-only)
// =============================================================================

func (s *Store) ListMovements(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) ([]generic.ExpenseMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, category_id, employee_id, branch_id, amount, date, description, source, created_at
		FROM expense_movements
		WHERE tenant_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, rowid ASC
	`, tenantID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []generic.ExpenseMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (generic.ExpenseMovement, error) {
	var (
		m                    generic.ExpenseMovement
		employeeID, branchID sql.NullString
		date, createdAt      string
	)
	err := rows.Scan(&m.ID, &m.TenantID, &m.CategoryID, &employeeID, &branchID,
		&m.Amount, &date, &m.Description, &m.Source, &createdAt)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}
	m.EmployeeID = generic.EmployeeID(employeeID.String)
	m.BranchID = generic.BranchID(branchID.String)
	if m.Date, err = generic.ParseDate(date); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	if m.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return m, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	return m, nil
}

// AppendMovement adds a movement to the ledger.
func (s *Store) AppendMovement(ctx context.Context, m generic.ExpenseMovement) error {
	return appendMovement(ctx, s.db, m)
}

func appendMovement(ctx context.Context, db execer, m generic.ExpenseMovement) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO expense_movements
		(id, tenant_id, category_id, employee_id, branch_id, amount, date, description, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		m.TenantID,
		m.CategoryID,
		nullString(string(m.EmployeeID)),
		nullString(string(m.BranchID)),
		m.Amount.String(),
		m.Date.String(),
		m.Description,
		m.Source,
		formatTimestamp(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

// =============================================================================
// CLOSURE STORE
// =============================================================================

const closureColumns = `closure_key, tenant_id, period, closed_at, movements`

func (s *Store) GetClosure(ctx context.Context, key string) (*generic.MonthClosure, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+closureColumns+` FROM month_closures WHERE closure_key = ?`, key)
	c, err := scanClosure(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClosures(ctx context.Context, tenantID generic.TenantID) ([]generic.MonthClosure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+closureColumns+` FROM month_closures WHERE tenant_id = ? ORDER BY period`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query closures: %w", err)
	}
	defer rows.Close()

	var closures []generic.MonthClosure
	for rows.Next() {
		c, err := scanClosure(rows)
		if err != nil {
			return nil, err
		}
		closures = append(closures, c)
	}
	return closures, rows.Err()
}

func scanClosure(row scanner) (generic.MonthClosure, error) {
	var (
		c                generic.MonthClosure
		period, closedAt string
	)
	if err := row.Scan(&c.Key, &c.TenantID, &period, &closedAt, &c.Movements); err != nil {
		return c, err
	}
	ym, err := generic.ParseYearMonth(period)
	if err != nil {
		return c, err
	}
	c.Period = ym
	if c.ClosedAt, err = parseTimestamp(closedAt); err != nil {
		return c, fmt.Errorf("closure %s: %w", c.Key, err)
	}
	return c, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertClosure(ctx context.Context, c generic.MonthClosure) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO month_closures (`+closureColumns+`) VALUES (?, ?, ?, ?, ?)
	`, c.Key, c.TenantID, c.Period.String(), formatTimestamp(c.ClosedAt), c.Movements)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrMonthAlreadyClosed
		}
		return fmt.Errorf("failed to insert closure: %w", err)
	}
	return nil
}

func (ts *txStore) AppendMovements(ctx context.Context, movements []generic.ExpenseMovement) error {
	for _, m := range movements {
		if err := appendMovement(ctx, ts.tx, m); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// FACT WRITERS (seed data)
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, t generic.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, t.ID, t.Name)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

// SaveBranch keeps the original seq when a branch is saved twice.
func (s *Store) SaveBranch(ctx context.Context, b generic.Branch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, tenant_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, tenant_id = excluded.tenant_id
	`, b.ID, b.TenantID, b.Name)
	if err != nil {
		return fmt.Errorf("failed to save branch: %w", err)
	}
	return nil
}

func (s *Store) SaveEmployee(ctx context.Context, e generic.Employee) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO employees (`+employeeColumns+`) VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.TenantID, e.Name, nullString(string(e.BranchID)), e.IsOwner)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) SaveProduct(ctx context.Context, p generic.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO products (id, tenant_id, name, cost, quantity, active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.TenantID, p.Name, p.Cost.String(), p.Quantity.String(), p.Active)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// SaveSale writes the sale header and replaces its lines in one transaction.
func (s *Store) SaveSale(ctx context.Context, sale generic.Sale) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, tenant_id, branch_id, total, at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tenant_id = excluded.tenant_id, branch_id = excluded.branch_id,
			total = excluded.total, at = excluded.at
	`, sale.ID, sale.TenantID, nullString(string(sale.BranchID)), sale.Total.String(), formatTimestamp(sale.At))
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = ?`, sale.ID); err != nil {
		return fmt.Errorf("failed to replace sale lines: %w", err)
	}
	for i, line := range sale.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)
		`, sale.ID, i, line.ProductID, line.Quantity.String(), line.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("failed to save sale line: %w", err)
		}
	}
	return tx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"month_closures", "expense_movements", "hours_worked", "salary_rates",
		"expense_templates", "expense_categories", "sale_lines", "sales",
		"products", "employees", "branches", "tenants",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTimestamp(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
