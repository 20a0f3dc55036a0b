/*
Package postgres provides a PostgreSQL-backed implementation of generic.Store.

PURPOSE:
  Production storage for multi-instance deployments. Same tables as the
  SQLite store; money columns are NUMERIC and travel as text so no
  precision is lost between decimal.Decimal and the database.

CONCURRENCY:
  The UNIQUE constraint on month_closures.closure_key is the only
  serialization point between concurrent closures. A losing transaction
  fails with SQLSTATE 23505, which InsertClosure reports as
  generic.ErrMonthAlreadyClosed; the deferred Rollback discards its
  movements.

SCHEMA:
  schema.sql is embedded and applied on New() (idempotent, IF NOT EXISTS).

SEE ALSO:
  - store/sqlite/sqlite.go: Single-file implementation for dev and tests
  - generic/store.go: Interface definitions
*/
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/backoffice/generic"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Store implements generic.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ generic.Store = (*Store)(nil)

// New connects, pings and applies the schema.
func New(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) ListTenants(ctx context.Context) ([]generic.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []generic.Tenant
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		tenants = append(tenants, generic.Tenant{ID: generic.TenantID(id), Name: name})
	}
	return tenants, rows.Err()
}

func (s *Store) GetTenant(ctx context.Context, id generic.TenantID) (*generic.Tenant, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM tenants WHERE id = $1`, string(id)).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &generic.Tenant{ID: id, Name: name}, nil
}

func (s *Store) ListBranches(ctx context.Context, tenantID generic.TenantID) ([]generic.Branch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, seq FROM branches WHERE tenant_id = $1 ORDER BY seq`, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	var branches []generic.Branch
	for rows.Next() {
		var (
			id, name string
			seq      int64
		)
		if err := rows.Scan(&id, &name, &seq); err != nil {
			return nil, err
		}
		branches = append(branches, generic.Branch{ID: generic.BranchID(id), TenantID: tenantID, Name: name, Seq: seq})
	}
	return branches, rows.Err()
}

func (s *Store) ListEmployees(ctx context.Context, tenantID generic.TenantID) ([]generic.Employee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, COALESCE(branch_id, ''), is_owner
		FROM employees WHERE tenant_id = $1 ORDER BY id`, string(tenantID))
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
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, COALESCE(branch_id, ''), is_owner
		FROM employees WHERE id = $1`, string(id))
	e, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEmployee(row pgx.Row) (generic.Employee, error) {
	var (
		id, tenantID, name, branchID string
		isOwner                      bool
	)
	if err := row.Scan(&id, &tenantID, &name, &branchID, &isOwner); err != nil {
		return generic.Employee{}, err
	}
	return generic.Employee{
		ID:       generic.EmployeeID(id),
		TenantID: generic.TenantID(tenantID),
		Name:     name,
		BranchID: generic.BranchID(branchID),
		IsOwner:  isOwner,
	}, nil
}

// =============================================================================
// SALES & INVENTORY
// =============================================================================

func (s *Store) ListSales(ctx context.Context, tenantID generic.TenantID, from, to time.Time) ([]generic.Sale, error) {
	where := `s.tenant_id = $1 AND s.at >= $2`
	args := []any{string(tenantID), from.UTC()}
	if !to.IsZero() {
		where += ` AND s.at <= $3`
		args = append(args, to.UTC())
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.id, COALESCE(s.branch_id, ''), s.total::text, s.at
		FROM sales s WHERE `+where+` ORDER BY s.at, s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	var sales []generic.Sale
	index := make(map[generic.SaleID]int)
	for rows.Next() {
		var (
			id, branchID, total string
			at                  time.Time
		)
		if err := rows.Scan(&id, &branchID, &total, &at); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		amount, err := generic.ParseDecimal(total)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sale %s: %w", id, err)
		}
		index[generic.SaleID(id)] = len(sales)
		sales = append(sales, generic.Sale{
			ID:       generic.SaleID(id),
			TenantID: tenantID,
			BranchID: generic.BranchID(branchID),
			Total:    amount,
			At:       at.UTC(),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}

	lines, err := s.pool.Query(ctx, `
		SELECT l.sale_id, l.product_id, l.quantity::text, l.unit_price::text
		FROM sale_lines l JOIN sales s ON s.id = l.sale_id
		WHERE `+where+` ORDER BY l.sale_id, l.line_no`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale lines: %w", err)
	}
	defer lines.Close()
	for lines.Next() {
		var saleID, productID, quantity, price string
		if err := lines.Scan(&saleID, &productID, &quantity, &price); err != nil {
			return nil, fmt.Errorf("failed to scan sale line: %w", err)
		}
		line := generic.SaleLine{ProductID: generic.ProductID(productID)}
		if line.Quantity, err = generic.ParseDecimal(quantity); err != nil {
			return nil, fmt.Errorf("sale %s line: %w", saleID, err)
		}
		if line.UnitPrice, err = generic.ParseDecimal(price); err != nil {
			return nil, fmt.Errorf("sale %s line: %w", saleID, err)
		}
		if i, ok := index[generic.SaleID(saleID)]; ok {
			sales[i].Lines = append(sales[i].Lines, line)
		}
	}
	return sales, lines.Err()
}

func (s *Store) ListProducts(ctx context.Context, tenantID generic.TenantID) ([]generic.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, cost::text, quantity::text, active
		FROM products WHERE tenant_id = $1 ORDER BY id`, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []generic.Product
	for rows.Next() {
		var (
			id, name, cost, quantity string
			active                   bool
		)
		if err := rows.Scan(&id, &name, &cost, &quantity, &active); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p := generic.Product{ID: generic.ProductID(id), TenantID: tenantID, Name: name, Active: active}
		if p.Cost, err = generic.ParseDecimal(cost); err != nil {
			return nil, fmt.Errorf("product %s: %w", id, err)
		}
		if p.Quantity, err = generic.ParseDecimal(quantity); err != nil {
			return nil, fmt.Errorf("product %s: %w", id, err)
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
	return s.getCategory(ctx, `SELECT `+categoryColumns+` FROM expense_categories WHERE id = $1`, string(id))
}

func (s *Store) FindCategoryByName(ctx context.Context, tenantID generic.TenantID, name string) (*generic.ExpenseCategory, error) {
	return s.getCategory(ctx, `
		SELECT `+categoryColumns+` FROM expense_categories
		WHERE tenant_id = $1 AND lower(name) = lower($2) AND active`, string(tenantID), name)
}

func (s *Store) getCategory(ctx context.Context, query string, args ...any) (*generic.ExpenseCategory, error) {
	c, err := scanCategory(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCategory(row pgx.Row) (generic.ExpenseCategory, error) {
	var (
		id, tenantID, name string
		isDefault, active  bool
	)
	if err := row.Scan(&id, &tenantID, &name, &isDefault, &active); err != nil {
		return generic.ExpenseCategory{}, err
	}
	return generic.ExpenseCategory{
		ID:        generic.CategoryID(id),
		TenantID:  generic.TenantID(tenantID),
		Name:      name,
		IsDefault: isDefault,
		Active:    active,
	}, nil
}

func (s *Store) ListCategories(ctx context.Context, tenantID generic.TenantID, includeInactive bool) ([]generic.ExpenseCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM expense_categories WHERE tenant_id = $1`
	if !includeInactive {
		query += ` AND active`
	}
	rows, err := s.pool.Query(ctx, query+` ORDER BY name`, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []generic.ExpenseCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) SaveCategory(ctx context.Context, c generic.ExpenseCategory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO expense_categories (id, tenant_id, name, is_default, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_default = EXCLUDED.is_default, active = EXCLUDED.active
	`, string(c.ID), string(c.TenantID), c.Name, c.IsDefault, c.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return generic.ErrDuplicateCategory
		}
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *Store) DeactivateCategory(ctx context.Context, id generic.CategoryID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE expense_categories SET active = FALSE WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to deactivate category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &generic.NotFoundError{Kind: "category", ID: string(id), Err: generic.ErrCategoryNotFound}
	}
	return nil
}

// =============================================================================
// TEMPLATES, RATES, HOURS
// =============================================================================

const templateSelect = `
	SELECT id, tenant_id, category_id, amount::text, recurring, effective_from::text, description
	FROM expense_templates`

func (s *Store) ListTemplates(ctx context.Context, tenantID generic.TenantID) ([]generic.ExpenseTemplate, error) {
	return s.queryTemplates(ctx, templateSelect+` WHERE tenant_id = $1 ORDER BY effective_from, id`, string(tenantID))
}

func (s *Store) ListTemplatesApplying(ctx context.Context, tenantID generic.TenantID, monthEnd generic.Date) ([]generic.ExpenseTemplate, error) {
	return s.queryTemplates(ctx, templateSelect+`
		WHERE tenant_id = $1 AND effective_from <= $2::date
		  AND (recurring OR to_char(effective_from, 'YYYY-MM') = $3)
		ORDER BY effective_from, id`,
		string(tenantID), monthEnd.String(), monthEnd.YearMonth().String())
}

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]generic.ExpenseTemplate, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []generic.ExpenseTemplate
	for rows.Next() {
		var (
			id, tenantID, categoryID, amount, from, description string
			recurring                                           bool
		)
		if err := rows.Scan(&id, &tenantID, &categoryID, &amount, &recurring, &from, &description); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		effective, err := generic.ParseDate(from)
		if err != nil {
			return nil, err
		}
		value, err := generic.ParseDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", id, err)
		}
		templates = append(templates, generic.ExpenseTemplate{
			ID:            generic.TemplateID(id),
			TenantID:      generic.TenantID(tenantID),
			CategoryID:    generic.CategoryID(categoryID),
			Amount:        value,
			Recurring:     recurring,
			EffectiveFrom: effective,
			Description:   description,
		})
	}
	return templates, rows.Err()
}

func (s *Store) SaveTemplate(ctx context.Context, t generic.ExpenseTemplate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO expense_templates (id, tenant_id, category_id, amount, recurring, effective_from, description)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::date, $7)
		ON CONFLICT (id) DO UPDATE SET category_id = EXCLUDED.category_id, amount = EXCLUDED.amount,
			recurring = EXCLUDED.recurring, effective_from = EXCLUDED.effective_from, description = EXCLUDED.description
	`, string(t.ID), string(t.TenantID), string(t.CategoryID), t.Amount.String(), t.Recurring, t.EffectiveFrom.String(), t.Description)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

const rateSelect = `SELECT id, hourly_rate::text, effective_from::text, seq FROM salary_rates`

func scanRate(row pgx.Row, employeeID generic.EmployeeID) (generic.SalaryRate, error) {
	var (
		id, rate, from string
		seq            int64
	)
	if err := row.Scan(&id, &rate, &from, &seq); err != nil {
		return generic.SalaryRate{}, err
	}
	effective, err := generic.ParseDate(from)
	if err != nil {
		return generic.SalaryRate{}, err
	}
	hourly, err := generic.ParseDecimal(rate)
	if err != nil {
		return generic.SalaryRate{}, fmt.Errorf("rate %s: %w", id, err)
	}
	return generic.SalaryRate{
		ID:            generic.RateID(id),
		EmployeeID:    employeeID,
		HourlyRate:    hourly,
		EffectiveFrom: effective,
		Seq:           seq,
	}, nil
}

func (s *Store) LatestRate(ctx context.Context, employeeID generic.EmployeeID, cutoff generic.Date) (*generic.SalaryRate, error) {
	r, err := scanRate(s.pool.QueryRow(ctx, rateSelect+`
		WHERE employee_id = $1 AND effective_from <= $2::date
		ORDER BY effective_from DESC, seq DESC
		LIMIT 1`, string(employeeID), cutoff.String()), employeeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) AddRate(ctx context.Context, r generic.SalaryRate) (generic.SalaryRate, error) {
	if r.ID == "" {
		r.ID = generic.RateID(generic.NewID())
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO salary_rates (id, employee_id, hourly_rate, effective_from)
		VALUES ($1, $2, $3::numeric, $4::date)
		RETURNING seq
	`, string(r.ID), string(r.EmployeeID), r.HourlyRate.String(), r.EffectiveFrom.String()).Scan(&r.Seq)
	if err != nil {
		return generic.SalaryRate{}, fmt.Errorf("failed to add rate: %w", err)
	}
	return r, nil
}

func (s *Store) ListRates(ctx context.Context, employeeID generic.EmployeeID) ([]generic.SalaryRate, error) {
	rows, err := s.pool.Query(ctx, rateSelect+` WHERE employee_id = $1 ORDER BY effective_from, seq`, string(employeeID))
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []generic.SalaryRate
	for rows.Next() {
		r, err := scanRate(rows, employeeID)
		if err != nil {
			return nil, err
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func (s *Store) GetHours(ctx context.Context, employeeID generic.EmployeeID, ym generic.YearMonth) (*generic.HoursWorked, error) {
	var hours string
	err := s.pool.QueryRow(ctx,
		`SELECT hours::text FROM hours_worked WHERE employee_id = $1 AND period = $2`,
		string(employeeID), ym.String()).Scan(&hours)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	value, err := generic.ParseDecimal(hours)
	if err != nil {
		return nil, fmt.Errorf("hours %s %s: %w", employeeID, ym, err)
	}
	return &generic.HoursWorked{EmployeeID: employeeID, Period: ym, Hours: value}, nil
}

func (s *Store) ListHours(ctx context.Context, employeeID generic.EmployeeID, from, to generic.YearMonth) ([]generic.HoursWorked, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT period, hours::text FROM hours_worked
		WHERE employee_id = $1 AND period >= $2 AND period <= $3
		ORDER BY period`, string(employeeID), from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query hours: %w", err)
	}
	defer rows.Close()

	var result []generic.HoursWorked
	for rows.Next() {
		var period, hours string
		if err := rows.Scan(&period, &hours); err != nil {
			return nil, err
		}
		ym, err := generic.ParseYearMonth(period)
		if err != nil {
			return nil, err
		}
		value, err := generic.ParseDecimal(hours)
		if err != nil {
			return nil, fmt.Errorf("hours %s %s: %w", employeeID, ym, err)
		}
		result = append(result, generic.HoursWorked{EmployeeID: employeeID, Period: ym, Hours: value})
	}
	return result, rows.Err()
}

func (s *Store) UpsertHours(ctx context.Context, h generic.HoursWorked) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hours_worked (employee_id, period, hours) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (employee_id, period) DO UPDATE SET hours = EXCLUDED.hours
	`, string(h.EmployeeID), h.Period.String(), h.Hours.String())
	if err != nil {
		return fmt.Errorf("failed to upsert hours: %w", err)
	}
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) ListMovements(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) ([]generic.ExpenseMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category_id, COALESCE(employee_id, ''), COALESCE(branch_id, ''),
		       amount::text, date::text, description, source, created_at
		FROM expense_movements
		WHERE tenant_id = $1 AND date >= $2::date AND date <= $3::date
		ORDER BY date, seq`, string(tenantID), from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []generic.ExpenseMovement
	for rows.Next() {
		var (
			id, categoryID, employeeID, branchID string
			amount, date, description, source    string
			createdAt                            time.Time
		)
		if err := rows.Scan(&id, &categoryID, &employeeID, &branchID, &amount, &date, &description, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		d, err := generic.ParseDate(date)
		if err != nil {
			return nil, err
		}
		value, err := generic.ParseDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("movement %s: %w", id, err)
		}
		movements = append(movements, generic.ExpenseMovement{
			ID:          generic.MovementID(id),
			TenantID:    tenantID,
			CategoryID:  generic.CategoryID(categoryID),
			EmployeeID:  generic.EmployeeID(employeeID),
			BranchID:    generic.BranchID(branchID),
			Amount:      value,
			Date:        d,
			Description: description,
			Source:      generic.MovementSource(source),
			CreatedAt:   createdAt.UTC(),
		})
	}
	return movements, rows.Err()
}

func (s *Store) AppendMovement(ctx context.Context, m generic.ExpenseMovement) error {
	return appendMovement(ctx, s.pool, m)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func appendMovement(ctx context.Context, db execer, m generic.ExpenseMovement) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO expense_movements
		(id, tenant_id, category_id, employee_id, branch_id, amount, date, description, source, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6::numeric, $7::date, $8, $9, $10)
	`,
		string(m.ID), string(m.TenantID), string(m.CategoryID),
		string(m.EmployeeID), string(m.BranchID),
		m.Amount.String(), m.Date.String(), m.Description, string(m.Source), createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

const closureSelect = `SELECT closure_key, tenant_id, period, closed_at, movements FROM month_closures`

func scanClosure(row pgx.Row) (generic.MonthClosure, error) {
	var (
		key, tenantID, period string
		closedAt              time.Time
		movements             int
	)
	if err := row.Scan(&key, &tenantID, &period, &closedAt, &movements); err != nil {
		return generic.MonthClosure{}, err
	}
	ym, err := generic.ParseYearMonth(period)
	if err != nil {
		return generic.MonthClosure{}, err
	}
	return generic.MonthClosure{
		Key:       key,
		TenantID:  generic.TenantID(tenantID),
		Period:    ym,
		ClosedAt:  closedAt.UTC(),
		Movements: movements,
	}, nil
}

func (s *Store) GetClosure(ctx context.Context, key string) (*generic.MonthClosure, error) {
	c, err := scanClosure(s.pool.QueryRow(ctx, closureSelect+` WHERE closure_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClosures(ctx context.Context, tenantID generic.TenantID) ([]generic.MonthClosure, error) {
	rows, err := s.pool.Query(ctx, closureSelect+` WHERE tenant_id = $1 ORDER BY period`, string(tenantID))
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

// WithTx runs fn in a single database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) InsertClosure(ctx context.Context, c generic.MonthClosure) error {
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO month_closures (closure_key, tenant_id, period, closed_at, movements)
		VALUES ($1, $2, $3, $4, $5)
	`, c.Key, string(c.TenantID), c.Period.String(), c.ClosedAt.UTC(), c.Movements)
	if err != nil {
		if isUniqueViolation(err) {
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
// FACT WRITERS
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, t generic.Tenant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, string(t.ID), t.Name)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *Store) SaveBranch(ctx context.Context, b generic.Branch) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO branches (id, tenant_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, tenant_id = EXCLUDED.tenant_id
	`, string(b.ID), string(b.TenantID), b.Name)
	if err != nil {
		return fmt.Errorf("failed to save branch: %w", err)
	}
	return nil
}

func (s *Store) SaveEmployee(ctx context.Context, e generic.Employee) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (id, tenant_id, name, branch_id, is_owner)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name,
			branch_id = EXCLUDED.branch_id, is_owner = EXCLUDED.is_owner
	`, string(e.ID), string(e.TenantID), e.Name, string(e.BranchID), e.IsOwner)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) SaveProduct(ctx context.Context, p generic.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, tenant_id, name, cost, quantity, active)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
		ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name,
			cost = EXCLUDED.cost, quantity = EXCLUDED.quantity, active = EXCLUDED.active
	`, string(p.ID), string(p.TenantID), p.Name, p.Cost.String(), p.Quantity.String(), p.Active)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) SaveSale(ctx context.Context, sale generic.Sale) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sales (id, tenant_id, branch_id, total, at)
		VALUES ($1, $2, NULLIF($3, ''), $4::numeric, $5)
		ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, branch_id = EXCLUDED.branch_id,
			total = EXCLUDED.total, at = EXCLUDED.at
	`, string(sale.ID), string(sale.TenantID), string(sale.BranchID), sale.Total.String(), sale.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, string(sale.ID)); err != nil {
		return fmt.Errorf("failed to replace sale lines: %w", err)
	}
	for i, line := range sale.Lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric)
		`, string(sale.ID), i, string(line.ProductID), line.Quantity.String(), line.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("failed to save sale line: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE TABLE month_closures, expense_movements, hours_worked, salary_rates,
			expense_templates, expense_categories, sale_lines, sales, products,
			employees, branches, tenants RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
