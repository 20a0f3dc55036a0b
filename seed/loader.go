package seed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
)

// =============================================================================
// LOADER
// =============================================================================

// Loader writes scenarios into a store. Manual movements go through the
// ledger so they get the same validation as API entries; listed months are
// closed through the closure engine.
type Loader struct {
	Store  generic.Store
	Ledger *generic.Ledger
	Inputs *generic.Inputs
	Closer *closure.Engine // nil skips the scenario's close list
	Logger *slog.Logger
}

func NewLoader(store generic.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		Store:  store,
		Ledger: generic.NewLedger(store, store),
		Inputs: generic.NewInputs(store),
		Closer: closure.NewEngine(store, logger),
		Logger: logger,
	}
}

// Load clears the store, then applies the scenario. Development only.
func (l *Loader) Load(ctx context.Context, s *Scenario) error {
	if err := l.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	return l.Apply(ctx, s)
}

// Apply writes the scenario on top of existing data.
func (l *Loader) Apply(ctx context.Context, s *Scenario) error {
	for _, t := range s.Tenants {
		if err := l.loadTenant(ctx, t); err != nil {
			return fmt.Errorf("scenario %s: tenant %s: %w", s.ID, t.ID, err)
		}
	}
	l.Logger.Info("scenario loaded", "scenario", s.ID, "tenants", len(s.Tenants))
	return nil
}

func (l *Loader) loadTenant(ctx context.Context, t TenantYAML) error {
	tenantID := generic.TenantID(t.ID)
	if err := l.Store.SaveTenant(ctx, generic.Tenant{ID: tenantID, Name: t.Name}); err != nil {
		return err
	}

	branches := make(map[string]bool, len(t.Branches))
	for _, b := range t.Branches {
		if err := l.Store.SaveBranch(ctx, generic.Branch{ID: generic.BranchID(b.ID), TenantID: tenantID, Name: b.Name}); err != nil {
			return fmt.Errorf("branch %s: %w", b.ID, err)
		}
		branches[b.ID] = true
	}
	branchRef := func(id string) (generic.BranchID, error) {
		if id != "" && !branches[id] {
			return "", invalid("unknown branch %q", id)
		}
		return generic.BranchID(id), nil
	}

	categories, err := l.loadCategories(ctx, tenantID, t.Categories)
	if err != nil {
		return err
	}
	categoryRef := func(name string) (generic.CategoryID, error) {
		id, ok := categories[strings.ToLower(name)]
		if !ok {
			return "", &generic.NotFoundError{Kind: "category", ID: name, Err: generic.ErrCategoryNotFound}
		}
		return id, nil
	}

	for _, e := range t.Employees {
		branch, err := branchRef(e.Branch)
		if err != nil {
			return fmt.Errorf("employee %s: %w", e.ID, err)
		}
		if err := l.loadEmployee(ctx, tenantID, branch, e); err != nil {
			return fmt.Errorf("employee %s: %w", e.ID, err)
		}
	}

	for _, tpl := range t.Templates {
		category, err := categoryRef(tpl.Category)
		if err != nil {
			return err
		}
		id := tpl.ID
		if id == "" {
			id = generic.NewID()
		}
		amount, _ := nonZero(tpl.Amount)
		from, _ := parseDate(tpl.From)
		if _, err := l.Inputs.AddTemplate(ctx, generic.ExpenseTemplate{
			ID:            generic.TemplateID(id),
			TenantID:      tenantID,
			CategoryID:    category,
			Amount:        amount,
			Recurring:     tpl.Recurring,
			EffectiveFrom: from,
			Description:   tpl.Description,
		}); err != nil {
			return fmt.Errorf("template %s: %w", id, err)
		}
	}

	for _, p := range t.Products {
		cost, _ := nonNegative(p.Cost, "cost")
		qty, _ := nonNegative(p.Quantity, "quantity")
		active := p.Active == nil || *p.Active
		if err := l.Store.SaveProduct(ctx, generic.Product{
			ID: generic.ProductID(p.ID), TenantID: tenantID, Name: p.Name, Cost: cost, Quantity: qty, Active: active,
		}); err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
	}

	for _, s := range t.Sales {
		sale, err := buildSale(tenantID, s)
		if err != nil {
			return fmt.Errorf("sale %s: %w", s.ID, err)
		}
		if sale.BranchID, err = branchRef(s.Branch); err != nil {
			return fmt.Errorf("sale %s: %w", s.ID, err)
		}
		if err := l.Store.SaveSale(ctx, sale); err != nil {
			return fmt.Errorf("sale %s: %w", s.ID, err)
		}
	}

	for _, m := range t.Movements {
		category, err := categoryRef(m.Category)
		if err != nil {
			return err
		}
		branch, err := branchRef(m.Branch)
		if err != nil {
			return err
		}
		amount, _ := nonZero(m.Amount)
		date, _ := parseDate(m.Date)
		if _, err := l.Ledger.Append(ctx, generic.ExpenseMovement{
			TenantID:    tenantID,
			CategoryID:  category,
			BranchID:    branch,
			Amount:      amount,
			Date:        date,
			Description: m.Description,
		}); err != nil {
			return fmt.Errorf("movement %q: %w", m.Description, err)
		}
	}

	if l.Closer == nil {
		return nil
	}
	for _, month := range t.Close {
		ym, _ := parseMonth(month)
		if _, err := l.Closer.CloseMonth(ctx, tenantID, ym); err != nil {
			return err
		}
	}
	return nil
}

// loadCategories creates the default categories plus the named ones and
// returns them keyed by lowercase name.
func (l *Loader) loadCategories(ctx context.Context, tenantID generic.TenantID, names []string) (map[string]generic.CategoryID, error) {
	payroll, err := l.Ledger.EnsureDefaultCategories(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ids := map[string]generic.CategoryID{strings.ToLower(payroll.Name): payroll.ID}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := ids[key]; ok {
			continue
		}
		c, err := l.Ledger.CreateCategory(ctx, tenantID, name)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		ids[key] = c.ID
	}
	return ids, nil
}

func (l *Loader) loadEmployee(ctx context.Context, tenantID generic.TenantID, branch generic.BranchID, e EmployeeYAML) error {
	empID := generic.EmployeeID(e.ID)
	if err := l.Store.SaveEmployee(ctx, generic.Employee{
		ID: empID, TenantID: tenantID, Name: e.Name, BranchID: branch, IsOwner: e.Owner,
	}); err != nil {
		return err
	}

	// Rates keep document order: it is their insertion sequence.
	for _, r := range e.Rates {
		rate, _ := nonNegative(r.Rate, "rate")
		from, _ := parseDate(r.From)
		if _, err := l.Inputs.AddRate(ctx, generic.SalaryRate{
			EmployeeID: empID, HourlyRate: rate, EffectiveFrom: from,
		}); err != nil {
			return err
		}
	}

	months := make([]string, 0, len(e.Hours))
	for month := range e.Hours {
		months = append(months, month)
	}
	sort.Strings(months)
	for _, month := range months {
		ym, _ := parseMonth(month)
		hours, _ := nonNegative(e.Hours[month], "hours")
		if err := l.Inputs.RecordHours(ctx, generic.HoursWorked{EmployeeID: empID, Period: ym, Hours: hours}); err != nil {
			return err
		}
	}
	return nil
}

func buildSale(tenantID generic.TenantID, s SaleYAML) (generic.Sale, error) {
	at, err := time.Parse(time.RFC3339, s.At)
	if err != nil {
		return generic.Sale{}, invalid("bad time %q", s.At)
	}
	total, err := parseDecimal(s.Total, "total")
	if err != nil {
		return generic.Sale{}, err
	}

	sale := generic.Sale{ID: generic.SaleID(s.ID), TenantID: tenantID, Total: total, At: at.UTC()}
	for _, line := range s.Lines {
		qty, err := parseDecimal(line.Quantity, "quantity")
		if err != nil {
			return generic.Sale{}, err
		}
		price, err := parseDecimal(line.UnitPrice, "unit_price")
		if err != nil {
			return generic.Sale{}, err
		}
		sale.Lines = append(sale.Lines, generic.SaleLine{ProductID: generic.ProductID(line.Product), Quantity: qty, UnitPrice: price})
	}
	return sale, nil
}
