// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store. A single RWMutex guards everything;
// WithTx holds the write lock for the whole transaction.
type Memory struct {
	mu sync.RWMutex

	tenants   map[generic.TenantID]generic.Tenant
	branches  []generic.Branch
	employees map[generic.EmployeeID]generic.Employee
	products  map[generic.ProductID]generic.Product
	sales     map[generic.SaleID]generic.Sale

	categories map[generic.CategoryID]generic.ExpenseCategory
	templates  map[generic.TemplateID]generic.ExpenseTemplate
	rates      []generic.SalaryRate
	hours      map[hoursKey]generic.HoursWorked

	movements []generic.ExpenseMovement // sorted by Date, insertion order within a day
	closures  map[string]generic.MonthClosure

	branchSeq int64
	rateSeq   int64
}

type hoursKey struct {
	EmployeeID generic.EmployeeID
	Period     generic.YearMonth
}

var _ generic.Store = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{}
	m.clear()
	return m
}

func (m *Memory) clear() {
	m.tenants = make(map[generic.TenantID]generic.Tenant)
	m.branches = nil
	m.employees = make(map[generic.EmployeeID]generic.Employee)
	m.products = make(map[generic.ProductID]generic.Product)
	m.sales = make(map[generic.SaleID]generic.Sale)
	m.categories = make(map[generic.CategoryID]generic.ExpenseCategory)
	m.templates = make(map[generic.TemplateID]generic.ExpenseTemplate)
	m.rates = nil
	m.hours = make(map[hoursKey]generic.HoursWorked)
	m.movements = nil
	m.closures = make(map[string]generic.MonthClosure)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) ListTenants(_ context.Context) ([]generic.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetTenant(_ context.Context, id generic.TenantID) (*generic.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) ListBranches(_ context.Context, tenantID generic.TenantID) ([]generic.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Branch
	for _, b := range m.branches {
		if b.TenantID == tenantID {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *Memory) ListEmployees(_ context.Context, tenantID generic.TenantID) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Employee
	for _, e := range m.employees {
		if e.TenantID == tenantID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// =============================================================================
// SALES & INVENTORY
// =============================================================================

func (m *Memory) ListSales(_ context.Context, tenantID generic.TenantID, from, to time.Time) ([]generic.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Sale
	for _, s := range m.sales {
		if s.TenantID != tenantID || s.At.Before(from) {
			continue
		}
		if !to.IsZero() && s.At.After(to) {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].At.Equal(result[j].At) {
			return result[i].ID < result[j].ID
		}
		return result[i].At.Before(result[j].At)
	})
	return result, nil
}

func (m *Memory) ListProducts(_ context.Context, tenantID generic.TenantID) ([]generic.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Product
	for _, p := range m.products {
		if p.TenantID == tenantID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (m *Memory) GetCategory(_ context.Context, id generic.CategoryID) (*generic.ExpenseCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) FindCategoryByName(_ context.Context, tenantID generic.TenantID, name string) (*generic.ExpenseCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.findActiveByNameLocked(tenantID, name, "")
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) findActiveByNameLocked(tenantID generic.TenantID, name string, exclude generic.CategoryID) (generic.ExpenseCategory, bool) {
	for _, c := range m.categories {
		if c.TenantID == tenantID && c.Active && c.ID != exclude && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return generic.ExpenseCategory{}, false
}

func (m *Memory) ListCategories(_ context.Context, tenantID generic.TenantID, includeInactive bool) ([]generic.ExpenseCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.ExpenseCategory
	for _, c := range m.categories {
		if c.TenantID != tenantID || (!c.Active && !includeInactive) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveCategory(_ context.Context, c generic.ExpenseCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.Active {
		if _, dup := m.findActiveByNameLocked(c.TenantID, c.Name, c.ID); dup {
			return generic.ErrDuplicateCategory
		}
	}
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) DeactivateCategory(_ context.Context, id generic.CategoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok {
		return &generic.NotFoundError{Kind: "category", ID: string(id), Err: generic.ErrCategoryNotFound}
	}
	c.Active = false
	m.categories[id] = c
	return nil
}

// =============================================================================
// TEMPLATES, RATES, HOURS
// =============================================================================

func (m *Memory) ListTemplates(_ context.Context, tenantID generic.TenantID) ([]generic.ExpenseTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.templatesLocked(tenantID, func(generic.ExpenseTemplate) bool { return true }), nil
}

func (m *Memory) ListTemplatesApplying(_ context.Context, tenantID generic.TenantID, monthEnd generic.Date) ([]generic.ExpenseTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.templatesLocked(tenantID, func(t generic.ExpenseTemplate) bool { return t.AppliesTo(monthEnd) }), nil
}

func (m *Memory) templatesLocked(tenantID generic.TenantID, keep func(generic.ExpenseTemplate) bool) []generic.ExpenseTemplate {
	var result []generic.ExpenseTemplate
	for _, t := range m.templates {
		if t.TenantID == tenantID && keep(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EffectiveFrom.Equal(result[j].EffectiveFrom) {
			return result[i].ID < result[j].ID
		}
		return result[i].EffectiveFrom.Before(result[j].EffectiveFrom)
	})
	return result
}

func (m *Memory) SaveTemplate(_ context.Context, t generic.ExpenseTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) LatestRate(_ context.Context, employeeID generic.EmployeeID, cutoff generic.Date) (*generic.SalaryRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *generic.SalaryRate
	for i := range m.rates {
		r := m.rates[i]
		if r.EmployeeID != employeeID || r.EffectiveFrom.After(cutoff) {
			continue
		}
		if best == nil ||
			r.EffectiveFrom.After(best.EffectiveFrom) ||
			(r.EffectiveFrom.Equal(best.EffectiveFrom) && r.Seq > best.Seq) {
			best = &r
		}
	}
	return best, nil
}

func (m *Memory) AddRate(_ context.Context, r generic.SalaryRate) (generic.SalaryRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = generic.RateID(generic.NewID())
	}
	m.rateSeq++
	r.Seq = m.rateSeq
	m.rates = append(m.rates, r)
	return r, nil
}

func (m *Memory) ListRates(_ context.Context, employeeID generic.EmployeeID) ([]generic.SalaryRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.SalaryRate
	for _, r := range m.rates {
		if r.EmployeeID == employeeID {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].EffectiveFrom.Equal(result[j].EffectiveFrom) {
			return result[i].Seq < result[j].Seq
		}
		return result[i].EffectiveFrom.Before(result[j].EffectiveFrom)
	})
	return result, nil
}

func (m *Memory) GetHours(_ context.Context, employeeID generic.EmployeeID, ym generic.YearMonth) (*generic.HoursWorked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hours[hoursKey{EmployeeID: employeeID, Period: ym}]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *Memory) ListHours(_ context.Context, employeeID generic.EmployeeID, from, to generic.YearMonth) ([]generic.HoursWorked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.HoursWorked
	for k, h := range m.hours {
		if k.EmployeeID == employeeID && !k.Period.Before(from) && !k.Period.After(to) {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period.Before(result[j].Period) })
	return result, nil
}

func (m *Memory) UpsertHours(_ context.Context, h generic.HoursWorked) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[hoursKey{EmployeeID: h.EmployeeID, Period: h.Period}] = h
	return nil
}

// =============================================================================
// LEDGER - Movements and closures
// =============================================================================

func (m *Memory) ListMovements(_ context.Context, tenantID generic.TenantID, from, to generic.Date) ([]generic.ExpenseMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.ExpenseMovement
	for _, mv := range m.movements {
		if mv.TenantID == tenantID && from.BeforeOrEqual(mv.Date) && mv.Date.BeforeOrEqual(to) {
			result = append(result, mv)
		}
	}
	return result, nil
}

// AppendMovement adds a single movement. Append-only.
func (m *Memory) AppendMovement(_ context.Context, mv generic.ExpenseMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(mv)
	return nil
}

func (m *Memory) appendLocked(mv generic.ExpenseMovement) {
	// Binary search keeps the slice ordered by Date without a full re-sort
	i := sort.Search(len(m.movements), func(i int) bool {
		return m.movements[i].Date.After(mv.Date)
	})
	m.movements = append(m.movements, generic.ExpenseMovement{})
	copy(m.movements[i+1:], m.movements[i:])
	m.movements[i] = mv
}

func (m *Memory) GetClosure(_ context.Context, key string) (*generic.MonthClosure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.closures[key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListClosures(_ context.Context, tenantID generic.TenantID) ([]generic.MonthClosure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.MonthClosure
	for _, c := range m.closures {
		if c.TenantID == tenantID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period.Before(result[j].Period) })
	return result, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// fn must only use the LedgerTx it receives: the write lock is held.
func (m *Memory) WithTx(_ context.Context, fn func(generic.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Only the ledger can change inside a transaction, so only the ledger is
// captured.
type memorySnapshot struct {
	movements []generic.ExpenseMovement
	closures  map[string]generic.MonthClosure
}

func (m *Memory) snapshot() memorySnapshot {
	closures := make(map[string]generic.MonthClosure, len(m.closures))
	for k, v := range m.closures {
		closures[k] = v
	}
	return memorySnapshot{
		movements: append([]generic.ExpenseMovement(nil), m.movements...),
		closures:  closures,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.movements = s.movements
	m.closures = s.closures
}

type txMemoryView struct {
	parent *Memory
}

// InsertClosure is where the closure key is enforced: the check and the
// insert happen under the same write lock.
func (tv *txMemoryView) InsertClosure(_ context.Context, c generic.MonthClosure) error {
	if _, exists := tv.parent.closures[c.Key]; exists {
		return generic.ErrMonthAlreadyClosed
	}
	tv.parent.closures[c.Key] = c
	return nil
}

func (tv *txMemoryView) AppendMovements(_ context.Context, movements []generic.ExpenseMovement) error {
	for _, mv := range movements {
		tv.parent.appendLocked(mv)
	}
	return nil
}

// =============================================================================
// FACT WRITERS
// =============================================================================

func (m *Memory) SaveTenant(_ context.Context, t generic.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	return nil
}

// SaveBranch keeps the original Seq when a branch is saved twice.
func (m *Memory) SaveBranch(_ context.Context, b generic.Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.branches {
		if m.branches[i].ID == b.ID {
			b.Seq = m.branches[i].Seq
			m.branches[i] = b
			return nil
		}
	}
	m.branchSeq++
	b.Seq = m.branchSeq
	m.branches = append(m.branches, b)
	return nil
}

func (m *Memory) SaveEmployee(_ context.Context, e generic.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) SaveProduct(_ context.Context, p generic.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) SaveSale(_ context.Context, s generic.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Lines = append([]generic.SaleLine(nil), s.Lines...)
	m.sales[s.ID] = s
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	return nil
}
