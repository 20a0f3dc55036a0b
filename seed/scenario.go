/*
Package seed populates a store from YAML scenario files.

PURPOSE:
  The engine treats tenants, employees, products and sales as facts owned by
  other systems. Demos, the CLI and tests still need those facts, so a
  scenario describes them declaratively and the Loader writes them through
  the store and the ledger.

YAML SCHEMA:
  id: demo
  name: Demo
  description: Two branches, a rate change, rent and a one-off deposit
  tenants:
    - id: t-demo
      name: Corner Coffee
      branches:
        - {id: b-main, name: Main Street}
      categories: [Rent, Utilities]       # Payroll is always created
      employees:
        - id: e-alice
          name: Alice
          branch: b-main                  # empty for owners
          rates:
            - {rate: "10.00", from: "2025-01-01"}
          hours:
            "2025-01": "160"
      templates:
        - {category: Rent, amount: "-1200", recurring: true, from: "2025-01-01"}
      products:
        - {id: p-beans, name: Beans, cost: "12.50", quantity: "40"}
      sales:
        - id: s-1001
          branch: b-main
          at: "2025-01-15T10:30:00Z"
          total: "350"
          lines: [{product: p-beans, quantity: "10", unit_price: "35"}]
      movements:
        - {category: Utilities, amount: "-180", date: "2025-01-20"}
      close: ["2025-01"]                  # months closed after loading

  Money, hours and quantities are strings so they parse exactly into
  decimals. Dates are YYYY-MM-DD, months YYYY-MM, sale times RFC 3339.

VALIDATION:
  Parse checks structure and formats; references between entities (a
  template's category, a sale's product) are resolved by the Loader.

SEE ALSO:
  - loader.go: Writes a scenario into a store
  - builtin.go: Scenarios embedded in the binary
*/
package seed

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// Scenario is one YAML document.
type Scenario struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Tenants     []TenantYAML `yaml:"tenants"`
}

type TenantYAML struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Branches   []BranchYAML   `yaml:"branches"`
	Categories []string       `yaml:"categories,omitempty"`
	Employees  []EmployeeYAML `yaml:"employees,omitempty"`
	Templates  []TemplateYAML `yaml:"templates,omitempty"`
	Products   []ProductYAML  `yaml:"products,omitempty"`
	Sales      []SaleYAML     `yaml:"sales,omitempty"`
	Movements  []MovementYAML `yaml:"movements,omitempty"`
	Close      []string       `yaml:"close,omitempty"`
}

type BranchYAML struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type EmployeeYAML struct {
	ID     string            `yaml:"id"`
	Name   string            `yaml:"name"`
	Branch string            `yaml:"branch,omitempty"`
	Owner  bool              `yaml:"owner,omitempty"`
	Rates  []RateYAML        `yaml:"rates,omitempty"`
	Hours  map[string]string `yaml:"hours,omitempty"` // "YYYY-MM" -> hours
}

type RateYAML struct {
	Rate string `yaml:"rate"`
	From string `yaml:"from"`
}

type TemplateYAML struct {
	ID          string `yaml:"id,omitempty"`
	Category    string `yaml:"category"`
	Amount      string `yaml:"amount"`
	Recurring   bool   `yaml:"recurring"`
	From        string `yaml:"from"`
	Description string `yaml:"description,omitempty"`
}

type ProductYAML struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Cost     string `yaml:"cost"`
	Quantity string `yaml:"quantity"`
	Active   *bool  `yaml:"active,omitempty"` // default true
}

type SaleYAML struct {
	ID     string         `yaml:"id"`
	Branch string         `yaml:"branch,omitempty"`
	At     string         `yaml:"at"`
	Total  string         `yaml:"total"`
	Lines  []SaleLineYAML `yaml:"lines,omitempty"`
}

type SaleLineYAML struct {
	Product   string `yaml:"product"`
	Quantity  string `yaml:"quantity"`
	UnitPrice string `yaml:"unit_price"`
}

type MovementYAML struct {
	Category    string `yaml:"category"`
	Branch      string `yaml:"branch,omitempty"`
	Amount      string `yaml:"amount"`
	Date        string `yaml:"date"`
	Description string `yaml:"description,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile reads a scenario from disk.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Validate checks required fields and value formats.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return invalid("scenario id is required")
	}
	seen := make(map[string]bool)
	for i, t := range s.Tenants {
		if t.ID == "" {
			return invalid("tenant #%d: id is required", i+1)
		}
		if seen[t.ID] {
			return invalid("tenant %s: declared twice", t.ID)
		}
		seen[t.ID] = true
		if err := t.validate(); err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

func (t TenantYAML) validate() error {
	for _, b := range t.Branches {
		if b.ID == "" {
			return invalid("branch id is required")
		}
	}
	for _, e := range t.Employees {
		if e.ID == "" {
			return invalid("employee id is required")
		}
		for _, r := range e.Rates {
			if _, err := nonNegative(r.Rate, "rate"); err != nil {
				return fmt.Errorf("employee %s: %w", e.ID, err)
			}
			if _, err := parseDate(r.From); err != nil {
				return fmt.Errorf("employee %s: %w", e.ID, err)
			}
		}
		for month, hours := range e.Hours {
			if _, err := parseMonth(month); err != nil {
				return fmt.Errorf("employee %s: %w", e.ID, err)
			}
			if _, err := nonNegative(hours, "hours"); err != nil {
				return fmt.Errorf("employee %s: %w", e.ID, err)
			}
		}
	}
	for _, tpl := range t.Templates {
		if _, err := nonZero(tpl.Amount); err != nil {
			return fmt.Errorf("template %q: %w", tpl.Description, err)
		}
		if _, err := parseDate(tpl.From); err != nil {
			return fmt.Errorf("template %q: %w", tpl.Description, err)
		}
	}
	for _, p := range t.Products {
		if p.ID == "" {
			return invalid("product id is required")
		}
		if _, err := nonNegative(p.Cost, "cost"); err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
		if _, err := nonNegative(p.Quantity, "quantity"); err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
	}
	for _, s := range t.Sales {
		if s.ID == "" {
			return invalid("sale id is required")
		}
		if _, err := time.Parse(time.RFC3339, s.At); err != nil {
			return invalid("sale %s: bad time %q", s.ID, s.At)
		}
		if _, err := parseDecimal(s.Total, "total"); err != nil {
			return fmt.Errorf("sale %s: %w", s.ID, err)
		}
	}
	for _, m := range t.Movements {
		if _, err := nonZero(m.Amount); err != nil {
			return fmt.Errorf("movement %q: %w", m.Description, err)
		}
		if _, err := parseDate(m.Date); err != nil {
			return fmt.Errorf("movement %q: %w", m.Description, err)
		}
	}
	for _, month := range t.Close {
		if _, err := parseMonth(month); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", generic.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("%s %q is not a number", field, s)
	}
	return d, nil
}

func nonNegative(s, field string) (decimal.Decimal, error) {
	d, err := parseDecimal(s, field)
	if err != nil {
		return d, err
	}
	if d.IsNegative() {
		return d, fmt.Errorf("%w: %s %s is negative", generic.ErrInvalidAmount, field, s)
	}
	return d, nil
}

func nonZero(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s, "amount")
	if err != nil {
		return d, err
	}
	if d.IsZero() {
		return d, fmt.Errorf("%w: amount is zero", generic.ErrInvalidAmount)
	}
	return d, nil
}

func parseDate(s string) (generic.Date, error) {
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.Date{}, invalid("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func parseMonth(s string) (generic.YearMonth, error) {
	ym, err := generic.ParseYearMonth(s)
	if err != nil {
		return generic.YearMonth{}, invalid("month %q: want YYYY-MM", s)
	}
	return ym, nil
}
