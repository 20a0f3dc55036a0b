package reporting

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

// InventoryValuation values active stock at cost. It ignores dates: the
// inventory source only knows current quantities.
func (e *Engine) InventoryValuation(ctx context.Context, tenantID generic.TenantID) (InventoryValuationReport, error) {
	if err := e.requireTenant(ctx, tenantID); err != nil {
		return InventoryValuationReport{}, err
	}

	products, err := e.Inventory.ListProducts(ctx, tenantID)
	if err != nil {
		return InventoryValuationReport{}, fmt.Errorf("list products for %s: %w", tenantID, err)
	}

	report := InventoryValuationReport{TenantID: tenantID, TotalValue: decimal.Zero}
	values := make([]ProductValue, 0, len(products))
	for _, p := range products {
		if !p.Active {
			continue
		}
		v := ProductValue{ProductID: p.ID, Name: p.Name, Quantity: p.Quantity, UnitCost: p.Cost, Value: p.StockValue()}
		report.TotalValue = report.TotalValue.Add(v.Value)
		values = append(values, v)
	}
	report.ProductCount = len(values)

	sort.SliceStable(values, func(i, j int) bool { return values[i].Value.GreaterThan(values[j].Value) })
	if len(values) > TopProductsLimit {
		values = values[:TopProductsLimit]
	}
	report.TopProducts = values
	return report, nil
}
