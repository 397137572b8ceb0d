package catalog

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process catalog. It also owns the stock counters, so the
// same instance serves CheckStock and the inventory's TakeStock/ReturnStock.
type Memory struct {
	mu       sync.Mutex
	products map[string]*Product // by slug
	vendor   map[string]*VendorProduct
}

func NewMemory() *Memory {
	return &Memory{
		products: map[string]*Product{},
		vendor:   map[string]*VendorProduct{},
	}
}

// PutProduct registers a product and its vendor listings.
func (m *Memory) PutProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	cp.VendorProducts = nil
	m.products[p.Slug] = &cp
	for _, vp := range p.VendorProducts {
		v := vp
		v.ProductID = p.ID
		v.Variants = append([]VendorVariant(nil), vp.Variants...)
		m.vendor[v.ID] = &v
	}
}

func (m *Memory) GetProductBySlug(_ context.Context, slug string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[slug]
	if !ok {
		return Product{}, ErrNotFound
	}
	out := *p
	out.Variants = append([]Variant(nil), p.Variants...)
	for _, vp := range m.vendor {
		if vp.ProductID == p.ID {
			out.VendorProducts = append(out.VendorProducts, cloneVP(vp))
		}
	}
	return out, nil
}

func (m *Memory) GetVendorProduct(_ context.Context, id string) (VendorProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vendor[id]
	if !ok {
		return VendorProduct{}, ErrNotFound
	}
	return cloneVP(vp), nil
}

func (m *Memory) CheckStock(_ context.Context, items []StockItem) (StockCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]StockResult, 0, len(items))
	for _, it := range items {
		res := StockResult{Item: it}
		if vp, ok := m.vendor[it.VendorProductID]; ok {
			if it.VendorVariantID == "" {
				res.Found = true
				res.Active = vp.Status == StatusActive
				res.Available = vp.Stock
				res.Price = vp.Price
			} else if v, ok := vp.Variant(it.VendorVariantID); ok {
				res.Found = true
				res.Active = vp.Status == StatusActive && v.Active
				res.Available = v.Stock
				res.Price = v.Price
			}
		}
		results = append(results, res)
	}
	return newStockCheck(results), nil
}

// TakeStock decrements every counter or none.
func (m *Memory) TakeStock(_ context.Context, items []StockItem) ([]Shortage, error) {
	items = Merge(items)
	m.mu.Lock()
	defer m.mu.Unlock()
	var short []Shortage
	for _, it := range items {
		if avail := m.takeableLocked(it); avail < it.Quantity {
			short = append(short, Shortage{Item: it, Available: max(avail, 0)})
		}
	}
	if len(short) > 0 {
		return short, nil
	}
	for _, it := range items {
		m.addLocked(it, -it.Quantity)
	}
	return nil, nil
}

func (m *Memory) ReturnStock(_ context.Context, items []StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.addLocked(it, it.Quantity)
	}
	return nil
}

// Stock reads one counter; -1 when it does not exist.
func (m *Memory) Stock(it StockItem) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stockLocked(it)
}

// SetPrice changes a listing price, for simulating price drift.
func (m *Memory) SetPrice(it StockItem, p decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vp, ok := m.vendor[it.VendorProductID]
	if !ok {
		return
	}
	if it.VendorVariantID == "" {
		vp.Price = p
		return
	}
	for i := range vp.Variants {
		if vp.Variants[i].ID == it.VendorVariantID {
			vp.Variants[i].Price = p
		}
	}
}

func (m *Memory) stockLocked(it StockItem) int {
	vp, ok := m.vendor[it.VendorProductID]
	if !ok {
		return -1
	}
	if it.VendorVariantID == "" {
		return vp.Stock
	}
	v, ok := vp.Variant(it.VendorVariantID)
	if !ok {
		return -1
	}
	return v.Stock
}

// inactive listings cannot be taken from, matching the Postgres store
func (m *Memory) takeableLocked(it StockItem) int {
	vp, ok := m.vendor[it.VendorProductID]
	if !ok || vp.Status != StatusActive {
		return 0
	}
	if it.VendorVariantID != "" {
		if v, ok := vp.Variant(it.VendorVariantID); !ok || !v.Active {
			return 0
		}
	}
	return m.stockLocked(it)
}

func (m *Memory) addLocked(it StockItem, delta int) {
	vp, ok := m.vendor[it.VendorProductID]
	if !ok {
		return
	}
	if it.VendorVariantID == "" {
		vp.Stock += delta
		return
	}
	for i := range vp.Variants {
		if vp.Variants[i].ID == it.VendorVariantID {
			vp.Variants[i].Stock += delta
		}
	}
}

func cloneVP(vp *VendorProduct) VendorProduct {
	out := *vp
	out.Variants = append([]VendorVariant(nil), vp.Variants...)
	return out
}
