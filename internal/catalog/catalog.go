package catalog

import (
	"context"

	"inapppay/internal/dispatch"
	"inapppay/internal/models"
	"inapppay/internal/queue"
	"inapppay/pkg/logging"
)

// PaymentGate reports whether the device can transact
type PaymentGate interface {
	CanMakePayments() bool
}

// Catalog caches the last fetched products by identifier. The map is only
// read and written on the dispatcher.
type Catalog struct {
	service    queue.CatalogService
	gate       PaymentGate
	dispatcher *dispatch.Dispatcher
	products   map[string]models.ProductDescriptor
	order      []string
}

func New(service queue.CatalogService, gate PaymentGate, dispatcher *dispatch.Dispatcher) *Catalog {
	return &Catalog{
		service:    service,
		gate:       gate,
		dispatcher: dispatcher,
		products:   make(map[string]models.ProductDescriptor),
	}
}

// Fetch requests ids from the catalog service and delivers the products on
// the dispatcher. Errors and a device that cannot transact both deliver an
// empty list.
func (c *Catalog) Fetch(ctx context.Context, ids []string, done func([]models.ProductDescriptor)) {
	if !c.gate.CanMakePayments() {
		c.dispatcher.Submit(func() { done([]models.ProductDescriptor{}) })
		return
	}

	go func() {
		products, err := c.service.RequestProducts(ctx, ids)
		c.dispatcher.Submit(func() {
			if err != nil {
				logging.Errorf("Product request for %v failed: %v", ids, err)
				done([]models.ProductDescriptor{})
				return
			}
			if len(products) == 0 {
				logging.Infof("Product request for %v returned no products", ids)
				done([]models.ProductDescriptor{})
				return
			}
			c.replace(products)
			done(products)
		})
	}()
}

func (c *Catalog) replace(products []models.ProductDescriptor) {
	c.products = make(map[string]models.ProductDescriptor, len(products))
	c.order = c.order[:0]
	for _, p := range products {
		if _, dup := c.products[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.products[p.ID] = p
	}
	logging.Infof("Catalog replaced with %d products", len(c.products))
}

// Len is the number of cached products
func (c *Catalog) Len() int {
	return len(c.products)
}

// Product looks up a cached product
func (c *Catalog) Product(id string) (models.ProductDescriptor, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Products returns the cached products in fetch order
func (c *Catalog) Products() []models.ProductDescriptor {
	out := make([]models.ProductDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}
