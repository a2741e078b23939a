package pricing

import (
	"errors"
	"sync/atomic"
)

// Catalog holds the currently published Table. Readers never observe a
// partially published version.
type Catalog struct {
	current atomic.Pointer[Table]
}

// NewCatalog creates a catalog serving t
func NewCatalog(t *Table) *Catalog {
	c := &Catalog{}
	c.current.Store(t)
	return c
}

// Current returns the published table
func (c *Catalog) Current() *Table {
	return c.current.Load()
}

// Publish swaps in a new table and returns the one it replaced
func (c *Catalog) Publish(t *Table) (*Table, error) {
	if t == nil {
		return nil, errors.New("cannot publish a nil rate table")
	}
	return c.current.Swap(t), nil
}
