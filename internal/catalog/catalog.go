// Package catalog holds the immutable column schema snapshot captured once
// before a build scans the table.
package catalog

import (
	"fmt"
	"strings"

	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
)

// Column is one entry of the schema source's positional column list.
type Column struct {
	Name    string
	TypeOID uint32
	TypeMod int32
	Dropped bool
}

// Attribute is the resolved metadata for one column position.
type Attribute struct {
	Name    string
	Type    TypeTag
	TypeOID uint32
	TypeMod int32
	Dropped bool
}

// Catalog is the read-only attribute list for the indexed row type.
// Positions match the raw value slices delivered by the scan, dropped
// columns included.
type Catalog struct {
	relation string
	attrs    []Attribute
	byName   map[string]int
	live     int
}

// Option configures catalog construction.
type Option func(*Catalog)

// WithRelation records the relation name the snapshot was taken from.
func WithRelation(name string) Option {
	return func(c *Catalog) { c.relation = name }
}

// New builds a catalog from the schema source's column list. An empty list
// is valid: PostgreSQL allows zero-column tables, whose rows project to {}.
func New(cols []Column, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		attrs:  make([]Attribute, len(cols)),
		byName: make(map[string]int, len(cols)),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, col := range cols {
		c.attrs[i] = Attribute{
			Name:    col.Name,
			Type:    TagForOID(col.TypeOID),
			TypeOID: col.TypeOID,
			TypeMod: col.TypeMod,
			Dropped: col.Dropped,
		}
		if col.Dropped {
			continue
		}
		if prev, dup := c.byName[col.Name]; dup {
			return nil, rberrors.SchemaInconsistency(
				fmt.Sprintf("duplicate column name %q at positions %d and %d", col.Name, prev+1, i+1), nil)
		}
		c.byName[col.Name] = i
		c.live++
	}

	return c, nil
}

// Relation returns the relation name, if one was recorded.
func (c *Catalog) Relation() string { return c.relation }

// Len returns the number of column positions, dropped ones included.
func (c *Catalog) Len() int { return len(c.attrs) }

// Live returns the number of non-dropped columns.
func (c *Catalog) Live() int { return c.live }

// Attribute returns the attribute at position i (zero-based).
func (c *Catalog) Attribute(i int) Attribute { return c.attrs[i] }

// Attributes returns a copy of the attribute list.
func (c *Catalog) Attributes() []Attribute {
	out := make([]Attribute, len(c.attrs))
	copy(out, c.attrs)
	return out
}

// Lookup returns the position of a live column by name.
func (c *Catalog) Lookup(name string) (int, bool) {
	i, ok := c.byName[name]
	return i, ok
}

// String renders the catalog as "name type, ..." for logs.
func (c *Catalog) String() string {
	parts := make([]string, 0, len(c.attrs))
	for _, a := range c.attrs {
		if a.Dropped {
			parts = append(parts, fmt.Sprintf("<dropped #%d>", len(parts)+1))
			continue
		}
		parts = append(parts, a.Name+" "+a.Type.String())
	}
	return strings.Join(parts, ", ")
}
