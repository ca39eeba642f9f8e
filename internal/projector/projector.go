// Package projector turns one row's raw column values into a Document,
// dispatching per column on the catalog's resolved TypeTag.
package projector

import (
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
	"github.com/Aman-CERP/rowbulk/internal/document"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
)

// Wire format codes for raw values.
const (
	TextFormat   int16 = pgtype.TextFormatCode
	BinaryFormat int16 = pgtype.BinaryFormatCode
)

// UnknownPolicy decides what happens to built-in types outside the kind set.
type UnknownPolicy string

const (
	// UnknownError fails the build with an UnsupportedType error.
	UnknownError UnknownPolicy = "error"
	// UnknownFalse writes the field as boolean false. This reproduces the
	// behavior of earlier builds and exists for compatibility only.
	UnknownFalse UnknownPolicy = "false"
)

// ParseUnknownPolicy validates a policy name from configuration.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch UnknownPolicy(s) {
	case "", UnknownError:
		return UnknownError, nil
	case UnknownFalse:
		return UnknownFalse, nil
	default:
		return "", fmt.Errorf("unknown builtin policy %q (valid: error, false)", s)
	}
}

// Projector projects rows of one catalog. It is not safe for concurrent use;
// the scan feeds it one row at a time.
type Projector struct {
	cat     *catalog.Catalog
	types   *pgtype.Map
	format  int16
	unknown UnknownPolicy
}

// Option configures a Projector.
type Option func(*Projector)

// WithFormat sets the wire format of raw values (BinaryFormat by default).
func WithFormat(format int16) Option {
	return func(p *Projector) { p.format = format }
}

// WithUnknownPolicy sets the handling of unknown built-in types.
func WithUnknownPolicy(policy UnknownPolicy) Option {
	return func(p *Projector) { p.unknown = policy }
}

// New creates a Projector for the given catalog.
func New(cat *catalog.Catalog, opts ...Option) *Projector {
	p := &Projector{
		cat:     cat,
		types:   pgtype.NewMap(),
		format:  BinaryFormat,
		unknown: UnknownError,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the catalog rows are projected against.
func (p *Projector) Catalog() *catalog.Catalog { return p.cat }

// Project builds the Document for one row. values must be positionally
// aligned with the catalog; a nil value is SQL NULL and produces no field.
func (p *Projector) Project(values [][]byte) (*document.Document, error) {
	if len(values) != p.cat.Len() {
		return nil, rberrors.SchemaInconsistency(
			fmt.Sprintf("row has %d values but row type has %d attributes", len(values), p.cat.Len()), nil)
	}

	doc := document.New(p.cat.Live())
	for i, raw := range values {
		attr := p.cat.Attribute(i)
		if attr.Dropped || raw == nil {
			continue
		}
		if err := p.projectValue(doc, attr, raw); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (p *Projector) projectValue(doc *document.Document, attr catalog.Attribute, raw []byte) error {
	switch attr.Type.Class {
	case catalog.ClassInvalid:
		return rberrors.SchemaInconsistency(
			fmt.Sprintf("found invalid type identifier for attribute %q", attr.Name), nil).
			WithDetail("column", attr.Name)
	case catalog.ClassCustom:
		return unsupported(attr, "custom type")
	case catalog.ClassUnknown:
		if p.unknown == UnknownFalse {
			doc.AddBool(attr.Name, false)
			return nil
		}
		return unsupported(attr, "built-in type without a document encoding")
	case catalog.ClassScalar:
		if err := p.decodeScalar(doc, attr, raw); err != nil {
			return decodeFailure(attr, err)
		}
		return nil
	case catalog.ClassArray:
		if err := p.decodeArray(doc, attr, raw); err != nil {
			return decodeFailure(attr, err)
		}
		return nil
	default:
		return rberrors.InternalError(fmt.Sprintf("unhandled type class %d", attr.Type.Class), nil)
	}
}

func unsupported(attr catalog.Attribute, what string) error {
	return rberrors.UnsupportedType(
		fmt.Sprintf("column %q has unsupported %s (oid=%d)", attr.Name, what, attr.TypeOID), nil).
		WithDetail("column", attr.Name).
		WithDetail("type_oid", strconv.FormatUint(uint64(attr.TypeOID), 10))
}

func decodeFailure(attr catalog.Attribute, err error) error {
	return rberrors.DecodeFailure(
		fmt.Sprintf("cannot decode column %q as %s", attr.Name, attr.Type), err).
		WithDetail("column", attr.Name).
		WithDetail("type_oid", strconv.FormatUint(uint64(attr.TypeOID), 10))
}
