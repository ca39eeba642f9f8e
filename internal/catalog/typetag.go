package catalog

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// FirstNormalOID is the first type OID assigned to user-defined objects.
// Type OIDs below it belong to the built-in catalog.
const FirstNormalOID = 16384

// Kind is the native representation a built-in column type decodes to.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindBool
	KindInt16
	KindInt32
	KindInt64
	KindUint32
	KindFloat32
	KindFloat64
	KindJSON
	KindJSONB
)

var kindNames = map[Kind]string{
	KindText:    "text",
	KindBool:    "boolean",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint32:  "unsigned32",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindJSON:    "json-text",
	KindJSONB:   "json-binary",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Class discriminates the TypeTag variants.
type Class uint8

const (
	// ClassInvalid marks a missing type identifier (OID 0).
	ClassInvalid Class = iota
	// ClassCustom marks a user-defined type.
	ClassCustom
	// ClassScalar marks a built-in scalar of a known Kind.
	ClassScalar
	// ClassArray marks a built-in one-dimensional array of a known Kind.
	ClassArray
	// ClassUnknown marks a built-in type outside the Kind set.
	ClassUnknown
)

// TypeTag is the resolved type of one attribute. It is computed once when
// the catalog is built; Kind is only meaningful for ClassScalar and ClassArray.
type TypeTag struct {
	Class Class
	Kind  Kind
}

// Scalar returns the tag for a built-in scalar of kind k.
func Scalar(k Kind) TypeTag { return TypeTag{Class: ClassScalar, Kind: k} }

// Array returns the tag for a built-in array of kind k.
func Array(k Kind) TypeTag { return TypeTag{Class: ClassArray, Kind: k} }

var (
	// Invalid is the tag for OID 0.
	Invalid = TypeTag{Class: ClassInvalid}
	// Custom is the tag for user-defined types.
	Custom = TypeTag{Class: ClassCustom}
	// Unknown is the tag for built-in types with no Kind.
	Unknown = TypeTag{Class: ClassUnknown}
)

// IsArray reports whether values of this tag are arrays.
func (t TypeTag) IsArray() bool { return t.Class == ClassArray }

// String renders the tag, e.g. "int32" or "text[]".
func (t TypeTag) String() string {
	switch t.Class {
	case ClassInvalid:
		return "invalid"
	case ClassCustom:
		return "custom"
	case ClassScalar:
		return t.Kind.String()
	case ClassArray:
		return t.Kind.String() + "[]"
	default:
		return "unknown"
	}
}

// builtinTags maps the supported built-in type OIDs to their tags.
// varchar, bpchar and name share the text encoding; oid and xid are
// both unsigned 32-bit integers.
var builtinTags = map[uint32]TypeTag{
	pgtype.TextOID:    Scalar(KindText),
	pgtype.VarcharOID: Scalar(KindText),
	pgtype.BPCharOID:  Scalar(KindText),
	pgtype.NameOID:    Scalar(KindText),
	pgtype.BoolOID:    Scalar(KindBool),
	pgtype.Int2OID:    Scalar(KindInt16),
	pgtype.Int4OID:    Scalar(KindInt32),
	pgtype.Int8OID:    Scalar(KindInt64),
	pgtype.OIDOID:     Scalar(KindUint32),
	pgtype.XIDOID:     Scalar(KindUint32),
	pgtype.Float4OID:  Scalar(KindFloat32),
	pgtype.Float8OID:  Scalar(KindFloat64),
	pgtype.JSONOID:    Scalar(KindJSON),
	pgtype.JSONBOID:   Scalar(KindJSONB),

	pgtype.TextArrayOID:    Array(KindText),
	pgtype.VarcharArrayOID: Array(KindText),
	pgtype.BPCharArrayOID:  Array(KindText),
	pgtype.NameArrayOID:    Array(KindText),
	pgtype.BoolArrayOID:    Array(KindBool),
	pgtype.Int2ArrayOID:    Array(KindInt16),
	pgtype.Int4ArrayOID:    Array(KindInt32),
	pgtype.Int8ArrayOID:    Array(KindInt64),
	pgtype.OIDArrayOID:     Array(KindUint32),
	pgtype.XIDArrayOID:     Array(KindUint32),
	pgtype.Float4ArrayOID:  Array(KindFloat32),
	pgtype.Float8ArrayOID:  Array(KindFloat64),
	pgtype.JSONArrayOID:    Array(KindJSON),
	pgtype.JSONBArrayOID:   Array(KindJSONB),
}

// TagForOID resolves a type OID to its TypeTag.
func TagForOID(oid uint32) TypeTag {
	if oid == 0 {
		return Invalid
	}
	if oid >= FirstNormalOID {
		return Custom
	}
	if tag, ok := builtinTags[oid]; ok {
		return tag
	}
	return Unknown
}

// canonicalOIDs is the inverse of builtinTags used by sources that describe
// columns by declared type name rather than OID.
var canonicalOIDs = map[TypeTag]uint32{
	Scalar(KindText):    pgtype.TextOID,
	Scalar(KindBool):    pgtype.BoolOID,
	Scalar(KindInt16):   pgtype.Int2OID,
	Scalar(KindInt32):   pgtype.Int4OID,
	Scalar(KindInt64):   pgtype.Int8OID,
	Scalar(KindUint32):  pgtype.OIDOID,
	Scalar(KindFloat32): pgtype.Float4OID,
	Scalar(KindFloat64): pgtype.Float8OID,
	Scalar(KindJSON):    pgtype.JSONOID,
	Scalar(KindJSONB):   pgtype.JSONBOID,
	Array(KindText):     pgtype.TextArrayOID,
	Array(KindBool):     pgtype.BoolArrayOID,
	Array(KindInt16):    pgtype.Int2ArrayOID,
	Array(KindInt32):    pgtype.Int4ArrayOID,
	Array(KindInt64):    pgtype.Int8ArrayOID,
	Array(KindUint32):   pgtype.OIDArrayOID,
	Array(KindFloat32):  pgtype.Float4ArrayOID,
	Array(KindFloat64):  pgtype.Float8ArrayOID,
	Array(KindJSON):     pgtype.JSONArrayOID,
	Array(KindJSONB):    pgtype.JSONBArrayOID,
}

// OIDForTag returns the canonical built-in OID for a scalar or array tag.
// The second result is false for the other classes.
func OIDForTag(t TypeTag) (uint32, bool) {
	oid, ok := canonicalOIDs[t]
	return oid, ok
}
