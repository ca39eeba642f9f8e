package projector

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
	"github.com/Aman-CERP/rowbulk/internal/document"
)

var (
	errInvalidJSON = errors.New("value is not valid JSON")
	// JSON strings are UTF-8; encoding other bytes would replace them silently.
	errInvalidUTF8 = errors.New("text is not valid UTF-8")
)

func scanScalar[T any](p *Projector, oid uint32, raw []byte) (T, error) {
	var v T
	err := p.types.Scan(oid, p.format, raw, &v)
	return v, err
}

func scanArray[T any](p *Projector, oid uint32, raw []byte) ([]*T, error) {
	var v []*T
	err := p.types.Scan(oid, p.format, raw, &v)
	return v, err
}

func addArray[T document.Element](p *Projector, doc *document.Document, attr catalog.Attribute, raw []byte) error {
	v, err := scanArray[T](p, attr.TypeOID, raw)
	if err != nil {
		return err
	}
	document.AddArray(doc, attr.Name, v)
	return nil
}

func (p *Projector) decodeScalar(doc *document.Document, attr catalog.Attribute, raw []byte) error {
	oid := attr.TypeOID
	switch attr.Type.Kind {
	case catalog.KindText:
		v, err := scanScalar[string](p, oid, raw)
		if err != nil {
			return err
		}
		if !utf8.ValidString(v) {
			return errInvalidUTF8
		}
		doc.AddString(attr.Name, v)
	case catalog.KindBool:
		v, err := scanScalar[bool](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddBool(attr.Name, v)
	case catalog.KindInt16:
		v, err := scanScalar[int16](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddInt16(attr.Name, v)
	case catalog.KindInt32:
		v, err := scanScalar[int32](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddInt32(attr.Name, v)
	case catalog.KindInt64:
		v, err := scanScalar[int64](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddInt64(attr.Name, v)
	case catalog.KindUint32:
		v, err := scanScalar[uint32](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddUint32(attr.Name, v)
	case catalog.KindFloat32:
		v, err := scanScalar[float32](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddFloat32(attr.Name, v)
	case catalog.KindFloat64:
		v, err := scanScalar[float64](p, oid, raw)
		if err != nil {
			return err
		}
		doc.AddFloat64(attr.Name, v)
	case catalog.KindJSON, catalog.KindJSONB:
		v, err := scanScalar[string](p, oid, raw)
		if err != nil {
			return err
		}
		if !json.Valid([]byte(v)) || !utf8.ValidString(v) {
			return errInvalidJSON
		}
		doc.AddJSON(attr.Name, json.RawMessage(v))
	default:
		return fmt.Errorf("no scalar decoder for kind %s", attr.Type.Kind)
	}
	return nil
}

func (p *Projector) decodeArray(doc *document.Document, attr catalog.Attribute, raw []byte) error {
	switch attr.Type.Kind {
	case catalog.KindText:
		elems, err := scanArray[string](p, attr.TypeOID, raw)
		if err != nil {
			return err
		}
		for i, e := range elems {
			if e != nil && !utf8.ValidString(*e) {
				return fmt.Errorf("element %d: %w", i, errInvalidUTF8)
			}
		}
		document.AddArray(doc, attr.Name, elems)
		return nil
	case catalog.KindBool:
		return addArray[bool](p, doc, attr, raw)
	case catalog.KindInt16:
		return addArray[int16](p, doc, attr, raw)
	case catalog.KindInt32:
		return addArray[int32](p, doc, attr, raw)
	case catalog.KindInt64:
		return addArray[int64](p, doc, attr, raw)
	case catalog.KindUint32:
		return addArray[uint32](p, doc, attr, raw)
	case catalog.KindFloat32:
		return addArray[float32](p, doc, attr, raw)
	case catalog.KindFloat64:
		return addArray[float64](p, doc, attr, raw)
	case catalog.KindJSON, catalog.KindJSONB:
		elems, err := scanArray[string](p, attr.TypeOID, raw)
		if err != nil {
			return err
		}
		out := make([]*json.RawMessage, len(elems))
		for i, e := range elems {
			if e == nil {
				continue
			}
			if !json.Valid([]byte(*e)) || !utf8.ValidString(*e) {
				return fmt.Errorf("element %d: %w", i, errInvalidJSON)
			}
			msg := json.RawMessage(*e)
			out[i] = &msg
		}
		document.AddArray(doc, attr.Name, out)
		return nil
	default:
		return fmt.Errorf("no array decoder for kind %s", attr.Type.Kind)
	}
}
