package formatter

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseConcatenatedValue parses a label column. A JSON array is read as a list of parts
// where strings are literals, objects with "type" and "value" are typed values and arrays
// are nested concatenations. Anything else is taken as a literal label.
func ParseConcatenatedValue(raw string) (ConcatenatedValue, error) {
	if !gjson.Valid(raw) {
		return Text(raw), nil
	}
	res := gjson.Parse(raw)
	if !res.IsArray() {
		return Text(raw), nil
	}
	return parseParts(res)
}

func parseParts(arr gjson.Result) (ConcatenatedValue, error) {
	parts := ConcatenatedValue{}
	var err error
	arr.ForEach(func(_, item gjson.Result) bool {
		var part ConcatenatedValuePart
		part, err = parsePart(item)
		if err != nil {
			return false
		}
		parts = append(parts, part)
		return true
	})
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func parsePart(item gjson.Result) (ConcatenatedValuePart, error) {
	switch {
	case item.Type == gjson.String:
		return ConcatenatedValuePart{Text: item.String()}, nil
	case item.IsArray():
		nested, err := parseParts(item)
		if err != nil {
			return ConcatenatedValuePart{}, err
		}
		return ConcatenatedValuePart{Nested: nested}, nil
	case item.IsObject():
		v, err := ParseTypedValue(item)
		if err != nil {
			return ConcatenatedValuePart{}, err
		}
		return ConcatenatedValuePart{Value: &v}, nil
	default:
		return ConcatenatedValuePart{}, fmt.Errorf("unexpected concatenated value part %s", item.Raw)
	}
}

// ParseTypedValue reads a {"type", "value", "extendedType", "koqName"} object.
func ParseTypedValue(obj gjson.Result) (TypedPrimitiveValue, error) {
	typ := obj.Get("type")
	val := obj.Get("value")
	if !typ.Exists() || !val.Exists() {
		return TypedPrimitiveValue{}, fmt.Errorf("typed value requires type and value: %s", obj.Raw)
	}
	v := TypedPrimitiveValue{
		Type:           PrimitiveType(typ.String()),
		ExtendedType:   obj.Get("extendedType").String(),
		KindOfQuantity: obj.Get("koqName").String(),
	}
	switch v.Type {
	case TypeString, TypeID, TypeDateTime:
		v.Value = val.String()
	case TypeInteger:
		v.Value = val.Int()
	case TypeDouble:
		v.Value = val.Float()
	case TypeBoolean:
		v.Value = val.Bool()
	case TypePoint2d:
		v.Value = Point2d{X: val.Get("x").Float(), Y: val.Get("y").Float()}
	case TypePoint3d:
		v.Value = Point3d{X: val.Get("x").Float(), Y: val.Get("y").Float(), Z: val.Get("z").Float()}
	default:
		return TypedPrimitiveValue{}, fmt.Errorf("unsupported primitive type %q", v.Type)
	}
	return v, nil
}
