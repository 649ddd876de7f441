// Package formatter turns typed primitive values into display strings.
package formatter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PrimitiveType is the declared type of a primitive value.
type PrimitiveType string

const (
	TypeString   PrimitiveType = "String"
	TypeInteger  PrimitiveType = "Integer"
	TypeDouble   PrimitiveType = "Double"
	TypeBoolean  PrimitiveType = "Boolean"
	TypeDateTime PrimitiveType = "DateTime"
	TypePoint2d  PrimitiveType = "Point2d"
	TypePoint3d  PrimitiveType = "Point3d"
	TypeID       PrimitiveType = "Id"
)

type Point2d struct {
	X, Y float64
}

type Point3d struct {
	X, Y, Z float64
}

// TypedPrimitiveValue is a raw value together with the metadata needed to format it.
type TypedPrimitiveValue struct {
	Type           PrimitiveType
	Value          any
	ExtendedType   string
	KindOfQuantity string
}

// Formatter maps a typed primitive value to its display string.
type Formatter func(ctx context.Context, v TypedPrimitiveValue) (string, error)

// Default returns the formatter used when none is configured.
func Default() Formatter {
	return formatDefault
}

func formatDefault(_ context.Context, v TypedPrimitiveValue) (string, error) {
	switch v.Type {
	case TypeString, TypeID:
		return fmt.Sprint(v.Value), nil
	case TypeInteger:
		switch n := v.Value.(type) {
		case int:
			return strconv.Itoa(n), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case float64:
			return strconv.FormatInt(int64(n), 10), nil
		}
	case TypeDouble:
		switch n := v.Value.(type) {
		case float64:
			return formatDouble(n), nil
		case int64:
			return formatDouble(float64(n)), nil
		case int:
			return formatDouble(float64(n)), nil
		}
	case TypeBoolean:
		if b, ok := v.Value.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case TypeDateTime:
		switch t := v.Value.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339), nil
		case string:
			return t, nil
		}
	case TypePoint2d:
		if p, ok := v.Value.(Point2d); ok {
			return fmt.Sprintf("(%s, %s)", formatDouble(p.X), formatDouble(p.Y)), nil
		}
	case TypePoint3d:
		if p, ok := v.Value.(Point3d); ok {
			return fmt.Sprintf("(%s, %s, %s)", formatDouble(p.X), formatDouble(p.Y), formatDouble(p.Z)), nil
		}
	default:
		return "", fmt.Errorf("unsupported primitive type %q", v.Type)
	}
	return "", fmt.Errorf("value %v (%T) does not match primitive type %q", v.Value, v.Value, v.Type)
}

func formatDouble(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// ConcatenatedValuePart is one of a literal string, a typed value or a nested concatenation.
type ConcatenatedValuePart struct {
	Text   string
	Value  *TypedPrimitiveValue
	Nested ConcatenatedValue
}

// ConcatenatedValue is a label made of parts that are formatted separately and joined.
type ConcatenatedValue []ConcatenatedValuePart

// Text returns a value made of a single literal.
func Text(s string) ConcatenatedValue {
	return ConcatenatedValue{{Text: s}}
}

// Format formats every part of v with f and joins the results.
func Format(ctx context.Context, f Formatter, v ConcatenatedValue) (string, error) {
	var sb strings.Builder
	for _, part := range v {
		switch {
		case part.Value != nil:
			s, err := f(ctx, *part.Value)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		case part.Nested != nil:
			s, err := Format(ctx, f, part.Nested)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		default:
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// LocalizedStrings holds the strings used for synthetic grouping labels.
type LocalizedStrings struct {
	Other       string
	Unspecified string
}

// DefaultLocalizedStrings returns the English strings.
func DefaultLocalizedStrings() LocalizedStrings {
	return LocalizedStrings{
		Other:       "Other",
		Unspecified: "Not specified",
	}
}
