//go:generate mockgen -source metadata.go -destination ../../internal/mocks/mock_metadata.go -package mocks metadata

// Package metadata resolves class information used when grouping nodes by class or by
// property.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
)

var ErrClassNotFound = errors.New("class not found")

// Property describes one primitive property of a class.
type Property struct {
	Name           string                  `json:"name"`
	Label          string                  `json:"label,omitempty"`
	PrimitiveType  formatter.PrimitiveType `json:"primitiveType"`
	ExtendedType   string                  `json:"extendedType,omitempty"`
	KindOfQuantity string                  `json:"kindOfQuantity,omitempty"`
}

// Class describes a class. BaseClasses lists the full names of the direct base classes.
type Class struct {
	FullName    string     `json:"fullName"`
	Label       string     `json:"label,omitempty"`
	BaseClasses []string   `json:"baseClasses,omitempty"`
	Properties  []Property `json:"properties,omitempty"`
}

// DisplayLabel returns the class label, falling back to the class name.
func (c *Class) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	_, name, err := ParseFullClassName(c.FullName)
	if err != nil {
		return c.FullName
	}
	return name
}

// Provider resolves classes by full name.
type Provider interface {
	// GetClass returns the class with the given full name, or an error wrapping
	// ErrClassNotFound.
	GetClass(ctx context.Context, fullClassName string) (*Class, error)
}

// ParseFullClassName splits "schema.class" or "schema:class" into its parts.
func ParseFullClassName(fullClassName string) (schemaName, className string, err error) {
	i := strings.IndexAny(fullClassName, ".:")
	if i <= 0 || i == len(fullClassName)-1 || strings.ContainsAny(fullClassName[i+1:], ".:") {
		return "", "", fmt.Errorf("invalid full class name %q", fullClassName)
	}
	return fullClassName[:i], fullClassName[i+1:], nil
}

// NormalizeFullClassName returns the "schema.class" form of a full class name.
func NormalizeFullClassName(fullClassName string) (string, error) {
	schemaName, className, err := ParseFullClassName(fullClassName)
	if err != nil {
		return "", err
	}
	return schemaName + "." + className, nil
}

// IsDerivedFrom reports whether className is baseClassName or derives from it.
func IsDerivedFrom(ctx context.Context, p Provider, className, baseClassName string) (bool, error) {
	target, err := NormalizeFullClassName(baseClassName)
	if err != nil {
		return false, err
	}
	start, err := NormalizeFullClassName(className)
	if err != nil {
		return false, err
	}

	visited := map[string]struct{}{}
	queue := []string{start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if strings.EqualFold(name, target) {
			return true, nil
		}
		if _, ok := visited[name]; ok {
			continue
		}
		visited[name] = struct{}{}

		class, err := p.GetClass(ctx, name)
		if err != nil {
			return false, err
		}
		for _, base := range class.BaseClasses {
			normalized, err := NormalizeFullClassName(base)
			if err != nil {
				return false, err
			}
			queue = append(queue, normalized)
		}
	}
	return false, nil
}

// FindProperty looks up a property on the class or any of its base classes.
func FindProperty(ctx context.Context, p Provider, fullClassName, propertyName string) (*Property, error) {
	class, err := p.GetClass(ctx, fullClassName)
	if err != nil {
		return nil, err
	}
	for i := range class.Properties {
		if strings.EqualFold(class.Properties[i].Name, propertyName) {
			return &class.Properties[i], nil
		}
	}
	for _, base := range class.BaseClasses {
		prop, err := FindProperty(ctx, p, base, propertyName)
		if err == nil {
			return prop, nil
		}
		if !errors.Is(err, ErrPropertyNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, fullClassName, propertyName)
}

var ErrPropertyNotFound = errors.New("property not found")

// StaticProvider serves a fixed set of classes.
type StaticProvider struct {
	classes map[string]*Class
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns a provider serving classes. Class names are matched
// case-insensitively in either full name form.
func NewStaticProvider(classes ...*Class) *StaticProvider {
	p := &StaticProvider{classes: make(map[string]*Class, len(classes))}
	for _, c := range classes {
		name, err := NormalizeFullClassName(c.FullName)
		if err != nil {
			name = c.FullName
		}
		p.classes[strings.ToLower(name)] = c
	}
	return p
}

func (p *StaticProvider) GetClass(_ context.Context, fullClassName string) (*Class, error) {
	name, err := NormalizeFullClassName(fullClassName)
	if err != nil {
		return nil, err
	}
	c, ok := p.classes[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, fullClassName)
	}
	return c, nil
}
