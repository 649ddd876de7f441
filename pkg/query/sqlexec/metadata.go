package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/iTwin/presentation-hierarchies/pkg/formatter"
	"github.com/iTwin/presentation-hierarchies/pkg/metadata"
)

// MetadataProvider reads classes from the classes, class_bases and class_properties tables.
type MetadataProvider struct {
	stbl sq.StatementBuilderType
}

var _ metadata.Provider = (*MetadataProvider)(nil)

// NewMetadataProvider returns a metadata provider reading from db.
func NewMetadataProvider(db *sql.DB, engine string) *MetadataProvider {
	return &MetadataProvider{
		stbl: sq.StatementBuilder.RunWith(db).PlaceholderFormat(placeholders(engine)),
	}
}

func (m *MetadataProvider) GetClass(ctx context.Context, fullClassName string) (*metadata.Class, error) {
	name, err := metadata.NormalizeFullClassName(fullClassName)
	if err != nil {
		return nil, err
	}

	class := &metadata.Class{FullName: name}
	var label sql.NullString
	err = m.stbl.Select("label").From("classes").Where(sq.Eq{"name": name}).
		QueryRowContext(ctx).Scan(&label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", metadata.ErrClassNotFound, fullClassName)
		}
		return nil, err
	}
	class.Label = label.String

	if class.BaseClasses, err = m.baseClasses(ctx, name); err != nil {
		return nil, err
	}
	if class.Properties, err = m.properties(ctx, name); err != nil {
		return nil, err
	}
	return class, nil
}

func (m *MetadataProvider) baseClasses(ctx context.Context, name string) ([]string, error) {
	rows, err := m.stbl.Select("base_class_name").From("class_bases").
		Where(sq.Eq{"class_name": name}).OrderBy("base_class_name").QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bases []string
	for rows.Next() {
		var base string
		if err := rows.Scan(&base); err != nil {
			return nil, err
		}
		bases = append(bases, base)
	}
	return bases, rows.Err()
}

func (m *MetadataProvider) properties(ctx context.Context, name string) ([]metadata.Property, error) {
	rows, err := m.stbl.Select("name", "label", "primitive_type", "kind_of_quantity").From("class_properties").
		Where(sq.Eq{"class_name": name}).OrderBy("name").QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []metadata.Property
	for rows.Next() {
		var p metadata.Property
		var label, koq sql.NullString
		var primitiveType string
		if err := rows.Scan(&p.Name, &label, &primitiveType, &koq); err != nil {
			return nil, err
		}
		p.Label = label.String
		p.PrimitiveType = formatter.PrimitiveType(primitiveType)
		p.KindOfQuantity = koq.String
		props = append(props, p)
	}
	return props, rows.Err()
}
