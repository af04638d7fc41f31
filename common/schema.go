package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skyhookdm/skyquery/errors"
)

type Type int

const (
	TypeUnknown Type = iota
	TypeInt32
	TypeInt64
	TypeUint64
	TypeDouble
	TypeChar
	TypeString
	TypeBytes
)

// ColumnType is a type tag plus the fixed byte width for sized types.
// Size is the fixed width for TypeChar and fixed-layout strings; 0 means
// variable width (container format only).
type ColumnType struct {
	Type Type
	Size int
}

var (
	Int32ColumnType  = ColumnType{Type: TypeInt32}
	Int64ColumnType  = ColumnType{Type: TypeInt64}
	Uint64ColumnType = ColumnType{Type: TypeUint64}
	DoubleColumnType = ColumnType{Type: TypeDouble}
	CharColumnType   = ColumnType{Type: TypeChar, Size: 1}
	StringColumnType = ColumnType{Type: TypeString}
)

// FixedCharColumnType is a char(n) column, fixed width n bytes.
func FixedCharColumnType(size int) ColumnType {
	return ColumnType{Type: TypeChar, Size: size}
}

// FixedWidth returns the byte width of the type in the fixed-row layout,
// or 0 if the type has no fixed width.
func (ct ColumnType) FixedWidth() int {
	switch ct.Type {
	case TypeInt32:
		return 4
	case TypeInt64, TypeUint64, TypeDouble:
		return 8
	case TypeChar:
		return ct.Size
	case TypeString, TypeBytes:
		return ct.Size // 0 means variable
	}
	return 0
}

func (ct ColumnType) String() string {
	switch ct.Type {
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeDouble:
		return "double"
	case TypeChar:
		return fmt.Sprintf("char(%d)", ct.Size)
	case TypeString:
		if ct.Size > 0 {
			return fmt.Sprintf("string(%d)", ct.Size)
		}
		return "string"
	case TypeBytes:
		return "bytes"
	}
	return "unknown"
}

// ColumnDescriptor describes one column of a schema.
type ColumnDescriptor struct {
	Ordinal  int
	Type     ColumnType
	Key      bool
	Nullable bool
	Name     string
}

// CurrentSchemaVersion is the version stamped into encoded containers.
const CurrentSchemaVersion uint32 = 1

// Schema is an ordered sequence of column descriptors. Ordinals are dense
// 0..N-1 and unique.
type Schema struct {
	Version uint32
	Columns []ColumnDescriptor
}

func (s Schema) NumColumns() int {
	return len(s.Columns)
}

// ColumnByName returns the descriptor for name, or false if absent.
func (s Schema) ColumnByName(name string) (ColumnDescriptor, bool) {
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnDescriptor{}, false
}

func (s Schema) ColumnTypes() []ColumnType {
	colTypes := make([]ColumnType, len(s.Columns))
	for i, col := range s.Columns {
		colTypes[i] = col.Type
	}
	return colTypes
}

// ParseSchema parses the compact string form: one column per line, fields
// "ordinal type key nullable name [size]" separated by whitespace, where type
// is the integer type tag and key/nullable are 0 or 1.
func ParseSchema(schemaStr string) (Schema, error) {
	schema := Schema{Version: CurrentSchemaVersion}
	for _, line := range strings.Split(schemaStr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		col, err := parseColumn(line)
		if err != nil {
			return Schema{}, err
		}
		schema.Columns = append(schema.Columns, col)
	}
	if len(schema.Columns) == 0 {
		return Schema{}, errors.NewEmptySchemaError()
	}
	for i, col := range schema.Columns {
		if col.Ordinal != i {
			return Schema{}, errors.NewBadColumnFormatError(
				fmt.Sprintf("column %s has ordinal %d, expected %d", col.Name, col.Ordinal, i))
		}
	}
	return schema, nil
}

func parseColumn(line string) (ColumnDescriptor, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 && len(fields) != 6 {
		return ColumnDescriptor{}, errors.NewBadColumnFormatError(line)
	}
	ordinal, err := strconv.Atoi(fields[0])
	if err != nil {
		return ColumnDescriptor{}, errors.NewBadColumnFormatError(line)
	}
	typeTag, err := strconv.Atoi(fields[1])
	if err != nil || Type(typeTag) <= TypeUnknown || Type(typeTag) > TypeBytes {
		return ColumnDescriptor{}, errors.NewBadColumnFormatError(line)
	}
	key, err := parseBoolField(fields[2])
	if err != nil {
		return ColumnDescriptor{}, errors.NewBadColumnFormatError(line)
	}
	nullable, err := parseBoolField(fields[3])
	if err != nil {
		return ColumnDescriptor{}, errors.NewBadColumnFormatError(line)
	}
	size := 0
	if len(fields) == 6 {
		size, err = strconv.Atoi(fields[5])
		if err != nil || size < 0 {
			return ColumnDescriptor{}, errors.NewBadColumnFormatError(line)
		}
	}
	return ColumnDescriptor{
		Ordinal:  ordinal,
		Type:     ColumnType{Type: Type(typeTag), Size: size},
		Key:      key,
		Nullable: nullable,
		Name:     fields[4],
	}, nil
}

func parseBoolField(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, errors.Errorf("bool field must be 0 or 1, got %q", s)
}

// SerializeSchema produces the compact string form accepted by ParseSchema.
func SerializeSchema(schema Schema) string {
	sb := strings.Builder{}
	for _, col := range schema.Columns {
		sb.WriteString(fmt.Sprintf("%d %d %s %s %s", col.Ordinal, int(col.Type.Type),
			boolField(col.Key), boolField(col.Nullable), col.Name))
		if col.Type.Size > 0 {
			sb.WriteString(fmt.Sprintf(" %d", col.Type.Size))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// WildcardProjection selects every column of the source schema.
const WildcardProjection = "*"

// ProjectSchema derives an output schema from a CSV list of column names.
// Column order follows the request list, not the source schema. Ordinals in
// the derived schema are renumbered dense from 0. A requested name absent
// from the full schema is an error.
func ProjectSchema(full Schema, requestedCols string) (Schema, error) {
	requestedCols = strings.TrimSpace(requestedCols)
	if requestedCols == WildcardProjection {
		return full, nil
	}
	if requestedCols == "" {
		return Schema{}, errors.NewEmptyProjectionError(requestedCols)
	}
	proj := Schema{Version: full.Version}
	for _, name := range strings.Split(requestedCols, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		col, ok := full.ColumnByName(name)
		if !ok {
			return Schema{}, errors.NewSchemaMismatchError(
				fmt.Sprintf("projected column %q not in schema", name))
		}
		col.Ordinal = len(proj.Columns)
		proj.Columns = append(proj.Columns, col)
	}
	if len(proj.Columns) == 0 {
		return Schema{}, errors.NewEmptyProjectionError(requestedCols)
	}
	return proj, nil
}

// IsIdentityProjection reports whether the request list names exactly the
// full schema's columns in their original order. Schemas are compared by
// column identity (name and type), not position.
func IsIdentityProjection(full Schema, requestedCols string) bool {
	requestedCols = strings.TrimSpace(requestedCols)
	if requestedCols == WildcardProjection {
		return true
	}
	names := strings.Split(requestedCols, ",")
	if len(names) != len(full.Columns) {
		return false
	}
	for i, name := range names {
		if strings.TrimSpace(name) != full.Columns[i].Name {
			return false
		}
	}
	return true
}

// SchemasEqual compares two schemas by column identity, in order.
func SchemasEqual(a, b Schema) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i].Name != b.Columns[i].Name || a.Columns[i].Type != b.Columns[i].Type {
			return false
		}
	}
	return true
}
