package common

import (
	"fmt"

	"github.com/skyhookdm/skyquery/errors"
)

// Rows is an in-memory set of decoded rows, stored column-wise. Values are
// appended one column at a time, in any column order, one value (or null) per
// column per row.
type Rows struct {
	schema  Schema
	columns []column
}

type column struct {
	colType ColumnType
	nulls   []bool
	int64s  []int64
	uint64s []uint64
	f64s    []float64
	strs    []string
}

func NewRows(schema Schema, capacity int) *Rows {
	columns := make([]column, len(schema.Columns))
	for i, col := range schema.Columns {
		columns[i].colType = col.Type
		columns[i].nulls = make([]bool, 0, capacity)
	}
	return &Rows{schema: schema, columns: columns}
}

func (r *Rows) Schema() Schema {
	return r.schema
}

func (r *Rows) RowCount() int {
	if len(r.columns) == 0 {
		return 0
	}
	return len(r.columns[0].nulls)
}

func (r *Rows) AppendInt32ToColumn(colIndex int, val int32) {
	col := &r.columns[colIndex]
	col.nulls = append(col.nulls, false)
	col.int64s = append(col.int64s, int64(val))
}

func (r *Rows) AppendInt64ToColumn(colIndex int, val int64) {
	col := &r.columns[colIndex]
	col.nulls = append(col.nulls, false)
	col.int64s = append(col.int64s, val)
}

func (r *Rows) AppendUint64ToColumn(colIndex int, val uint64) {
	col := &r.columns[colIndex]
	col.nulls = append(col.nulls, false)
	col.uint64s = append(col.uint64s, val)
}

func (r *Rows) AppendFloat64ToColumn(colIndex int, val float64) {
	col := &r.columns[colIndex]
	col.nulls = append(col.nulls, false)
	col.f64s = append(col.f64s, val)
}

func (r *Rows) AppendStringToColumn(colIndex int, val string) {
	col := &r.columns[colIndex]
	col.nulls = append(col.nulls, false)
	col.strs = append(col.strs, val)
}

func (r *Rows) AppendNullToColumn(colIndex int) {
	col := &r.columns[colIndex]
	col.nulls = append(col.nulls, true)
	switch col.colType.Type {
	case TypeInt32, TypeInt64:
		col.int64s = append(col.int64s, 0)
	case TypeUint64:
		col.uint64s = append(col.uint64s, 0)
	case TypeDouble:
		col.f64s = append(col.f64s, 0)
	case TypeChar, TypeString, TypeBytes:
		col.strs = append(col.strs, "")
	}
}

func (r *Rows) GetRow(rowIndex int) Row {
	return Row{rows: r, index: rowIndex}
}

// AppendRow appends the columns of row to this row set, mapping source column
// ordinals through colMapping (dest column i takes source column
// colMapping[i]). A nil mapping copies positionally.
func (r *Rows) AppendRow(row Row, colMapping []int) {
	for destIdx := range r.columns {
		srcIdx := destIdx
		if colMapping != nil {
			srcIdx = colMapping[destIdx]
		}
		if row.IsNull(srcIdx) {
			r.AppendNullToColumn(destIdx)
			continue
		}
		switch r.columns[destIdx].colType.Type {
		case TypeInt32, TypeInt64:
			r.AppendInt64ToColumn(destIdx, row.GetInt64(srcIdx))
		case TypeUint64:
			r.AppendUint64ToColumn(destIdx, row.GetUint64(srcIdx))
		case TypeDouble:
			r.AppendFloat64ToColumn(destIdx, row.GetFloat64(srcIdx))
		case TypeChar, TypeString, TypeBytes:
			r.AppendStringToColumn(destIdx, row.GetString(srcIdx))
		}
	}
}

// ColumnValue returns the value at (rowIndex, colOrdinal) or whether it is
// null. An ordinal outside the bound schema is a SchemaMismatch error.
func (r *Rows) ColumnValue(rowIndex int, colOrdinal int) (interface{}, bool, error) {
	if colOrdinal < 0 || colOrdinal >= len(r.columns) {
		return nil, false, errors.NewSchemaMismatchError(
			fmt.Sprintf("column ordinal %d out of range, schema has %d columns", colOrdinal, len(r.columns)))
	}
	row := r.GetRow(rowIndex)
	if row.IsNull(colOrdinal) {
		return nil, true, nil
	}
	switch r.columns[colOrdinal].colType.Type {
	case TypeInt32, TypeInt64:
		return row.GetInt64(colOrdinal), false, nil
	case TypeUint64:
		return row.GetUint64(colOrdinal), false, nil
	case TypeDouble:
		return row.GetFloat64(colOrdinal), false, nil
	case TypeChar, TypeString, TypeBytes:
		return row.GetString(colOrdinal), false, nil
	}
	return nil, false, errors.NewSchemaMismatchError(
		fmt.Sprintf("column ordinal %d has unknown type", colOrdinal))
}

// Row is a view onto one row of a Rows.
type Row struct {
	rows  *Rows
	index int
}

func (r Row) IsNull(colIndex int) bool {
	return r.rows.columns[colIndex].nulls[r.index]
}

func (r Row) GetInt32(colIndex int) int32 {
	return int32(r.rows.columns[colIndex].int64s[r.index])
}

func (r Row) GetInt64(colIndex int) int64 {
	return r.rows.columns[colIndex].int64s[r.index]
}

func (r Row) GetUint64(colIndex int) uint64 {
	return r.rows.columns[colIndex].uint64s[r.index]
}

func (r Row) GetFloat64(colIndex int) float64 {
	return r.rows.columns[colIndex].f64s[r.index]
}

func (r Row) GetString(colIndex int) string {
	return r.rows.columns[colIndex].strs[r.index]
}

func (r Row) ColCount() int {
	return len(r.rows.columns)
}
