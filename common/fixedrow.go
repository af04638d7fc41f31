package common

import (
	"fmt"

	"github.com/skyhookdm/skyquery/errors"
)

// RowLayout is the precomputed byte layout of the fixed-width row format.
// Column offsets are determined solely by schema order and type widths, with
// no null or delete support. The layout is computed once per schema and
// reused for every row, this is the performance-critical path.
type RowLayout struct {
	Stride  int
	Offsets []int
}

// NewRowLayout computes the layout for schema. Every column must have a
// fixed width.
func NewRowLayout(schema Schema) (RowLayout, error) {
	offsets := make([]int, len(schema.Columns))
	off := 0
	for i, col := range schema.Columns {
		w := col.Type.FixedWidth()
		if w == 0 {
			return RowLayout{}, errors.NewSchemaMismatchError(
				fmt.Sprintf("column %s has no fixed width, cannot use fixed-row format", col.Name))
		}
		offsets[i] = off
		off += w
	}
	return RowLayout{Stride: off, Offsets: offsets}, nil
}

// NumRows returns how many whole rows buff holds.
func (l RowLayout) NumRows(buff []byte) int {
	return len(buff) / l.Stride
}

// RowAt returns the row at rowIndex as a FixedRow. Bounds are checked once
// here, not per field.
func (l RowLayout) RowAt(buff []byte, rowIndex int) (FixedRow, error) {
	start := rowIndex * l.Stride
	if start < 0 || start+l.Stride > len(buff) {
		return FixedRow{}, errors.NewMalformedContainerError(
			fmt.Sprintf("row %d out of range, buffer holds %d rows", rowIndex, l.NumRows(buff)))
	}
	return FixedRow{buff: buff[start : start+l.Stride], layout: &l}, nil
}

// FixedRow is a schema-validated accessor over one fixed-width row. The
// backing byte range was bounds-checked when the row was taken from its
// buffer, so field reads index directly off the precomputed offsets.
type FixedRow struct {
	buff   []byte
	layout *RowLayout
}

func (r FixedRow) Int32At(colIndex int) int32 {
	v, _ := ReadUint32FromBufferLE(r.buff, r.layout.Offsets[colIndex])
	return int32(v)
}

func (r FixedRow) Int64At(colIndex int) int64 {
	v, _ := ReadUint64FromBufferLE(r.buff, r.layout.Offsets[colIndex])
	return int64(v)
}

func (r FixedRow) Uint64At(colIndex int) uint64 {
	v, _ := ReadUint64FromBufferLE(r.buff, r.layout.Offsets[colIndex])
	return v
}

func (r FixedRow) Float64At(colIndex int) float64 {
	v, _ := ReadFloat64FromBufferLE(r.buff, r.layout.Offsets[colIndex])
	return v
}

// CharsAt returns a char(n) column value with any NUL padding stripped.
func (r FixedRow) CharsAt(colIndex int, size int) string {
	off := r.layout.Offsets[colIndex]
	return trimNulChars(r.buff[off : off+size])
}

// Bytes returns the raw backing bytes of the row.
func (r FixedRow) Bytes() []byte {
	return r.buff
}

// EncodeFixedRow appends one row of rows to buffer in the fixed layout.
// Char columns are NUL-padded to their declared size; null values encode as
// zero bytes since the format has no null support.
func EncodeFixedRow(buffer []byte, rows *Rows, rowIndex int, layout RowLayout) []byte {
	row := rows.GetRow(rowIndex)
	schema := rows.Schema()
	for colIdx, col := range schema.Columns {
		switch col.Type.Type {
		case TypeInt32:
			v := int32(0)
			if !row.IsNull(colIdx) {
				v = row.GetInt32(colIdx)
			}
			buffer = AppendUint32ToBufferLE(buffer, uint32(v))
		case TypeInt64:
			v := int64(0)
			if !row.IsNull(colIdx) {
				v = row.GetInt64(colIdx)
			}
			buffer = AppendUint64ToBufferLE(buffer, uint64(v))
		case TypeUint64:
			v := uint64(0)
			if !row.IsNull(colIdx) {
				v = row.GetUint64(colIdx)
			}
			buffer = AppendUint64ToBufferLE(buffer, v)
		case TypeDouble:
			v := float64(0)
			if !row.IsNull(colIdx) {
				v = row.GetFloat64(colIdx)
			}
			buffer = AppendFloat64ToBufferLE(buffer, v)
		case TypeChar, TypeString, TypeBytes:
			s := ""
			if !row.IsNull(colIdx) {
				s = row.GetString(colIdx)
			}
			buffer = appendFixedChars(buffer, s, col.Type.FixedWidth())
		}
	}
	return buffer
}

// EncodeFixedRows packs every row of rows into the fixed layout.
func EncodeFixedRows(rows *Rows, layout RowLayout) []byte {
	buffer := make([]byte, 0, rows.RowCount()*layout.Stride)
	for i := 0; i < rows.RowCount(); i++ {
		buffer = EncodeFixedRow(buffer, rows, i, layout)
	}
	return buffer
}
