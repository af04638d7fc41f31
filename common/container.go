package common

import (
	"fmt"

	"github.com/skyhookdm/skyquery/errors"
)

// ContainerFormatVersion is the version stamped into encoded containers.
const ContainerFormatVersion uint32 = 1

// Table is a decoded self-describing row container: header metadata plus the
// materialized rows bound to the negotiated schema.
type Table struct {
	FormatVersion uint32
	SchemaVersion uint32
	Name          string
	Rows          *Rows
	RecordIDs     []uint64
	deleteVector  []byte
}

func (t *Table) RowCount() int {
	return t.Rows.RowCount()
}

// IsDeleted reports whether the row at rowIndex is logically deleted.
func (t *Table) IsDeleted(rowIndex int) bool {
	byteIdx := rowIndex >> 3
	if byteIdx >= len(t.deleteVector) {
		return false
	}
	return t.deleteVector[byteIdx]&(1<<(uint(rowIndex)&7)) != 0
}

// EncodeContainer packs rows into the container wire form. Only the columns
// of the rows' bound schema are written; the null bitmap is recomputed per
// record and null columns contribute no payload bytes. The returned buffer is
// complete: the header row count always agrees with the records that follow,
// so a partially written container is never observable.
func EncodeContainer(tableName string, rows *Rows) []byte {
	schema := rows.Schema()
	numRows := rows.RowCount()
	numCols := schema.NumColumns()

	buff := make([]byte, 0, 256)
	buff = AppendUint32ToBufferLE(buff, ContainerFormatVersion)
	buff = AppendUint32ToBufferLE(buff, schema.Version)
	buff = AppendStringToBufferLE(buff, tableName)
	buff = AppendUint32ToBufferLE(buff, uint32(numRows))
	// Scan results carry no deletes, the delete vector is all zero
	deleteVec := make([]byte, bitmapBytes(numRows))
	buff = AppendUint32ToBufferLE(buff, uint32(len(deleteVec)))
	buff = append(buff, deleteVec...)

	var payload []byte
	for i := 0; i < numRows; i++ {
		row := rows.GetRow(i)
		buff = AppendUint64ToBufferLE(buff, uint64(i))
		nullBitmap := make([]byte, bitmapBytes(numCols))
		payload = payload[:0]
		for colIdx, col := range schema.Columns {
			if row.IsNull(colIdx) {
				nullBitmap[colIdx>>3] |= 1 << (uint(colIdx) & 7)
				continue
			}
			payload = encodeColumnValue(payload, row, colIdx, col.Type)
		}
		buff = AppendUint32ToBufferLE(buff, uint32(numCols))
		buff = append(buff, nullBitmap...)
		buff = AppendUint32ToBufferLE(buff, uint32(len(payload)))
		buff = append(buff, payload...)
	}
	return buff
}

func encodeColumnValue(payload []byte, row Row, colIdx int, colType ColumnType) []byte {
	switch colType.Type {
	case TypeInt32:
		payload = AppendUint32ToBufferLE(payload, uint32(row.GetInt32(colIdx)))
	case TypeInt64:
		payload = AppendUint64ToBufferLE(payload, uint64(row.GetInt64(colIdx)))
	case TypeUint64:
		payload = AppendUint64ToBufferLE(payload, row.GetUint64(colIdx))
	case TypeDouble:
		payload = AppendFloat64ToBufferLE(payload, row.GetFloat64(colIdx))
	case TypeChar:
		payload = appendFixedChars(payload, row.GetString(colIdx), colType.Size)
	case TypeString, TypeBytes:
		payload = AppendStringToBufferLE(payload, row.GetString(colIdx))
	}
	return payload
}

func appendFixedChars(payload []byte, val string, size int) []byte {
	if len(val) >= size {
		return append(payload, val[:size]...)
	}
	payload = append(payload, val...)
	for i := len(val); i < size; i++ {
		payload = append(payload, 0)
	}
	return payload
}

// DecodeContainer unpacks a container and materializes its rows against the
// negotiated schema. Any structural inconsistency fails with
// MalformedContainer; a schema version disagreement fails with
// SchemaMismatch.
func DecodeContainer(buff []byte, schema Schema) (*Table, error) {
	r := &containerReader{buff: buff}

	formatVersion := r.readUint32()
	schemaVersion := r.readUint32()
	tableName := r.readString()
	rowCount := r.readUint32()
	deleteVecLen := r.readUint32()
	deleteVec := r.readBytes(int(deleteVecLen))
	if r.err != nil {
		return nil, errors.NewMalformedContainerError("header truncated")
	}
	if formatVersion != ContainerFormatVersion {
		return nil, errors.NewMalformedContainerError(
			fmt.Sprintf("unsupported format version %d", formatVersion))
	}
	if schemaVersion != schema.Version {
		return nil, errors.NewSchemaMismatchError(
			fmt.Sprintf("container schema version %d, negotiated schema version %d", schemaVersion, schema.Version))
	}

	numCols := schema.NumColumns()
	// every record carries at least its framing, a row count the remaining
	// bytes cannot possibly hold must fail before any sizing happens
	minRecordBytes := 16 + bitmapBytes(numCols)
	if int64(rowCount)*int64(minRecordBytes) > int64(r.remaining()) {
		return nil, errors.NewMalformedContainerError(
			fmt.Sprintf("header claims %d rows but only %d bytes remain", rowCount, r.remaining()))
	}
	rows := NewRows(schema, int(rowCount))
	recordIDs := make([]uint64, 0, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		recordID := r.readUint64()
		bitCount := r.readUint32()
		nullBitmap := r.readBytes(bitmapBytes(int(bitCount)))
		payloadLen := r.readUint32()
		payload := r.readBytes(int(payloadLen))
		if r.err != nil {
			return nil, errors.NewMalformedContainerError(
				fmt.Sprintf("header claims %d rows but only %d records present", rowCount, i))
		}
		if int(bitCount) != numCols {
			return nil, errors.NewMalformedContainerError(
				fmt.Sprintf("record %d null bitmap has %d bits, schema has %d columns", i, bitCount, numCols))
		}
		if err := decodeRecordPayload(rows, schema, nullBitmap, payload); err != nil {
			return nil, err
		}
		recordIDs = append(recordIDs, recordID)
	}
	if r.remaining() != 0 {
		return nil, errors.NewMalformedContainerError(
			fmt.Sprintf("%d trailing bytes after last record", r.remaining()))
	}
	return &Table{
		FormatVersion: formatVersion,
		SchemaVersion: schemaVersion,
		Name:          tableName,
		Rows:          rows,
		RecordIDs:     recordIDs,
		deleteVector:  deleteVec,
	}, nil
}

func decodeRecordPayload(rows *Rows, schema Schema, nullBitmap []byte, payload []byte) error {
	r := &containerReader{buff: payload}
	for colIdx, col := range schema.Columns {
		if nullBitmap[colIdx>>3]&(1<<(uint(colIdx)&7)) != 0 {
			rows.AppendNullToColumn(colIdx)
			continue
		}
		switch col.Type.Type {
		case TypeInt32:
			rows.AppendInt32ToColumn(colIdx, int32(r.readUint32()))
		case TypeInt64:
			rows.AppendInt64ToColumn(colIdx, int64(r.readUint64()))
		case TypeUint64:
			rows.AppendUint64ToColumn(colIdx, r.readUint64())
		case TypeDouble:
			rows.AppendFloat64ToColumn(colIdx, r.readFloat64())
		case TypeChar:
			rows.AppendStringToColumn(colIdx, trimNulChars(r.readBytes(col.Type.Size)))
		case TypeString, TypeBytes:
			rows.AppendStringToColumn(colIdx, r.readString())
		}
		if r.err != nil {
			return errors.NewMalformedContainerError(
				fmt.Sprintf("payload truncated at column %s", col.Name))
		}
	}
	if r.remaining() != 0 {
		return errors.NewMalformedContainerError(
			fmt.Sprintf("%d unconsumed payload bytes in record", r.remaining()))
	}
	return nil
}

func trimNulChars(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func bitmapBytes(bits int) int {
	return (bits + 7) / 8
}

// containerReader is a bounds-checked cursor over a container buffer. After
// the first failed read every subsequent read returns zero values; callers
// check err once per record.
type containerReader struct {
	buff []byte
	off  int
	err  error
}

func (r *containerReader) remaining() int {
	return len(r.buff) - r.off
}

func (r *containerReader) fail() {
	if r.err == nil {
		r.err = errors.New("buffer exhausted")
	}
}

func (r *containerReader) readUint32() uint32 {
	if r.remaining() < 4 {
		r.fail()
		return 0
	}
	v, off := ReadUint32FromBufferLE(r.buff, r.off)
	r.off = off
	return v
}

func (r *containerReader) readUint64() uint64 {
	if r.remaining() < 8 {
		r.fail()
		return 0
	}
	v, off := ReadUint64FromBufferLE(r.buff, r.off)
	r.off = off
	return v
}

func (r *containerReader) readFloat64() float64 {
	if r.remaining() < 8 {
		r.fail()
		return 0
	}
	v, off := ReadFloat64FromBufferLE(r.buff, r.off)
	r.off = off
	return v
}

func (r *containerReader) readBytes(n int) []byte {
	if n < 0 || r.remaining() < n {
		r.fail()
		return nil
	}
	b := r.buff[r.off : r.off+n]
	r.off += n
	return b
}

func (r *containerReader) readString() string {
	l := r.readUint32()
	b := r.readBytes(int(l))
	return ByteSliceToStringZeroCopy(b)
}
