package common

import (
	"github.com/skyhookdm/skyquery/errors"
)

// Sentinel values meaning "parameter not supplied". These match the CLI
// defaults, a query variant that requires one of these parameters must be
// given a non-sentinel value.
const (
	UnsetShipDate = -9999
	UnsetDiscount = -9999.0
)

// QueryDescriptor carries one query's variant, scalar parameters, flags and
// schema strings to the storage layer. It is immutable once dispatched and
// owned exclusively by the dispatch call that created it.
type QueryDescriptor struct {
	Variant       string
	ExtendedPrice float64
	OrderKey      int32
	LineNumber    int32
	ShipDateLow   int32
	ShipDateHigh  int32
	DiscountLow   float64
	DiscountHigh  float64
	Quantity      float64
	CommentRegex  string
	UseIndex      bool
	Projection    bool
	Fastpath      bool
	UseContainer  bool
	TableSchema   string
	QuerySchema   string
	ExtraRowCost  uint64
}

// Encode appends the wire form of the descriptor to buffer. Field order and
// widths are schema-stable, ports of this engine must agree on them exactly.
func (qd *QueryDescriptor) Encode(buffer []byte) []byte {
	buffer = AppendStringToBufferLE(buffer, qd.Variant)
	buffer = AppendFloat64ToBufferLE(buffer, qd.ExtendedPrice)
	buffer = AppendUint32ToBufferLE(buffer, uint32(qd.OrderKey))
	buffer = AppendUint32ToBufferLE(buffer, uint32(qd.LineNumber))
	buffer = AppendUint32ToBufferLE(buffer, uint32(qd.ShipDateLow))
	buffer = AppendUint32ToBufferLE(buffer, uint32(qd.ShipDateHigh))
	buffer = AppendFloat64ToBufferLE(buffer, qd.DiscountLow)
	buffer = AppendFloat64ToBufferLE(buffer, qd.DiscountHigh)
	buffer = AppendFloat64ToBufferLE(buffer, qd.Quantity)
	buffer = AppendStringToBufferLE(buffer, qd.CommentRegex)
	buffer = append(buffer, encodeBool(qd.UseIndex), encodeBool(qd.Projection),
		encodeBool(qd.Fastpath), encodeBool(qd.UseContainer))
	buffer = AppendStringToBufferLE(buffer, qd.TableSchema)
	buffer = AppendStringToBufferLE(buffer, qd.QuerySchema)
	buffer = AppendUint64ToBufferLE(buffer, qd.ExtraRowCost)
	return buffer
}

// DecodeQueryDescriptor unpacks a descriptor from its wire form.
func DecodeQueryDescriptor(buffer []byte) (*QueryDescriptor, error) {
	r := &containerReader{buff: buffer}
	qd := &QueryDescriptor{}
	qd.Variant = r.readString()
	qd.ExtendedPrice = r.readFloat64()
	qd.OrderKey = int32(r.readUint32())
	qd.LineNumber = int32(r.readUint32())
	qd.ShipDateLow = int32(r.readUint32())
	qd.ShipDateHigh = int32(r.readUint32())
	qd.DiscountLow = r.readFloat64()
	qd.DiscountHigh = r.readFloat64()
	qd.Quantity = r.readFloat64()
	qd.CommentRegex = r.readString()
	flags := r.readBytes(4)
	qd.TableSchema = r.readString()
	qd.QuerySchema = r.readString()
	qd.ExtraRowCost = r.readUint64()
	if r.err != nil || r.remaining() != 0 {
		return nil, errors.NewMalformedContainerError("query descriptor truncated or has trailing bytes")
	}
	qd.UseIndex = flags[0] != 0
	qd.Projection = flags[1] != 0
	qd.Fastpath = flags[2] != 0
	qd.UseContainer = flags[3] != 0
	return qd, nil
}

func encodeBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}
