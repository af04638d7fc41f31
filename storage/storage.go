// Package storage presents the storage-object execution runtime the scan
// engine dispatches to. Each object accepts a query descriptor and returns an
// opaque result blob; whether evaluation happens inside storage or the raw
// object is read back is a deployment choice of the collaborator, not the
// engine.
package storage

import (
	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/errors"
)

// Response is the completed result of one per-object request. Ownership
// transfers to exactly one engine worker via the completion callback.
type Response struct {
	OID string
	// Buf holds the raw object bytes for a plain read, or the framed remote
	// result (see EncodeRemoteResult) when a descriptor was executed.
	Buf []byte
	// Err is a completion-time failure. Any such failure is fatal to the run.
	Err error
}

// CompletionFunc is invoked on the storage collaborator's own goroutine when
// a request completes. It must only transfer ownership of the response, never
// perform row-level work or block for long.
type CompletionFunc func(*Response)

// Storage is the collaborator interface consumed by the scan engine.
type Storage interface {
	// SubmitAsync issues an asynchronous request against one object. A nil
	// descriptor reads the raw object back. A submit-time error is fatal to
	// the run and is never retried internally.
	SubmitAsync(oid string, qd *common.QueryDescriptor, cb CompletionFunc) error

	// BuildIndex builds the point-lookup index for one object, synchronously.
	BuildIndex(oid string, batchSize int) error

	Start() error
	Stop() error
}

// EncodeRemoteResult frames a storage-side evaluation result: the read and
// evaluation durations, the number of rows the storage side processed, and
// the result payload. The client decodes the same frame, field for field.
func EncodeRemoteResult(readNs uint64, evalNs uint64, rowsProcessed uint64, payload []byte) []byte {
	buff := make([]byte, 0, 28+len(payload))
	buff = common.AppendUint64ToBufferLE(buff, readNs)
	buff = common.AppendUint64ToBufferLE(buff, evalNs)
	buff = common.AppendUint64ToBufferLE(buff, rowsProcessed)
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(payload)))
	buff = append(buff, payload...)
	return buff
}

// DecodeRemoteResult unpacks a frame written by EncodeRemoteResult.
func DecodeRemoteResult(buff []byte) (readNs uint64, evalNs uint64, rowsProcessed uint64, payload []byte, err error) {
	if len(buff) < 28 {
		return 0, 0, 0, nil, errors.NewMalformedContainerError("remote result frame truncated")
	}
	offset := 0
	readNs, offset = common.ReadUint64FromBufferLE(buff, offset)
	evalNs, offset = common.ReadUint64FromBufferLE(buff, offset)
	rowsProcessed, offset = common.ReadUint64FromBufferLE(buff, offset)
	var plen uint32
	plen, offset = common.ReadUint32FromBufferLE(buff, offset)
	if len(buff)-offset != int(plen) {
		return 0, 0, 0, nil, errors.NewMalformedContainerError("remote result payload length mismatch")
	}
	return readNs, evalNs, rowsProcessed, buff[offset:], nil
}

// EncodeMatchCount is the payload form for count-style variants evaluated
// remotely: the match count instead of materialized rows.
func EncodeMatchCount(count uint64) []byte {
	return common.AppendUint64ToBufferLE(nil, count)
}

// DecodeMatchCount unpacks a count payload.
func DecodeMatchCount(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, errors.NewMalformedContainerError("match count payload must be 8 bytes")
	}
	count, _ := common.ReadUint64FromBufferLE(payload, 0)
	return count, nil
}
