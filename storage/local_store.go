package storage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
	"github.com/twmb/murmur3"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/errors"
	"github.com/skyhookdm/skyquery/eval"
)

const numStripes = 16

// Config for a LocalStore.
type Config struct {
	// Pool names the object set, it prefixes persisted keys.
	Pool string
	// DataDir, when set, persists objects in a pebble store under this
	// directory. Otherwise objects live in memory only.
	DataDir string
	// TableName and Schema describe the table the objects hold.
	TableName string
	Schema    common.Schema
}

// LocalStore is an in-process storage collaborator. Objects are striped
// across segment maps by hash of their id; evaluation requested via a query
// descriptor runs here, on the storage side, exactly as a remote object class
// would run it.
type LocalStore struct {
	cfg    Config
	layout common.RowLayout

	stripes [numStripes]stripe

	indexLock sync.RWMutex
	indexes   map[string]*objectIndex

	startStopLock sync.Mutex
	started       bool
	peb           *pebble.DB
}

type stripe struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewLocalStore(cfg Config) (*LocalStore, error) {
	layout, err := common.NewRowLayout(cfg.Schema)
	if err != nil {
		return nil, err
	}
	s := &LocalStore{
		cfg:     cfg,
		layout:  layout,
		indexes: make(map[string]*objectIndex),
	}
	for i := range s.stripes {
		s.stripes[i].objects = make(map[string][]byte)
	}
	return s, nil
}

func (s *LocalStore) Start() error {
	s.startStopLock.Lock()
	defer s.startStopLock.Unlock()
	if s.started {
		return nil
	}
	if s.cfg.DataDir != "" {
		pebbleDir := filepath.Join(s.cfg.DataDir, "pebble")
		peb, err := pebble.Open(pebbleDir, &pebble.Options{})
		if err != nil {
			return errors.WithStack(err)
		}
		s.peb = peb
		log.Debugf("opened pebble object store in %s", pebbleDir)
	}
	s.started = true
	return nil
}

func (s *LocalStore) Stop() error {
	s.startStopLock.Lock()
	defer s.startStopLock.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.peb != nil {
		if err := s.peb.Close(); err != nil {
			return errors.WithStack(err)
		}
		s.peb = nil
	}
	return nil
}

func (s *LocalStore) stripeFor(oid string) *stripe {
	h := murmur3.Sum32(common.StringToByteSliceZeroCopy(oid))
	return &s.stripes[h%numStripes]
}

func (s *LocalStore) objectKey(oid string) []byte {
	return []byte(fmt.Sprintf("obj/%s/%s", s.cfg.Pool, oid))
}

// PutObject stores the encoded object bytes, persisting them when a pebble
// store is configured.
func (s *LocalStore) PutObject(oid string, buff []byte) error {
	st := s.stripeFor(oid)
	st.mu.Lock()
	st.objects[oid] = buff
	st.mu.Unlock()
	if s.peb != nil {
		if err := s.peb.Set(s.objectKey(oid), buff, pebble.Sync); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// GetObject returns the object bytes, falling back to the pebble store and
// repopulating the stripe on a miss.
func (s *LocalStore) GetObject(oid string) ([]byte, error) {
	st := s.stripeFor(oid)
	st.mu.RLock()
	buff, ok := st.objects[oid]
	st.mu.RUnlock()
	if ok {
		return buff, nil
	}
	if s.peb != nil {
		val, closer, err := s.peb.Get(s.objectKey(oid))
		if err == nil {
			buff = append([]byte{}, val...)
			if err := closer.Close(); err != nil {
				return nil, errors.WithStack(err)
			}
			st.mu.Lock()
			st.objects[oid] = buff
			st.mu.Unlock()
			return buff, nil
		}
		if err != pebble.ErrNotFound {
			return nil, errors.WithStack(err)
		}
	}
	return nil, errors.NewUnknownObjectError(oid)
}

func (s *LocalStore) SubmitAsync(oid string, qd *common.QueryDescriptor, cb CompletionFunc) error {
	s.startStopLock.Lock()
	started := s.started
	s.startStopLock.Unlock()
	if !started {
		return errors.New("store not started")
	}
	// completion is delivered on the store's own goroutine
	go s.execute(oid, qd, cb)
	return nil
}

func (s *LocalStore) execute(oid string, qd *common.QueryDescriptor, cb CompletionFunc) {
	readStart := common.NanoTime()
	buff, err := s.GetObject(oid)
	if err != nil {
		cb(&Response{OID: oid, Err: err})
		return
	}
	if qd == nil {
		// plain object read-back
		cb(&Response{OID: oid, Buf: buff})
		return
	}
	readNs := common.NanoTime() - readStart

	evalStart := common.NanoTime()
	payload, rowsProcessed, err := s.evaluate(oid, qd, buff)
	if err != nil {
		cb(&Response{OID: oid, Err: err})
		return
	}
	evalNs := common.NanoTime() - evalStart
	cb(&Response{OID: oid, Buf: EncodeRemoteResult(readNs, evalNs, rowsProcessed, payload)})
}

func (s *LocalStore) evaluate(oid string, qd *common.QueryDescriptor, buff []byte) ([]byte, uint64, error) {
	ev, err := eval.Compile(qd, true)
	if err != nil {
		return nil, 0, err
	}
	if qd.Fastpath {
		// no predicate and identity projection, return rows unmodified
		return buff, uint64(s.objectRowCount(qd, buff, ev)), nil
	}
	if qd.UseContainer {
		return s.evaluateContainer(qd, buff, ev)
	}
	return s.evaluateFixed(oid, qd, buff, ev)
}

func (s *LocalStore) objectRowCount(qd *common.QueryDescriptor, buff []byte, ev *eval.Evaluator) int {
	if qd.UseContainer {
		tbl, err := common.DecodeContainer(buff, ev.SchemaIn())
		if err != nil {
			return 0
		}
		return tbl.RowCount()
	}
	return ev.LayoutIn().NumRows(buff)
}

func (s *LocalStore) evaluateContainer(qd *common.QueryDescriptor, buff []byte, ev *eval.Evaluator) ([]byte, uint64, error) {
	tbl, err := common.DecodeContainer(buff, ev.SchemaIn())
	if err != nil {
		return nil, 0, err
	}
	res, err := ev.EvalContainer(tbl, false)
	if err != nil {
		return nil, 0, err
	}
	if ev.Variant().CountOnly() {
		return EncodeMatchCount(uint64(res.RowsMatched)), uint64(res.RowsProcessed), nil
	}
	return common.EncodeContainer(tbl.Name, res.Rows), uint64(res.RowsProcessed), nil
}

func (s *LocalStore) evaluateFixed(oid string, qd *common.QueryDescriptor, buff []byte, ev *eval.Evaluator) ([]byte, uint64, error) {
	var res *eval.Result
	var err error
	if qd.UseIndex && ev.Variant() == eval.VariantPointLookup {
		if idx := s.lookupIndex(oid); idx != nil {
			res = idx.query(buff, s.layout, qd.OrderKey, qd.LineNumber)
		}
	}
	if res == nil {
		res, err = ev.EvalFixed(buff, false)
		if err != nil {
			return nil, 0, err
		}
	}
	if ev.Variant().CountOnly() {
		return EncodeMatchCount(uint64(res.RowsMatched)), uint64(res.RowsProcessed), nil
	}
	if qd.Projection {
		payload, err := projectFixedRows(ev, res.FixedRows)
		if err != nil {
			return nil, 0, err
		}
		return payload, uint64(res.RowsProcessed), nil
	}
	payload := make([]byte, 0, len(res.FixedRows)*s.layout.Stride)
	for _, row := range res.FixedRows {
		payload = append(payload, row...)
	}
	return payload, uint64(res.RowsProcessed), nil
}

// projectFixedRows re-packs matched rows into the output schema's fixed
// layout, column bytes copied straight from their input offsets.
func projectFixedRows(ev *eval.Evaluator, rows [][]byte) ([]byte, error) {
	in := ev.SchemaIn()
	layoutIn := ev.LayoutIn()
	out := ev.SchemaOut()
	type colCopy struct {
		off   int
		width int
	}
	copies := make([]colCopy, len(out.Columns))
	for i, col := range out.Columns {
		src, ok := in.ColumnByName(col.Name)
		if !ok {
			return nil, errors.NewSchemaMismatchError(
				fmt.Sprintf("projected column %q not in table schema", col.Name))
		}
		copies[i] = colCopy{off: layoutIn.Offsets[src.Ordinal], width: src.Type.FixedWidth()}
	}
	var payload []byte
	for _, row := range rows {
		for _, c := range copies {
			payload = append(payload, row[c.off:c.off+c.width]...)
		}
	}
	return payload, nil
}
