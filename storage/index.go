package storage

import (
	"github.com/google/btree"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/errors"
	"github.com/skyhookdm/skyquery/eval"
)

// objectIndex maps (orderkey, linenumber) to the row's position inside one
// object, for the point-lookup variant.
type objectIndex struct {
	tree *btree.BTree
}

type indexItem struct {
	orderKey   int32
	lineNumber int32
	rowIndex   int
}

func (a indexItem) Less(than btree.Item) bool {
	b := than.(indexItem)
	if a.orderKey != b.orderKey {
		return a.orderKey < b.orderKey
	}
	return a.lineNumber < b.lineNumber
}

// BuildIndex scans the object's rows and builds its point-lookup index,
// inserting entries in batches of batchSize.
func (s *LocalStore) BuildIndex(oid string, batchSize int) error {
	if batchSize < 1 {
		return errors.NewInvalidConfigurationError("index batch size must be >= 1")
	}
	buff, err := s.GetObject(oid)
	if err != nil {
		return err
	}
	orderKeyCol, ok := s.cfg.Schema.ColumnByName(common.OrderKeyCol)
	if !ok {
		return errors.NewSchemaMismatchError("schema has no orderkey column to index")
	}
	lineNumberCol, ok := s.cfg.Schema.ColumnByName(common.LineNumberCol)
	if !ok {
		return errors.NewSchemaMismatchError("schema has no linenumber column to index")
	}

	tree := btree.New(16)
	numRows := s.layout.NumRows(buff)
	batch := make([]indexItem, 0, batchSize)
	flush := func() {
		for _, item := range batch {
			tree.ReplaceOrInsert(item)
		}
		batch = batch[:0]
	}
	for i := 0; i < numRows; i++ {
		row, err := s.layout.RowAt(buff, i)
		if err != nil {
			return err
		}
		batch = append(batch, indexItem{
			orderKey:   row.Int32At(orderKeyCol.Ordinal),
			lineNumber: row.Int32At(lineNumberCol.Ordinal),
			rowIndex:   i,
		})
		if len(batch) == batchSize {
			flush()
		}
	}
	flush()

	s.indexLock.Lock()
	s.indexes[oid] = &objectIndex{tree: tree}
	s.indexLock.Unlock()
	return nil
}

func (s *LocalStore) lookupIndex(oid string) *objectIndex {
	s.indexLock.RLock()
	defer s.indexLock.RUnlock()
	return s.indexes[oid]
}

// query resolves a point lookup through the index instead of scanning. Only
// the indexed row, if any, is inspected.
func (idx *objectIndex) query(buff []byte, layout common.RowLayout, orderKey int32, lineNumber int32) *eval.Result {
	res := &eval.Result{}
	item := idx.tree.Get(indexItem{orderKey: orderKey, lineNumber: lineNumber})
	if item == nil {
		return res
	}
	row, err := layout.RowAt(buff, item.(indexItem).rowIndex)
	if err != nil {
		return res
	}
	res.RowsProcessed = 1
	res.RowsMatched = 1
	res.FixedRows = append(res.FixedRows, row.Bytes())
	return res
}
