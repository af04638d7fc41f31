package storage

import (
	"fmt"
	"math/rand"

	"github.com/twmb/murmur3"

	"github.com/skyhookdm/skyquery/common"
)

// ObjectName returns the id of the idx'th object of a run's target set.
func ObjectName(idx int) string {
	return fmt.Sprintf("obj.%d", idx)
}

var commentWords = []string{
	"carefully", "furiously", "slyly", "quickly", "blithely",
	"packages", "deposits", "requests", "instructions", "accounts",
	"sleep", "wake", "nag", "haggle", "detect",
}

// GenerateLineitemRows produces rowsPerObj deterministic pseudo-random
// lineitem rows for one object. The same oid always yields the same rows, so
// result counts are reproducible across runs and dispatch orders.
func GenerateLineitemRows(schema common.Schema, oid string, rowsPerObj int) *common.Rows {
	seed := int64(murmur3.SeedSum64(0x5eed, []byte(oid)))
	rnd := rand.New(rand.NewSource(seed))
	rows := common.NewRows(schema, rowsPerObj)
	for i := 0; i < rowsPerObj; i++ {
		orderKey := int32(i/7 + 1)
		lineNumber := int32(i%7 + 1)
		for colIdx, col := range schema.Columns {
			switch col.Name {
			case common.OrderKeyCol:
				rows.AppendInt32ToColumn(colIdx, orderKey)
			case common.LineNumberCol:
				rows.AppendInt32ToColumn(colIdx, lineNumber)
			case common.QuantityCol:
				rows.AppendFloat64ToColumn(colIdx, float64(rnd.Intn(50)+1))
			case common.ExtendedPriceCol:
				rows.AppendFloat64ToColumn(colIdx, float64(rnd.Intn(100000))/100.0+900.0)
			case common.DiscountCol:
				rows.AppendFloat64ToColumn(colIdx, float64(rnd.Intn(11))/100.0)
			case common.ShipDateCol:
				rows.AppendInt32ToColumn(colIdx, int32(rnd.Intn(2500)+8000))
			case common.CommentCol:
				rows.AppendStringToColumn(colIdx, randomComment(rnd))
			default:
				appendFillerValue(rows, rnd, colIdx, col)
			}
		}
	}
	return rows
}

func randomComment(rnd *rand.Rand) string {
	w := func() string { return commentWords[rnd.Intn(len(commentWords))] }
	comment := w() + " " + w() + " " + w()
	if len(comment) > 44 {
		comment = comment[:44]
	}
	return comment
}

func appendFillerValue(rows *common.Rows, rnd *rand.Rand, colIdx int, col common.ColumnDescriptor) {
	if col.Nullable && rnd.Intn(10) == 0 {
		rows.AppendNullToColumn(colIdx)
		return
	}
	switch col.Type.Type {
	case common.TypeInt32:
		rows.AppendInt32ToColumn(colIdx, int32(rnd.Intn(10000)))
	case common.TypeInt64:
		rows.AppendInt64ToColumn(colIdx, int64(rnd.Intn(10000)))
	case common.TypeUint64:
		rows.AppendUint64ToColumn(colIdx, uint64(rnd.Intn(10000)))
	case common.TypeDouble:
		rows.AppendFloat64ToColumn(colIdx, rnd.Float64()*100)
	case common.TypeChar, common.TypeString, common.TypeBytes:
		s := commentWords[rnd.Intn(len(commentWords))]
		if col.Type.Size > 0 && len(s) > col.Type.Size {
			s = s[:col.Type.Size]
		}
		rows.AppendStringToColumn(colIdx, s)
	}
}

// LoadSyntheticObjects fills the store with numObjs generated objects in the
// chosen row format. Used to stand a target set up for benchmarking and
// tests.
func LoadSyntheticObjects(s *LocalStore, numObjs int, rowsPerObj int, container bool) error {
	layout := s.layout
	for i := 0; i < numObjs; i++ {
		oid := ObjectName(i)
		rows := GenerateLineitemRows(s.cfg.Schema, oid, rowsPerObj)
		var buff []byte
		if container {
			buff = common.EncodeContainer(s.cfg.TableName, rows)
		} else {
			buff = common.EncodeFixedRows(rows, layout)
		}
		if err := s.PutObject(oid, buff); err != nil {
			return err
		}
	}
	return nil
}
