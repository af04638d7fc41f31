package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/errors"
)

type testRow struct {
	orderKey      int32
	lineNumber    int32
	quantity      float64
	extendedPrice float64
	discount      float64
	shipDate      int32
	comment       string
}

func buildRows(t *testing.T, trs []testRow) *common.Rows {
	t.Helper()
	schema := common.LineitemSchema()
	rows := common.NewRows(schema, len(trs))
	for _, tr := range trs {
		for colIdx, col := range schema.Columns {
			switch col.Name {
			case common.OrderKeyCol:
				rows.AppendInt32ToColumn(colIdx, tr.orderKey)
			case common.LineNumberCol:
				rows.AppendInt32ToColumn(colIdx, tr.lineNumber)
			case common.QuantityCol:
				rows.AppendFloat64ToColumn(colIdx, tr.quantity)
			case common.ExtendedPriceCol:
				rows.AppendFloat64ToColumn(colIdx, tr.extendedPrice)
			case common.DiscountCol:
				rows.AppendFloat64ToColumn(colIdx, tr.discount)
			case common.ShipDateCol:
				rows.AppendInt32ToColumn(colIdx, tr.shipDate)
			case common.CommentCol:
				rows.AppendStringToColumn(colIdx, tr.comment)
			default:
				switch col.Type.Type {
				case common.TypeInt32:
					rows.AppendInt32ToColumn(colIdx, 0)
				case common.TypeInt64:
					rows.AppendInt64ToColumn(colIdx, 0)
				case common.TypeUint64:
					rows.AppendUint64ToColumn(colIdx, 0)
				case common.TypeDouble:
					rows.AppendFloat64ToColumn(colIdx, 0)
				default:
					rows.AppendStringToColumn(colIdx, "")
				}
			}
		}
	}
	return rows
}

func buildFixedBuffer(t *testing.T, trs []testRow) []byte {
	t.Helper()
	layout, err := common.NewRowLayout(common.LineitemSchema())
	require.NoError(t, err)
	return common.EncodeFixedRows(buildRows(t, trs), layout)
}

func baseDescriptor(variant string) *common.QueryDescriptor {
	return &common.QueryDescriptor{
		Variant:      variant,
		ShipDateLow:  common.UnsetShipDate,
		ShipDateHigh: common.UnsetShipDate,
		DiscountLow:  common.UnsetDiscount,
		DiscountHigh: common.UnsetDiscount,
		TableSchema:  common.LineitemSchemaString,
	}
}

var priceRows = []testRow{
	{orderKey: 1, lineNumber: 1, extendedPrice: 10.0},
	{orderKey: 1, lineNumber: 2, extendedPrice: 25.5},
	{orderKey: 2, lineNumber: 1, extendedPrice: 25.5},
}

func TestSelectGTFixed(t *testing.T) {
	qd := baseDescriptor("b")
	qd.ExtendedPrice = 20.0
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.NoError(t, err)
	require.Equal(t, 3, res.RowsProcessed)
	require.Equal(t, 2, res.RowsMatched)
	require.Equal(t, 2, len(res.FixedRows))
}

func TestCountGTFixed(t *testing.T) {
	qd := baseDescriptor("a")
	qd.ExtendedPrice = 20.0
	ev, err := Compile(qd, false)
	require.NoError(t, err)
	require.True(t, ev.Variant().CountOnly())

	res, err := ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowsMatched)
	// count variants materialize no rows
	require.Equal(t, 0, len(res.FixedRows))
}

func TestSelectEQExactMatch(t *testing.T) {
	qd := baseDescriptor("c")
	qd.ExtendedPrice = 25.5
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowsMatched)
}

func TestSelectEQUnsetPriceIsConfigError(t *testing.T) {
	qd := baseDescriptor("c")
	_, err := Compile(qd, false)
	require.Error(t, err)
	require.Equal(t, errors.InvalidConfiguration, errors.ErrorCodeOf(err))
}

func TestPointLookupNoMatch(t *testing.T) {
	qd := baseDescriptor("d")
	qd.OrderKey = 99
	qd.LineNumber = 1
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	// zero matches is a valid result, not an error
	res, err := ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.NoError(t, err)
	require.Equal(t, 0, res.RowsMatched)
}

func TestPointLookupMatch(t *testing.T) {
	qd := baseDescriptor("d")
	qd.OrderKey = 1
	qd.LineNumber = 2
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowsMatched)
}

func TestPointLookupIndexRequiresRemote(t *testing.T) {
	qd := baseDescriptor("d")
	qd.OrderKey = 1
	qd.LineNumber = 1
	qd.UseIndex = true
	_, err := Compile(qd, false)
	require.Error(t, err)
	require.Equal(t, errors.InvalidConfiguration, errors.ErrorCodeOf(err))

	_, err = Compile(qd, true)
	require.NoError(t, err)
}

func TestIndexUnsupportedVariants(t *testing.T) {
	qd := baseDescriptor("b")
	qd.ExtendedPrice = 1.0
	qd.UseIndex = true
	_, err := Compile(qd, true)
	require.Error(t, err)
	require.Equal(t, errors.IndexNotSupported, errors.ErrorCodeOf(err))
}

var rangeRows = []testRow{
	{orderKey: 1, lineNumber: 1, quantity: 10, discount: 0.05, shipDate: 8100},
	{orderKey: 1, lineNumber: 2, quantity: 30, discount: 0.05, shipDate: 8100},
	{orderKey: 1, lineNumber: 3, quantity: 10, discount: 0.02, shipDate: 8100},
	{orderKey: 1, lineNumber: 4, quantity: 10, discount: 0.05, shipDate: 8200},
}

func rangeDescriptor() *common.QueryDescriptor {
	qd := baseDescriptor("e")
	qd.ShipDateLow = 8100
	qd.ShipDateHigh = 8200
	qd.DiscountLow = 0.03
	qd.DiscountHigh = 0.07
	qd.Quantity = 20
	return qd
}

func TestRangeBounds(t *testing.T) {
	ev, err := Compile(rangeDescriptor(), false)
	require.NoError(t, err)

	// low ship date bound inclusive, high exclusive, discount strictly
	// between, quantity strictly below
	res, err := ev.EvalFixed(buildFixedBuffer(t, rangeRows), false)
	require.NoError(t, err)
	require.Equal(t, 4, res.RowsProcessed)
	require.Equal(t, 1, res.RowsMatched)
}

func TestRangeEmptyShipDateWindow(t *testing.T) {
	qd := rangeDescriptor()
	qd.ShipDateHigh = qd.ShipDateLow
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, rangeRows), false)
	require.NoError(t, err)
	require.Equal(t, 0, res.RowsMatched)
}

func TestRangeEmptyDiscountWindow(t *testing.T) {
	qd := rangeDescriptor()
	qd.DiscountLow = 0.05
	qd.DiscountHigh = 0.05
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, rangeRows), false)
	require.NoError(t, err)
	require.Equal(t, 0, res.RowsMatched)
}

func TestRangeUnsetBoundsAreConfigErrors(t *testing.T) {
	qd := rangeDescriptor()
	qd.ShipDateLow = common.UnsetShipDate
	_, err := Compile(qd, false)
	require.Equal(t, errors.InvalidConfiguration, errors.ErrorCodeOf(err))

	qd = rangeDescriptor()
	qd.DiscountHigh = common.UnsetDiscount
	_, err = Compile(qd, false)
	require.Equal(t, errors.InvalidConfiguration, errors.ErrorCodeOf(err))

	qd = rangeDescriptor()
	qd.Quantity = 0.0
	_, err = Compile(qd, false)
	require.Equal(t, errors.InvalidConfiguration, errors.ErrorCodeOf(err))
}

func TestRegexMatch(t *testing.T) {
	rows := []testRow{
		{orderKey: 1, lineNumber: 1, comment: "furiously sleep"},
		{orderKey: 1, lineNumber: 2, comment: "quickly wake"},
	}
	qd := baseDescriptor("f")
	qd.CommentRegex = "uriously"
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, rows), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.RowsMatched)
}

func TestBadRegexIsRecoverable(t *testing.T) {
	qd := baseDescriptor("f")
	qd.CommentRegex = "(unclosed"
	// a bad pattern compiles, it fails when an object is evaluated
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	_, err = ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.Error(t, err)
	require.True(t, errors.IsRecoverable(err))
}

func TestIdentityFixed(t *testing.T) {
	qd := baseDescriptor("fastpath")
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	res, err := ev.EvalFixed(buildFixedBuffer(t, priceRows), false)
	require.NoError(t, err)
	require.Equal(t, 3, res.RowsMatched)
	require.Equal(t, 3, len(res.FixedRows))
}

func TestIdentityRejectsFixedProjection(t *testing.T) {
	qd := baseDescriptor("fastpath")
	qd.Projection = true
	_, err := Compile(qd, false)
	require.Error(t, err)
	require.Equal(t, errors.InvalidConfiguration, errors.ErrorCodeOf(err))
}

func TestUnknownVariant(t *testing.T) {
	qd := baseDescriptor("z")
	_, err := Compile(qd, false)
	require.Error(t, err)
	require.Equal(t, errors.UnknownQueryVariant, errors.ErrorCodeOf(err))
}

func TestEvalContainerSelect(t *testing.T) {
	qd := baseDescriptor("b")
	qd.ExtendedPrice = 20.0
	qd.UseContainer = true
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	buff := common.EncodeContainer("lineitem", buildRows(t, priceRows))
	tbl, err := common.DecodeContainer(buff, ev.SchemaIn())
	require.NoError(t, err)

	res, err := ev.EvalContainer(tbl, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.RowsProcessed)
	require.Equal(t, 2, res.RowsMatched)
	require.Equal(t, 2, res.Rows.RowCount())
}

func TestEvalContainerProjection(t *testing.T) {
	schema := common.LineitemSchema()
	querySchema, err := common.ProjectSchema(schema,
		common.OrderKeyCol+","+common.LineNumberCol)
	require.NoError(t, err)

	qd := baseDescriptor("b")
	qd.ExtendedPrice = 20.0
	qd.UseContainer = true
	qd.Projection = true
	qd.QuerySchema = common.SerializeSchema(querySchema)
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	buff := common.EncodeContainer("lineitem", buildRows(t, priceRows))
	tbl, err := common.DecodeContainer(buff, ev.SchemaIn())
	require.NoError(t, err)

	res, err := ev.EvalContainer(tbl, false)
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows.RowCount())
	require.Equal(t, 2, res.Rows.Schema().NumColumns())
	row := res.Rows.GetRow(0)
	require.Equal(t, int32(1), row.GetInt32(0))
	require.Equal(t, int32(2), row.GetInt32(1))
}

func TestEvalContainerRemoteApplied(t *testing.T) {
	schema := common.LineitemSchema()
	querySchema, err := common.ProjectSchema(schema,
		common.OrderKeyCol+","+common.LineNumberCol)
	require.NoError(t, err)

	qd := baseDescriptor("b")
	qd.ExtendedPrice = 20.0
	qd.UseContainer = true
	qd.Projection = true
	qd.QuerySchema = common.SerializeSchema(querySchema)
	ev, err := Compile(qd, true)
	require.NoError(t, err)

	// storage already filtered and projected, the rows lack the predicate
	// column and every row counts
	projected := common.NewRows(querySchema, 2)
	projected.AppendInt32ToColumn(0, 1)
	projected.AppendInt32ToColumn(1, 2)
	projected.AppendInt32ToColumn(0, 2)
	projected.AppendInt32ToColumn(1, 1)
	buff := common.EncodeContainer("lineitem", projected)
	tbl, err := common.DecodeContainer(buff, querySchema)
	require.NoError(t, err)

	res, err := ev.EvalContainer(tbl, true)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowsMatched)
	require.Equal(t, 2, res.Rows.RowCount())
}

func TestEvalContainerSchemaMismatch(t *testing.T) {
	qd := baseDescriptor("b")
	qd.ExtendedPrice = 20.0
	qd.UseContainer = true
	ev, err := Compile(qd, false)
	require.NoError(t, err)

	otherSchema, err := common.ParseSchema("0 1 1 0 id\n")
	require.NoError(t, err)
	rows := common.NewRows(otherSchema, 1)
	rows.AppendInt32ToColumn(0, 1)
	buff := common.EncodeContainer("other", rows)
	tbl, err := common.DecodeContainer(buff, otherSchema)
	require.NoError(t, err)

	_, err = ev.EvalContainer(tbl, false)
	require.Error(t, err)
	require.True(t, errors.IsRecoverable(err))
}

func TestSQLTextEcho(t *testing.T) {
	qd := baseDescriptor("a")
	qd.ExtendedPrice = 100.0
	ev, err := Compile(qd, false)
	require.NoError(t, err)
	require.Equal(t, "select count(*) from lineitem where l_extendedprice > 100", ev.SQLText())
}
