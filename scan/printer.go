package scan

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/conf"
	"github.com/skyhookdm/skyquery/errors"
	"github.com/skyhookdm/skyquery/eval"
)

// rowPrinter renders surviving rows as pipe-delimited lines. Non-projected
// queries print the benchmark tuple extendedprice|orderkey|linenumber|
// shipdate|discount|quantity|comment; projected queries print the output
// schema's columns in request order. Workers share one printer, lines from
// different objects interleave but individual lines never tear.
type rowPrinter struct {
	lock   sync.Mutex
	out    io.Writer
	quiet  bool
	schema common.Schema
	layout common.RowLayout

	// fixedOrds maps each printed column to its ordinal in the layout the
	// rows actually carry; with a local projection the rows stay in the
	// input layout while only the output schema's columns print
	fixedOrds []int

	// tuple mode; when false, rows print generically in schema order
	tuple bool
	cols  benchCols
}

type benchCols struct {
	extendedPrice int
	orderKey      int
	lineNumber    int
	shipDate      int
	discount      int
	quantity      int
	comment       int
	commentSize   int
}

func newRowPrinter(cfg *conf.Config, qd *common.QueryDescriptor, ev *eval.Evaluator, out io.Writer) (*rowPrinter, error) {
	p := &rowPrinter{out: out, quiet: cfg.Quiet}
	if qd.Projection {
		p.schema = ev.SchemaOut()
	} else {
		p.schema = ev.SchemaIn()
	}
	if !qd.UseContainer {
		// fixed rows stay in the input layout unless storage re-shaped them
		layoutSchema := ev.SchemaIn()
		p.layout = ev.LayoutIn()
		if qd.Projection && cfg.RemoteEval {
			layoutSchema = ev.SchemaOut()
			p.layout = ev.LayoutProjected()
		}
		p.fixedOrds = make([]int, len(p.schema.Columns))
		for i, col := range p.schema.Columns {
			src, ok := layoutSchema.ColumnByName(col.Name)
			if !ok {
				return nil, errors.NewSchemaMismatchError(
					fmt.Sprintf("printed column %q not in row layout", col.Name))
			}
			p.fixedOrds[i] = src.Ordinal
		}
	}
	if !qd.Projection {
		p.tuple = true
		if err := p.resolveBenchCols(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *rowPrinter) resolveBenchCols() error {
	// without a projection the printed schema and the row layout coincide,
	// the resolved ordinals serve both fixed and container rows
	resolve := func(name string, dst *int) error {
		col, ok := p.schema.ColumnByName(name)
		if !ok {
			return errors.NewSchemaMismatchError(
				fmt.Sprintf("schema has no column %q required for row output", name))
		}
		*dst = col.Ordinal
		return nil
	}
	for _, b := range []struct {
		name string
		dst  *int
	}{
		{common.ExtendedPriceCol, &p.cols.extendedPrice},
		{common.OrderKeyCol, &p.cols.orderKey},
		{common.LineNumberCol, &p.cols.lineNumber},
		{common.ShipDateCol, &p.cols.shipDate},
		{common.DiscountCol, &p.cols.discount},
		{common.QuantityCol, &p.cols.quantity},
		{common.CommentCol, &p.cols.comment},
	} {
		if err := resolve(b.name, b.dst); err != nil {
			return err
		}
	}
	col, _ := p.schema.ColumnByName(common.CommentCol)
	p.cols.commentSize = col.Type.FixedWidth()
	return nil
}

// printFixed renders one fixed-layout row.
func (p *rowPrinter) printFixed(rowBytes []byte) {
	if p.quiet {
		return
	}
	row, err := p.layout.RowAt(rowBytes, 0)
	if err != nil {
		return
	}
	var line string
	if p.tuple {
		line = fmt.Sprintf("%v|%d|%d|%d|%v|%v|%s",
			row.Float64At(p.cols.extendedPrice),
			row.Int32At(p.cols.orderKey),
			row.Int32At(p.cols.lineNumber),
			row.Int32At(p.cols.shipDate),
			row.Float64At(p.cols.discount),
			row.Float64At(p.cols.quantity),
			row.CharsAt(p.cols.comment, p.cols.commentSize))
	} else {
		fields := make([]string, len(p.schema.Columns))
		for i, col := range p.schema.Columns {
			fields[i] = p.formatFixedField(row, col.Type, p.fixedOrds[i])
		}
		line = strings.Join(fields, "|")
	}
	p.lock.Lock()
	fmt.Fprintln(p.out, line)
	p.lock.Unlock()
}

func (p *rowPrinter) formatFixedField(row common.FixedRow, colType common.ColumnType, ord int) string {
	switch colType.Type {
	case common.TypeInt32:
		return fmt.Sprintf("%d", row.Int32At(ord))
	case common.TypeInt64:
		return fmt.Sprintf("%d", row.Int64At(ord))
	case common.TypeUint64:
		return fmt.Sprintf("%d", row.Uint64At(ord))
	case common.TypeDouble:
		return fmt.Sprintf("%v", row.Float64At(ord))
	default:
		return row.CharsAt(ord, colType.FixedWidth())
	}
}

// printRows renders every row of a container evaluation result.
func (p *rowPrinter) printRows(rows *common.Rows) {
	if p.quiet || rows.RowCount() == 0 {
		return
	}
	schema := rows.Schema()
	lines := make([]string, 0, rows.RowCount())
	for i := 0; i < rows.RowCount(); i++ {
		row := rows.GetRow(i)
		var line string
		if p.tuple {
			line = fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
				formatRowField(row, schema, p.cols.extendedPrice),
				formatRowField(row, schema, p.cols.orderKey),
				formatRowField(row, schema, p.cols.lineNumber),
				formatRowField(row, schema, p.cols.shipDate),
				formatRowField(row, schema, p.cols.discount),
				formatRowField(row, schema, p.cols.quantity),
				formatRowField(row, schema, p.cols.comment))
		} else {
			fields := make([]string, len(schema.Columns))
			for j := range schema.Columns {
				fields[j] = formatRowField(row, schema, j)
			}
			line = strings.Join(fields, "|")
		}
		lines = append(lines, line)
	}
	p.lock.Lock()
	for _, line := range lines {
		fmt.Fprintln(p.out, line)
	}
	p.lock.Unlock()
}

func formatRowField(row common.Row, schema common.Schema, ord int) string {
	if row.IsNull(ord) {
		return "NULL"
	}
	switch schema.Columns[ord].Type.Type {
	case common.TypeInt32:
		return fmt.Sprintf("%d", row.GetInt32(ord))
	case common.TypeInt64:
		return fmt.Sprintf("%d", row.GetInt64(ord))
	case common.TypeUint64:
		return fmt.Sprintf("%d", row.GetUint64(ord))
	case common.TypeDouble:
		return fmt.Sprintf("%v", row.GetFloat64(ord))
	default:
		return row.GetString(ord)
	}
}
