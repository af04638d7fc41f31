package common

// LineitemSchemaString is the schema of the TPC-H lineitem test table used by
// the benchmark queries. The fixed-row layout derived from it has a stride of
// 141 bytes with orderkey at offset 0, linenumber at 12, quantity at 16,
// extendedprice at 24, discount at 32, shipdate at 50 and comment at 97.
const LineitemSchemaString = `
0 1 1 0 orderkey
1 1 0 0 partkey
2 1 0 0 suppkey
3 1 1 0 linenumber
4 4 0 0 quantity
5 4 0 0 extendedprice
6 4 0 0 discount
7 4 0 1 tax
8 5 0 0 returnflag 1
9 5 0 0 linestatus 1
10 1 0 0 shipdate
11 1 0 1 commitdate
12 1 0 1 receiptdate
13 5 0 1 shipinstruct 25
14 5 0 1 shipmode 10
15 5 0 0 comment 44
`

// Column names referenced by the query variants.
const (
	OrderKeyCol      = "orderkey"
	LineNumberCol    = "linenumber"
	QuantityCol      = "quantity"
	ExtendedPriceCol = "extendedprice"
	DiscountCol      = "discount"
	ShipDateCol      = "shipdate"
	CommentCol       = "comment"
)

// LineitemSchema parses LineitemSchemaString. The string is a compile-time
// constant so a parse failure is a programming error.
func LineitemSchema() Schema {
	schema, err := ParseSchema(LineitemSchemaString)
	if err != nil {
		panic(err)
	}
	return schema
}
