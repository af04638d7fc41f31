package scan

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/skyhookdm/skyquery/errors"
)

// Timing holds the per-object latency sample recorded for one completed
// request. Dispatch and Response are monotonic nanosecond stamps taken on
// the client; ReadNs and EvalNs are reported by storage and remain zero for
// raw reads; Eval2Ns is the client-side processing time.
type Timing struct {
	Dispatch uint64
	Response uint64
	ReadNs   uint64
	EvalNs   uint64
	Eval2Ns  uint64
}

// Results is the aggregate outcome of one run. Timings are in completion
// order, not dispatch order.
type Results struct {
	ResultCount    uint64
	RowsReturned   uint64
	RowsProcessed  uint64
	Timings        []Timing
	MaxOutstanding int

	// count-style variants evaluated in storage transfer no rows, so the
	// rows-returned figure is meaningless for them
	countOnly bool
}

// Summary renders the end-of-run line. When storage returned bare counts the
// rows-returned figure is reported as -1.
func (r *Results) Summary() string {
	rowsReturned := int64(r.RowsReturned)
	if r.countOnly {
		rowsReturned = -1
	}
	return fmt.Sprintf("total result row count: %d / %d; nrows_processed=%d",
		r.ResultCount, rowsReturned, r.RowsProcessed)
}

// WriteTimingsCSV emits one header line followed by one sample per object.
func (r *Results) WriteTimingsCSV(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "dispatch,response,read_ns,eval_ns,eval2_ns"); err != nil {
		return errors.WithStack(err)
	}
	for _, t := range r.Timings {
		_, err := fmt.Fprintf(w, "%d,%d,%d,%d,%d\n",
			t.Dispatch, t.Response, t.ReadNs, t.EvalNs, t.Eval2Ns)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func (r *Results) WriteTimingsFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	bw := bufio.NewWriter(f)
	if err := r.WriteTimingsCSV(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}
