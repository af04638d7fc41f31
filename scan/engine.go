// Package scan implements the distributed scan execution engine: a
// queue-depth-bounded dispatcher issuing per-object requests against the
// storage collaborator, and a worker pool that decodes, evaluates and
// aggregates the completed responses.
package scan

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/conf"
	"github.com/skyhookdm/skyquery/errors"
	"github.com/skyhookdm/skyquery/eval"
	"github.com/skyhookdm/skyquery/metrics"
	"github.com/skyhookdm/skyquery/storage"
)

type Engine struct {
	cfg     *conf.Config
	store   storage.Storage
	metrics metrics.Factory
	out     io.Writer
}

func NewEngine(cfg *conf.Config, store storage.Storage, metricsFactory metrics.Factory) *Engine {
	if metricsFactory == nil {
		metricsFactory = metrics.NullFactory{}
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		metrics: metricsFactory,
		out:     os.Stdout,
	}
}

// SetOutput redirects the human-readable row output, used by tests.
func (e *Engine) SetOutput(w io.Writer) {
	e.out = w
}

// runContext is the whole of one run's mutable state. It is constructed at
// run start, shared by reference with the dispatcher and the workers, and
// torn down when every worker has joined, no state survives across runs.
type runContext struct {
	qd *common.QueryDescriptor
	ev *eval.Evaluator

	dispatchLock   sync.Mutex
	dispatchCond   *sync.Cond
	outstanding    int
	maxOutstanding int

	ready chan *readyItem
	wg    sync.WaitGroup

	resultCount   uint64
	rowsReturned  uint64
	rowsProcessed uint64

	timingsLock sync.Mutex
	timings     []Timing

	errLock sync.Mutex
	runErr  error
	stopped int32

	printer *rowPrinter

	objectsScanned metrics.Counter
	rowsMatchedCtr metrics.Counter
	rowsProcCtr    metrics.Counter
}

// readyItem transfers ownership of one completed response from the
// completion callback to exactly one worker.
type readyItem struct {
	resp  *storage.Response
	times Timing
}

func (rc *runContext) recordFatal(err error) {
	rc.errLock.Lock()
	if rc.runErr == nil {
		rc.runErr = err
	}
	rc.errLock.Unlock()
	atomic.StoreInt32(&rc.stopped, 1)
}

func (rc *runContext) isStopped() bool {
	return atomic.LoadInt32(&rc.stopped) == 1
}

// BuildDescriptor derives the immutable query descriptor for one run from
// the configuration. Projection and fastpath flags are resolved here: a
// request list equal to the full column set with no predicate is the
// identity projection and enables the fastpath.
func BuildDescriptor(cfg *conf.Config) (*common.QueryDescriptor, error) {
	tableSchema := common.LineitemSchema()
	variant, err := eval.ParseVariant(cfg.Query)
	if err != nil {
		return nil, err
	}

	projection := cfg.Projection
	querySchema := tableSchema
	if !common.IsIdentityProjection(tableSchema, cfg.ProjectCols) {
		projection = true
		querySchema, err = common.ProjectSchema(tableSchema, cfg.ProjectCols)
		if err != nil {
			return nil, err
		}
	} else if projection {
		// explicit projection flag with the default column list selects the
		// benchmark's (orderkey, linenumber) pair
		querySchema, err = common.ProjectSchema(tableSchema,
			common.OrderKeyCol+","+common.LineNumberCol)
		if err != nil {
			return nil, err
		}
	}
	fastpath := variant == eval.VariantIdentity && !projection

	return &common.QueryDescriptor{
		Variant:       cfg.Query,
		ExtendedPrice: cfg.ExtendedPrice,
		OrderKey:      cfg.OrderKey,
		LineNumber:    cfg.LineNumber,
		ShipDateLow:   cfg.ShipDateLow,
		ShipDateHigh:  cfg.ShipDateHigh,
		DiscountLow:   cfg.DiscountLow,
		DiscountHigh:  cfg.DiscountHigh,
		Quantity:      cfg.Quantity,
		CommentRegex:  cfg.CommentRegex,
		UseIndex:      cfg.UseIndex,
		Projection:    projection,
		Fastpath:      fastpath,
		UseContainer:  cfg.Format == conf.FormatContainer,
		TableSchema:   common.SerializeSchema(tableSchema),
		QuerySchema:   common.SerializeSchema(querySchema),
		ExtraRowCost:  cfg.ExtraRowCost,
	}, nil
}

// Run executes the configured query over the full target set and returns the
// aggregated results. Configuration errors are reported before any dispatch
// occurs; a storage call failure terminates all threads cleanly and is
// returned after they join.
func (e *Engine) Run() (*Results, error) {
	qd, err := BuildDescriptor(e.cfg)
	if err != nil {
		return nil, err
	}
	ev, err := eval.Compile(qd, e.cfg.RemoteEval)
	if err != nil {
		return nil, err
	}
	log.Infof("%s", ev.SQLText())

	printer, err := newRowPrinter(e.cfg, qd, ev, e.out)
	if err != nil {
		return nil, err
	}

	workList := buildWorkList(e.cfg.NumObjs, e.cfg.Dir)
	rc := &runContext{
		qd: qd,
		ev: ev,
		// room for every response, completion callbacks never block on a send
		ready:   make(chan *readyItem, len(workList)),
		printer: printer,
	}
	rc.dispatchCond = sync.NewCond(&rc.dispatchLock)
	if err := e.createCounters(rc); err != nil {
		return nil, err
	}

	for i := 0; i < e.cfg.WorkerThreads; i++ {
		rc.wg.Add(1)
		go e.worker(rc)
	}

	e.dispatchAll(rc, workList)
	e.drain(rc)

	// outstanding reached zero, so every callback has finished its handoff
	// and nothing can send on the channel again
	close(rc.ready)
	rc.wg.Wait()

	// all workers have retired, counters have no concurrent writers left
	res := &Results{
		ResultCount:    atomic.LoadUint64(&rc.resultCount),
		RowsReturned:   atomic.LoadUint64(&rc.rowsReturned),
		RowsProcessed:  atomic.LoadUint64(&rc.rowsProcessed),
		Timings:        rc.timings,
		MaxOutstanding: rc.maxOutstanding,
		countOnly:      ev.Variant().CountOnly() && e.cfg.RemoteEval,
	}
	rc.errLock.Lock()
	runErr := rc.runErr
	rc.errLock.Unlock()
	if runErr != nil {
		return nil, runErr
	}
	return res, nil
}

func (e *Engine) createCounters(rc *runContext) error {
	var err error
	if rc.objectsScanned, err = e.metrics.CreateCounter("skyquery_objects_scanned_total",
		"Number of storage objects processed"); err != nil {
		return err
	}
	if rc.rowsProcCtr, err = e.metrics.CreateCounter("skyquery_rows_processed_total",
		"Number of rows inspected, local or remote"); err != nil {
		return err
	}
	rc.rowsMatchedCtr, err = e.metrics.CreateCounter("skyquery_rows_matched_total",
		"Number of rows passing the predicate")
	return err
}

// dispatchAll issues one request per object, never letting more than
// QueueDepth requests be in flight at once.
func (e *Engine) dispatchAll(rc *runContext, workList []string) {
	qdepth := e.cfg.QueueDepth
	var dispatchQd *common.QueryDescriptor
	if e.cfg.RemoteEval {
		dispatchQd = rc.qd
	}
	for _, oid := range workList {
		if rc.isStopped() {
			return
		}
		rc.dispatchLock.Lock()
		for rc.outstanding >= qdepth {
			rc.dispatchCond.Wait()
		}
		rc.outstanding++
		if rc.outstanding > rc.maxOutstanding {
			rc.maxOutstanding = rc.outstanding
		}
		rc.dispatchLock.Unlock()

		times := Timing{Dispatch: common.NanoTime()}
		err := e.store.SubmitAsync(oid, dispatchQd, func(resp *storage.Response) {
			e.onComplete(rc, resp, times)
		})
		if err != nil {
			rc.dispatchLock.Lock()
			rc.outstanding--
			rc.dispatchLock.Unlock()
			rc.recordFatal(errors.NewRemoteCallFailureError(oid, err))
			return
		}
	}
}

// onComplete runs on the storage collaborator's goroutine. It transfers
// response ownership onto the processing queue and then frees the dispatch
// slot, no row-level work happens here. The handoff must come first: the
// dispatch slot is what keeps the channel open, outstanding only reaches
// zero once every response is either enqueued or recorded as fatal.
func (e *Engine) onComplete(rc *runContext, resp *storage.Response, times Timing) {
	times.Response = common.NanoTime()

	if resp.Err != nil {
		// the engine must not silently under-count, a failed storage call
		// fails the whole run
		rc.recordFatal(errors.NewRemoteCallFailureError(resp.OID, resp.Err))
	} else {
		// capacity covers the whole work list, this never blocks
		rc.ready <- &readyItem{resp: resp, times: times}
	}

	rc.dispatchLock.Lock()
	rc.outstanding--
	rc.dispatchLock.Unlock()
	rc.dispatchCond.Signal()
}

// drain blocks, polling with backoff, until no requests remain in flight.
func (e *Engine) drain(rc *runContext) {
	backoff := time.Millisecond
	for {
		rc.dispatchLock.Lock()
		remaining := rc.outstanding
		rc.dispatchLock.Unlock()
		if remaining == 0 {
			return
		}
		log.Debugf("draining ios: %d remaining", remaining)
		time.Sleep(backoff)
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

func (e *Engine) worker(rc *runContext) {
	defer rc.wg.Done()
	for item := range rc.ready {
		if err := e.processResponse(rc, item); err != nil {
			if errors.IsRecoverable(err) {
				// this object's contribution is skipped, the run continues
				log.Warnf("skipping object %s: %v", item.resp.OID, err)
				continue
			}
			rc.recordFatal(err)
		}
	}
}

// processResponse runs one response through codec, schema resolution,
// evaluation and aggregation. The worker owns the response exclusively.
func (e *Engine) processResponse(rc *runContext, item *readyItem) error {
	eval2Start := common.NanoTime()
	times := item.times
	buff := item.resp.Buf
	remote := e.cfg.RemoteEval

	if remote {
		readNs, evalNs, remoteRows, payload, err := storage.DecodeRemoteResult(buff)
		if err != nil {
			return err
		}
		times.ReadNs = readNs
		times.EvalNs = evalNs
		atomic.AddUint64(&rc.rowsProcessed, remoteRows)
		rc.rowsProcCtr.Add(float64(remoteRows))
		buff = payload
	}

	var err error
	if remote && rc.ev.Variant().CountOnly() {
		err = e.processRemoteCount(rc, buff)
	} else if rc.qd.UseContainer {
		err = e.processContainer(rc, buff, remote)
	} else {
		err = e.processFixed(rc, buff, remote)
	}
	if err != nil {
		return err
	}

	rc.objectsScanned.Inc()
	times.Eval2Ns = common.NanoTime() - eval2Start
	rc.timingsLock.Lock()
	rc.timings = append(rc.timings, times)
	rc.timingsLock.Unlock()
	return nil
}

// processRemoteCount handles count-style variants evaluated inside storage:
// the payload is the match count, no rows come back.
func (e *Engine) processRemoteCount(rc *runContext, payload []byte) error {
	count, err := storage.DecodeMatchCount(payload)
	if err != nil {
		return err
	}
	atomic.AddUint64(&rc.resultCount, count)
	rc.rowsMatchedCtr.Add(float64(count))
	return nil
}

func (e *Engine) processContainer(rc *runContext, buff []byte, remote bool) error {
	decodeSchema := rc.ev.SchemaIn()
	if remote && rc.qd.Projection {
		// storage re-shaped the rows to the output schema
		decodeSchema = rc.ev.SchemaOut()
	}
	tbl, err := common.DecodeContainer(buff, decodeSchema)
	if err != nil {
		return err
	}
	atomic.AddUint64(&rc.rowsReturned, uint64(tbl.RowCount()))
	res, err := rc.ev.EvalContainer(tbl, remote)
	if err != nil {
		return err
	}
	e.aggregate(rc, res.RowsMatched, res.RowsProcessed, remote)
	if res.Rows != nil {
		rc.printer.printRows(res.Rows)
	}
	return nil
}

func (e *Engine) processFixed(rc *runContext, buff []byte, remote bool) error {
	layout := rc.ev.LayoutIn()
	if remote && rc.qd.Projection {
		layout = rc.ev.LayoutProjected()
	}
	atomic.AddUint64(&rc.rowsReturned, uint64(layout.NumRows(buff)))
	res, err := rc.ev.EvalFixed(buff, remote)
	if err != nil {
		return err
	}
	e.aggregate(rc, res.RowsMatched, res.RowsProcessed, remote)
	for _, row := range res.FixedRows {
		rc.printer.printFixed(row)
	}
	return nil
}

func (e *Engine) aggregate(rc *runContext, matched int, processed int, remote bool) {
	atomic.AddUint64(&rc.resultCount, uint64(matched))
	rc.rowsMatchedCtr.Add(float64(matched))
	if !remote {
		atomic.AddUint64(&rc.rowsProcessed, uint64(processed))
		rc.rowsProcCtr.Add(float64(processed))
	}
}
