package scan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/conf"
	"github.com/skyhookdm/skyquery/errors"
	"github.com/skyhookdm/skyquery/storage"
)

func testConfig(numObjs int) *conf.Config {
	cfg := conf.NewDefaultConfig()
	cfg.Pool = "testpool"
	cfg.NumObjs = numObjs
	cfg.Quiet = true
	return cfg
}

func startStore(t *testing.T, numObjs int, rowsPerObj int, container bool) *storage.LocalStore {
	t.Helper()
	s, err := storage.NewLocalStore(storage.Config{
		Pool:      "testpool",
		TableName: "lineitem",
		Schema:    common.LineitemSchema(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
	})
	require.NoError(t, storage.LoadSyntheticObjects(s, numObjs, rowsPerObj, container))
	return s
}

func runEngine(t *testing.T, cfg *conf.Config, s *storage.LocalStore) *Results {
	t.Helper()
	engine := NewEngine(cfg, s, nil)
	engine.SetOutput(&bytes.Buffer{})
	res, err := engine.Run()
	require.NoError(t, err)
	return res
}

func TestScanCountQuery(t *testing.T) {
	const numObjs, rowsPerObj = 4, 50
	s := startStore(t, numObjs, rowsPerObj, false)

	cfg := testConfig(numObjs)
	cfg.Query = "a"
	cfg.ExtendedPrice = 0.01
	res := runEngine(t, cfg, s)

	// every generated price is above the bound
	require.Equal(t, uint64(numObjs*rowsPerObj), res.ResultCount)
	require.Equal(t, uint64(numObjs*rowsPerObj), res.RowsProcessed)
	require.Equal(t, numObjs, len(res.Timings))
}

func TestScanDeterministicAcrossOrderAndWorkers(t *testing.T) {
	const numObjs, rowsPerObj = 6, 40
	s := startStore(t, numObjs, rowsPerObj, false)

	var baseline *Results
	for _, dir := range []string{conf.OrderForward, conf.OrderBackward, conf.OrderShuffled} {
		for _, workers := range []int{1, 4} {
			cfg := testConfig(numObjs)
			cfg.Query = "b"
			cfg.ExtendedPrice = 1200.0
			cfg.Dir = dir
			cfg.WorkerThreads = workers
			cfg.QueueDepth = 3
			res := runEngine(t, cfg, s)
			if baseline == nil {
				baseline = res
				continue
			}
			require.Equal(t, baseline.ResultCount, res.ResultCount)
			require.Equal(t, baseline.RowsProcessed, res.RowsProcessed)
		}
	}
	require.Equal(t, uint64(numObjs*rowsPerObj), baseline.RowsProcessed)
}

func TestScanRemoteMatchesLocal(t *testing.T) {
	const numObjs, rowsPerObj = 5, 60
	s := startStore(t, numObjs, rowsPerObj, false)

	cfg := testConfig(numObjs)
	cfg.Query = "b"
	cfg.ExtendedPrice = 1200.0
	local := runEngine(t, cfg, s)

	cfg = testConfig(numObjs)
	cfg.Query = "b"
	cfg.ExtendedPrice = 1200.0
	cfg.RemoteEval = true
	remote := runEngine(t, cfg, s)

	require.Equal(t, local.ResultCount, remote.ResultCount)
	require.Equal(t, local.RowsProcessed, remote.RowsProcessed)
	// storage returned only the matching rows
	require.Equal(t, local.ResultCount, remote.RowsReturned)
}

func TestScanQueueDepthBound(t *testing.T) {
	const numObjs = 12
	s := startStore(t, numObjs, 10, false)

	cfg := testConfig(numObjs)
	cfg.Query = "a"
	cfg.ExtendedPrice = 0.01
	cfg.QueueDepth = 2
	cfg.WorkerThreads = 4
	res := runEngine(t, cfg, s)
	require.LessOrEqual(t, res.MaxOutstanding, 2)
	require.Equal(t, numObjs, len(res.Timings))
}

func TestScanCompletionsOutrunWorkers(t *testing.T) {
	// one deliberately slow worker lets completions pile up faster than they
	// are consumed, the run must still hand over every response and finish
	const numObjs, rowsPerObj = 6, 2000
	s := startStore(t, numObjs, rowsPerObj, false)

	cfg := testConfig(numObjs)
	cfg.Query = "a"
	cfg.ExtendedPrice = 0.01
	cfg.QueueDepth = 2
	cfg.WorkerThreads = 1
	cfg.ExtraRowCost = 500
	res := runEngine(t, cfg, s)

	require.Equal(t, uint64(numObjs*rowsPerObj), res.ResultCount)
	require.Equal(t, uint64(numObjs*rowsPerObj), res.RowsProcessed)
	require.Equal(t, numObjs, len(res.Timings))
	require.LessOrEqual(t, res.MaxOutstanding, 2)
}

func TestScanMalformedObjectIsSkipped(t *testing.T) {
	const numObjs, rowsPerObj = 3, 30
	s := startStore(t, numObjs, rowsPerObj, true)
	// corrupt one object, the run continues on the others
	require.NoError(t, s.PutObject(storage.ObjectName(1), []byte("garbage")))

	cfg := testConfig(numObjs)
	cfg.Format = conf.FormatContainer
	cfg.Query = "a"
	cfg.ExtendedPrice = 0.01
	res := runEngine(t, cfg, s)

	require.Equal(t, uint64((numObjs-1)*rowsPerObj), res.ResultCount)
	require.Equal(t, uint64((numObjs-1)*rowsPerObj), res.RowsProcessed)
	require.Equal(t, numObjs-1, len(res.Timings))
}

func TestScanMissingObjectIsFatal(t *testing.T) {
	s := startStore(t, 2, 10, false)

	// three targets configured, only two objects exist
	cfg := testConfig(3)
	cfg.Query = "a"
	cfg.ExtendedPrice = 0.01
	engine := NewEngine(cfg, s, nil)
	engine.SetOutput(&bytes.Buffer{})
	_, err := engine.Run()
	require.Error(t, err)
	require.Equal(t, errors.RemoteCallFailure, errors.ErrorCodeOf(err))
}

func TestScanRemoteCountSummary(t *testing.T) {
	const numObjs, rowsPerObj = 2, 20
	s := startStore(t, numObjs, rowsPerObj, false)

	cfg := testConfig(numObjs)
	cfg.Query = "a"
	cfg.ExtendedPrice = 0.01
	cfg.RemoteEval = true
	res := runEngine(t, cfg, s)

	require.Equal(t, uint64(numObjs*rowsPerObj), res.ResultCount)
	// counts transfer no rows, the summary reports -1 rows returned
	require.Equal(t, "total result row count: 40 / -1; nrows_processed=40", res.Summary())
}

func TestScanProjectionOutput(t *testing.T) {
	const numObjs = 1
	s := startStore(t, numObjs, 14, true)

	cfg := testConfig(numObjs)
	cfg.Format = conf.FormatContainer
	cfg.Query = "d"
	cfg.OrderKey = 2
	cfg.LineNumber = 3
	cfg.ProjectCols = common.OrderKeyCol + "," + common.LineNumberCol
	cfg.Quiet = false

	var out bytes.Buffer
	engine := NewEngine(cfg, s, nil)
	engine.SetOutput(&out)
	res, err := engine.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.ResultCount)
	require.Equal(t, "2|3\n", out.String())
}

func TestScanFixedProjectionOutput(t *testing.T) {
	// a local projection prints only the output columns even though the
	// matched rows still carry the full input layout
	const numObjs = 1
	s := startStore(t, numObjs, 14, false)

	cfg := testConfig(numObjs)
	cfg.Query = "d"
	cfg.OrderKey = 2
	cfg.LineNumber = 3
	cfg.Projection = true
	cfg.Quiet = false

	var out bytes.Buffer
	engine := NewEngine(cfg, s, nil)
	engine.SetOutput(&out)
	res, err := engine.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.ResultCount)
	require.Equal(t, "2|3\n", out.String())
}

func TestScanFullTupleOutput(t *testing.T) {
	const numObjs = 1
	s := startStore(t, numObjs, 7, false)

	cfg := testConfig(numObjs)
	cfg.Query = "d"
	cfg.OrderKey = 1
	cfg.LineNumber = 4
	cfg.Quiet = false

	var out bytes.Buffer
	engine := NewEngine(cfg, s, nil)
	engine.SetOutput(&out)
	res, err := engine.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.ResultCount)

	line := strings.TrimSuffix(out.String(), "\n")
	fields := strings.Split(line, "|")
	require.Equal(t, 7, len(fields))
	// extendedprice|orderkey|linenumber|shipdate|discount|quantity|comment
	require.Equal(t, "1", fields[1])
	require.Equal(t, "4", fields[2])
}

func TestScanSummaryLine(t *testing.T) {
	res := &Results{ResultCount: 5, RowsReturned: 70, RowsProcessed: 70}
	require.Equal(t, "total result row count: 5 / 70; nrows_processed=70", res.Summary())
}

func TestTimingsCSV(t *testing.T) {
	res := &Results{Timings: []Timing{
		{Dispatch: 1, Response: 2, ReadNs: 3, EvalNs: 4, Eval2Ns: 5},
		{Dispatch: 6, Response: 7, ReadNs: 8, EvalNs: 9, Eval2Ns: 10},
	}}
	var buf bytes.Buffer
	require.NoError(t, res.WriteTimingsCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, 3, len(lines))
	require.Equal(t, "dispatch,response,read_ns,eval_ns,eval2_ns", lines[0])
	require.Equal(t, "1,2,3,4,5", lines[1])
	require.Equal(t, "6,7,8,9,10", lines[2])
}

func TestBuildWorkList(t *testing.T) {
	fwd := buildWorkList(3, conf.OrderForward)
	require.Equal(t, []string{"obj.0", "obj.1", "obj.2"}, fwd)

	bwd := buildWorkList(3, conf.OrderBackward)
	require.Equal(t, []string{"obj.2", "obj.1", "obj.0"}, bwd)

	rnd := buildWorkList(64, conf.OrderShuffled)
	require.Equal(t, 64, len(rnd))
	seen := map[string]bool{}
	for _, oid := range rnd {
		seen[oid] = true
	}
	require.Equal(t, 64, len(seen))
}

func TestRunIndexBuildThenLookup(t *testing.T) {
	const numObjs = 3
	s := startStore(t, numObjs, 21, false)

	cfg := testConfig(numObjs)
	cfg.BuildIndex = true
	cfg.WorkerThreads = 2
	engine := NewEngine(cfg, s, nil)
	require.NoError(t, engine.RunIndexBuild())

	cfg = testConfig(numObjs)
	cfg.Query = "d"
	cfg.OrderKey = 2
	cfg.LineNumber = 5
	cfg.RemoteEval = true
	cfg.UseIndex = true
	res := runEngine(t, cfg, s)
	require.Equal(t, uint64(numObjs), res.ResultCount)
}

func TestBuildDescriptorProjection(t *testing.T) {
	cfg := testConfig(1)
	cfg.Query = "b"
	cfg.ExtendedPrice = 1.0
	cfg.ProjectCols = "orderkey,linenumber"
	qd, err := BuildDescriptor(cfg)
	require.NoError(t, err)
	require.True(t, qd.Projection)
	require.False(t, qd.Fastpath)

	proj, err := common.ParseSchema(qd.QuerySchema)
	require.NoError(t, err)
	require.Equal(t, 2, proj.NumColumns())
}

func TestBuildDescriptorFastpath(t *testing.T) {
	cfg := testConfig(1)
	cfg.Query = "fastpath"
	qd, err := BuildDescriptor(cfg)
	require.NoError(t, err)
	require.True(t, qd.Fastpath)
	require.False(t, qd.Projection)
}
