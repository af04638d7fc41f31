package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/alecthomas/kong"
	"muzzammil.xyz/jsonc"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/conf"
	"github.com/skyhookdm/skyquery/errors"
	"github.com/skyhookdm/skyquery/log"
	"github.com/skyhookdm/skyquery/metrics"
	"github.com/skyhookdm/skyquery/metrics/prometheus"
	"github.com/skyhookdm/skyquery/scan"
	"github.com/skyhookdm/skyquery/storage"
)

type cli struct {
	Conf string     `help:"Path to a jsonc configuration file. When given, query flags are taken from the file instead." optional:""`
	Log  log.Config `help:"Logging configuration." embed:"" prefix:"log-"`

	Pool          string `help:"Name of the object pool to run against." default:"tpchdata"`
	NumObjs       int    `help:"Number of target objects." default:"1"`
	Wthreads      int    `help:"Number of worker threads." default:"1"`
	Qdepth        int    `help:"Maximum number of requests in flight." default:"1"`
	Dir           string `help:"Dispatch order over the work list." enum:"fwd,bwd,rnd" default:"fwd"`
	Format        string `help:"Row format of the objects." enum:"fixed,container" default:"fixed"`
	Query         string `help:"Query variant to run." default:""`
	UseCls        bool   `help:"Push the query down into storage for evaluation."`
	UseIndex      bool   `help:"Use the point-lookup index, requires --use-cls."`
	Projection    bool   `help:"Return only the orderkey and linenumber columns."`
	ProjectCols   string `help:"Comma separated list of columns to return." default:"*"`
	Quiet         bool   `help:"Suppress row output."`
	ExtraRowCost  uint64 `help:"Synthetic per-row cost added for each predicate match."`
	TimingLogFile string `help:"Write per-object timing samples to this CSV file." optional:""`

	BuildIndex          bool `help:"Build the point-lookup index instead of running a query."`
	BuildIndexBatchSize int  `help:"Number of index entries inserted per batch." default:"1000"`

	ExtendedPrice float64 `help:"Extended price bound for queries a, b and c."`
	OrderKey      int32   `help:"Order key for query d."`
	LineNumber    int32   `help:"Line number for query d."`
	ShipDateLow   int32   `help:"Inclusive ship date lower bound for query e." default:"-9999"`
	ShipDateHigh  int32   `help:"Exclusive ship date upper bound for query e." default:"-9999"`
	DiscountLow   float64 `help:"Exclusive discount lower bound for query e." default:"-9999.0"`
	DiscountHigh  float64 `help:"Exclusive discount upper bound for query e." default:"-9999.0"`
	Quantity      float64 `help:"Exclusive quantity upper bound for query e."`
	CommentRegex  string  `help:"Regex matched against the comment column for query f."`

	DataDir               string `help:"Directory for persistent object storage. When empty objects live in memory." optional:""`
	EnableMetrics         bool   `help:"Expose prometheus metrics over HTTP."`
	MetricsHTTPListenAddr string `help:"Listen address for the metrics endpoint." default:"localhost:2112"`

	LoadRowsPerObj int `help:"Generate this many synthetic lineitem rows per object before running."`
}

type runner struct {
	out io.Writer
}

func (r *runner) run(args []string) error {
	if r.out == nil {
		r.out = os.Stdout
	}
	var cl cli
	parser, err := kong.New(&cl)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := parser.Parse(args); err != nil {
		return errors.WithStack(err)
	}
	if err := cl.Log.Configure(); err != nil {
		return err
	}
	cfg, err := cl.buildConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var metricsFactory metrics.Factory = metrics.NullFactory{}
	if cfg.EnableMetrics {
		metricsFactory = prometheus.NewFactory(cfg.MetricsHTTPListenAddr)
	}
	if err := metricsFactory.Start(); err != nil {
		return err
	}
	defer func() {
		_ = metricsFactory.Stop()
	}()

	store, err := storage.NewLocalStore(storage.Config{
		Pool:      cfg.Pool,
		DataDir:   cfg.DataDir,
		TableName: "lineitem",
		Schema:    common.LineitemSchema(),
	})
	if err != nil {
		return err
	}
	if err := store.Start(); err != nil {
		return err
	}
	defer func() {
		_ = store.Stop()
	}()

	if cl.LoadRowsPerObj > 0 {
		container := cfg.Format == conf.FormatContainer
		if err := storage.LoadSyntheticObjects(store, cfg.NumObjs, cl.LoadRowsPerObj, container); err != nil {
			return err
		}
	}

	engine := scan.NewEngine(cfg, store, metricsFactory)
	engine.SetOutput(r.out)
	if cfg.BuildIndex {
		return engine.RunIndexBuild()
	}
	res, err := engine.Run()
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, res.Summary())
	if cfg.TimingLogFile != "" {
		return res.WriteTimingsFile(cfg.TimingLogFile)
	}
	return nil
}

// buildConfig resolves the run configuration, either from a jsonc file or
// from the command line flags.
func (c *cli) buildConfig() (*conf.Config, error) {
	cfg := conf.NewDefaultConfig()
	if c.Conf != "" {
		b, err := ioutil.ReadFile(c.Conf)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		// jsonc supports comments in JSON
		b = jsonc.ToJSON(b)
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, errors.WithStack(err)
		}
		return cfg, nil
	}
	cfg.Pool = c.Pool
	cfg.NumObjs = c.NumObjs
	cfg.WorkerThreads = c.Wthreads
	cfg.QueueDepth = c.Qdepth
	cfg.Dir = c.Dir
	cfg.Format = c.Format
	cfg.Query = c.Query
	cfg.RemoteEval = c.UseCls
	cfg.UseIndex = c.UseIndex
	cfg.Projection = c.Projection
	cfg.ProjectCols = c.ProjectCols
	cfg.Quiet = c.Quiet
	cfg.ExtraRowCost = c.ExtraRowCost
	cfg.TimingLogFile = c.TimingLogFile
	cfg.BuildIndex = c.BuildIndex
	cfg.BuildIndexBatchSize = c.BuildIndexBatchSize
	cfg.ExtendedPrice = c.ExtendedPrice
	cfg.OrderKey = c.OrderKey
	cfg.LineNumber = c.LineNumber
	cfg.ShipDateLow = c.ShipDateLow
	cfg.ShipDateHigh = c.ShipDateHigh
	cfg.DiscountLow = c.DiscountLow
	cfg.DiscountHigh = c.DiscountHigh
	cfg.Quantity = c.Quantity
	cfg.CommentRegex = c.CommentRegex
	cfg.DataDir = c.DataDir
	cfg.EnableMetrics = c.EnableMetrics
	cfg.MetricsHTTPListenAddr = c.MetricsHTTPListenAddr
	return cfg, nil
}
