package conf

import (
	"fmt"

	"github.com/skyhookdm/skyquery/common"
	"github.com/skyhookdm/skyquery/errors"
)

const (
	DefaultQueueDepth          = 1
	DefaultWorkerThreads       = 1
	DefaultBuildIndexBatchSize = 1000
	DefaultDispatchOrder       = OrderForward
)

// Dispatch orders for the object work list.
const (
	OrderForward  = "fwd"
	OrderBackward = "bwd"
	OrderShuffled = "rnd"
)

// Row formats for object data.
const (
	FormatFixed     = "fixed"
	FormatContainer = "container"
)

// Config is the full configuration of one query run. It is read once at run
// start and never mutated afterwards.
type Config struct {
	Pool          string `json:"pool,omitempty"`
	NumObjs       int    `json:"num_objs,omitempty"`
	WorkerThreads int    `json:"worker_threads,omitempty"`
	QueueDepth    int    `json:"queue_depth,omitempty"`
	Dir           string `json:"dir,omitempty"`
	Format        string `json:"format,omitempty"`

	Query         string `json:"query,omitempty"`
	RemoteEval    bool   `json:"remote_eval,omitempty"`
	UseIndex      bool   `json:"use_index,omitempty"`
	Projection    bool   `json:"projection,omitempty"`
	ProjectCols   string `json:"project_cols,omitempty"`
	Quiet         bool   `json:"quiet,omitempty"`
	ExtraRowCost  uint64 `json:"extra_row_cost,omitempty"`
	TimingLogFile string `json:"timing_log_file,omitempty"`

	BuildIndex          bool `json:"build_index,omitempty"`
	BuildIndexBatchSize int  `json:"build_index_batch_size,omitempty"`

	// query parameters
	ExtendedPrice float64 `json:"extended_price,omitempty"`
	OrderKey      int32   `json:"order_key,omitempty"`
	LineNumber    int32   `json:"line_number,omitempty"`
	ShipDateLow   int32   `json:"ship_date_low,omitempty"`
	ShipDateHigh  int32   `json:"ship_date_high,omitempty"`
	DiscountLow   float64 `json:"discount_low,omitempty"`
	DiscountHigh  float64 `json:"discount_high,omitempty"`
	Quantity      float64 `json:"quantity,omitempty"`
	CommentRegex  string  `json:"comment_regex,omitempty"`

	DataDir               string `json:"data_dir,omitempty"`
	EnableMetrics         bool   `json:"enable_metrics,omitempty"`
	MetricsHTTPListenAddr string `json:"metrics_http_listen_addr,omitempty"`
}

// NewDefaultConfig returns a Config with the sentinel parameter values and
// defaults applied.
func NewDefaultConfig() *Config {
	return &Config{
		WorkerThreads:       DefaultWorkerThreads,
		QueueDepth:          DefaultQueueDepth,
		Dir:                 DefaultDispatchOrder,
		Format:              FormatFixed,
		ProjectCols:         common.WildcardProjection,
		BuildIndexBatchSize: DefaultBuildIndexBatchSize,
		ShipDateLow:         common.UnsetShipDate,
		ShipDateHigh:        common.UnsetShipDate,
		DiscountLow:         common.UnsetDiscount,
		DiscountHigh:        common.UnsetDiscount,
	}
}

func (c *Config) Validate() error { //nolint:gocyclo
	if c.Pool == "" {
		return errors.NewInvalidConfigurationError("Pool must be specified")
	}
	if c.NumObjs < 1 {
		return errors.NewInvalidConfigurationError("NumObjs must be >= 1")
	}
	if c.WorkerThreads < 1 {
		return errors.NewInvalidConfigurationError("WorkerThreads must be >= 1")
	}
	if c.QueueDepth < 1 {
		return errors.NewInvalidConfigurationError("QueueDepth must be >= 1")
	}
	switch c.Dir {
	case OrderForward, OrderBackward, OrderShuffled:
	default:
		return errors.NewInvalidConfigurationError(
			fmt.Sprintf("Dir must be %s, %s or %s", OrderForward, OrderBackward, OrderShuffled))
	}
	switch c.Format {
	case FormatFixed, FormatContainer:
	default:
		return errors.NewInvalidConfigurationError(
			fmt.Sprintf("Format must be %s or %s", FormatFixed, FormatContainer))
	}
	if c.BuildIndex {
		if c.BuildIndexBatchSize < 1 {
			return errors.NewInvalidConfigurationError("BuildIndexBatchSize must be >= 1")
		}
		return nil
	}
	if c.Query == "" {
		return errors.NewInvalidConfigurationError("Query must be specified")
	}
	if c.EnableMetrics && c.MetricsHTTPListenAddr == "" {
		return errors.NewInvalidConfigurationError("MetricsHTTPListenAddr must be specified when metrics are enabled")
	}
	return nil
}
