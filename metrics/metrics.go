package metrics

type Counter interface {
	Inc()
	Add(delta float64)
}

type Factory interface {
	CreateCounter(name string, description string) (Counter, error)

	Start() error

	Stop() error
}

// NullFactory is used when metrics export is disabled.
type NullFactory struct{}

func (NullFactory) CreateCounter(string, string) (Counter, error) { return nullCounter{}, nil }
func (NullFactory) Start() error                                  { return nil }
func (NullFactory) Stop() error                                   { return nil }

type nullCounter struct{}

func (nullCounter) Inc()        {}
func (nullCounter) Add(float64) {}
