package computing

import (
	"time"

	"github.com/lagrangedao/go-computing-market/conf"
)

// Policy carries the configurable rules the services apply.
type Policy struct {
	// ChainJobDeadline and ChainJobRequiredNodes stand in for data a JobCreated
	// event does not carry.
	ChainJobDeadline      time.Duration
	ChainJobRequiredNodes int
	EnforceNodeCapacity   bool
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(conf.DefaultConfig().Policy)
}

func PolicyFromConfig(p conf.Policy) Policy {
	return Policy{
		ChainJobDeadline:      p.ChainJobDeadline(),
		ChainJobRequiredNodes: p.ChainJobRequiredNodes,
		EnforceNodeCapacity:   p.EnforceNodeCapacity,
	}
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
