package dispatch

import "time"

type Options struct {
	// QueueSize is the per-follower bounded queue capacity.
	QueueSize int
	// UseAsyncClient selects the async client discipline for outbound calls.
	UseAsyncClient bool
	// DrainTimeout bounds the graceful sender shutdown during a topology
	// rebuild, the old sender set is force-replaced once it elapses.
	DrainTimeout time.Duration
	// InQueueWarnThreshold is how long an item may sit in a follower queue
	// before the sender logs it.
	InQueueWarnThreshold time.Duration
}

func NewOptions(opt ...Option) *Options {
	opts := &Options{
		QueueSize:            4096,
		DrainTimeout:         10 * time.Second,
		InQueueWarnThreshold: time.Second,
	}
	for _, o := range opt {
		o(opts)
	}
	return opts
}

type Option func(*Options)

func WithQueueSize(size int) Option {
	return func(o *Options) {
		o.QueueSize = size
	}
}

func WithUseAsyncClient(v bool) Option {
	return func(o *Options) {
		o.UseAsyncClient = v
	}
}

func WithDrainTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.DrainTimeout = d
	}
}
