package relay

import "time"

const (
	// reservedRelaySenders is the number of workers draining the relay buffer.
	reservedRelaySenders = 4
)

type Options struct {
	// SenderCount is the size of the goroutine pool used to push
	// relayed requests to downstream receivers.
	SenderCount int
	// BufferCapacity bounds the number of requests waiting to be relayed.
	// Offer blocks once the buffer is full.
	BufferCapacity int
	// PollInterval is how often a blocked Offer rechecks the buffer for room.
	PollInterval time.Duration
	// UseAsyncClient selects the async transport client for relayed sends.
	UseAsyncClient bool
}

func NewOptions(opt ...Option) *Options {
	opts := &Options{
		SenderCount:    16,
		BufferCapacity: 1024,
		PollInterval:   time.Millisecond * 10,
		UseAsyncClient: false,
	}
	for _, o := range opt {
		o(opts)
	}
	return opts
}

type Option func(*Options)

func WithSenderCount(count int) Option {
	return func(opts *Options) {
		opts.SenderCount = count
	}
}

func WithBufferCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.BufferCapacity = capacity
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.PollInterval = interval
	}
}

func WithUseAsyncClient(use bool) Option {
	return func(opts *Options) {
		opts.UseAsyncClient = use
	}
}
