package options

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/chronostore/chronostore/pkg/replica"
)

type Mode string

const (
	DebugMode   Mode = "debug"
	ReleaseMode Mode = "release"
)

type Options struct {
	vp      *viper.Viper
	Mode    Mode
	NodeID  uint64
	Addr    string   // listen addr, e.g. tcp://0.0.0.0:7500
	Peers   []string // replication group members as id@host:port, self included
	RootDir string

	// Compression names the codec used for batch requests: none, snappy or gzip.
	Compression string

	Dispatch struct {
		QueueSize      int // per-follower queue capacity
		DrainTimeout   time.Duration
		UseAsyncClient bool
	}

	Relay struct {
		BufferCapacity int
		SenderCount    int
		PollInterval   time.Duration
		UseAsyncClient bool
	}

	Logger struct {
		Dir     string
		Level   zapcore.Level
		LineNum bool
	}
}

func New(op ...Option) *Options {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	opts := &Options{
		Mode:        DebugMode,
		NodeID:      1,
		Addr:        "tcp://0.0.0.0:7500",
		RootDir:     path.Join(homeDir, "chronostore"),
		Compression: "snappy",
	}
	opts.Dispatch.QueueSize = 4096
	opts.Dispatch.DrainTimeout = time.Second * 10
	opts.Relay.BufferCapacity = 1024
	opts.Relay.SenderCount = 16
	opts.Relay.PollInterval = time.Millisecond * 10
	opts.Logger.Level = zapcore.InfoLevel

	for _, o := range op {
		o(opts)
	}
	return opts
}

func (o *Options) ConfigureWithViper(vp *viper.Viper) {
	o.vp = vp

	modeStr := o.getString("mode", string(o.Mode))
	if strings.TrimSpace(modeStr) != "" {
		o.Mode = Mode(modeStr)
	}

	o.NodeID = o.getUint64("nodeId", o.NodeID)
	o.Addr = o.getString("addr", o.Addr)
	o.RootDir = o.getString("rootDir", o.RootDir)
	if peers := vp.GetStringSlice("peers"); len(peers) > 0 {
		o.Peers = peers
	}

	o.Compression = o.getString("compression", o.Compression)

	o.Dispatch.QueueSize = o.getInt("dispatch.queueSize", o.Dispatch.QueueSize)
	o.Dispatch.DrainTimeout = o.getDuration("dispatch.drainTimeout", o.Dispatch.DrainTimeout)
	o.Dispatch.UseAsyncClient = o.getBool("dispatch.useAsyncClient", o.Dispatch.UseAsyncClient)

	o.Relay.BufferCapacity = o.getInt("relay.bufferCapacity", o.Relay.BufferCapacity)
	o.Relay.SenderCount = o.getInt("relay.senderCount", o.Relay.SenderCount)
	o.Relay.PollInterval = o.getDuration("relay.pollInterval", o.Relay.PollInterval)
	o.Relay.UseAsyncClient = o.getBool("relay.useAsyncClient", o.Relay.UseAsyncClient)

	o.configureLog(vp)
}

// PeerNodes parses the configured peer list into replica nodes. Entries
// must look like id@host:port.
func (o *Options) PeerNodes() ([]replica.Node, error) {
	nodes := make([]replica.Node, 0, len(o.Peers))
	for _, peer := range o.Peers {
		idx := strings.Index(peer, "@")
		if idx <= 0 || idx == len(peer)-1 {
			return nil, fmt.Errorf("invalid peer %q, expected id@host:port", peer)
		}
		id, err := strconv.ParseUint(peer[:idx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid peer id in %q: %w", peer, err)
		}
		nodes = append(nodes, replica.Node{ID: id, Addr: peer[idx+1:]})
	}
	return nodes, nil
}

func (o *Options) configureLog(vp *viper.Viper) {
	logLevel := vp.GetInt("logger.level")
	if logLevel == 0 {
		if o.Mode == DebugMode {
			logLevel = int(zapcore.DebugLevel)
		} else {
			logLevel = int(zapcore.InfoLevel)
		}
	} else {
		logLevel = logLevel - 2
	}
	o.Logger.Level = zapcore.Level(logLevel)
	o.Logger.Dir = vp.GetString("logger.dir")
	if strings.TrimSpace(o.Logger.Dir) == "" {
		o.Logger.Dir = "logs"
	}
	if !strings.HasPrefix(strings.TrimSpace(o.Logger.Dir), "/") {
		o.Logger.Dir = filepath.Join(o.RootDir, o.Logger.Dir)
	}
	o.Logger.LineNum = o.getBool("logger.lineNum", o.Logger.LineNum)
}

type Option func(opts *Options)

func WithNodeID(id uint64) Option {
	return func(opts *Options) {
		opts.NodeID = id
	}
}

func WithAddr(addr string) Option {
	return func(opts *Options) {
		opts.Addr = addr
	}
}

func WithPeers(peers []string) Option {
	return func(opts *Options) {
		opts.Peers = peers
	}
}

func WithCompression(name string) Option {
	return func(opts *Options) {
		opts.Compression = name
	}
}

func WithRootDir(dir string) Option {
	return func(opts *Options) {
		opts.RootDir = dir
	}
}

func WithLoggerDir(dir string) Option {
	return func(opts *Options) {
		opts.Logger.Dir = dir
	}
}

func WithLoggerLevel(level zapcore.Level) Option {
	return func(opts *Options) {
		opts.Logger.Level = level
	}
}

func (o *Options) getString(key string, defaultValue string) string {
	v := o.vp.GetString(key)
	if v == "" {
		return defaultValue
	}
	return v
}

func (o *Options) getInt(key string, defaultValue int) int {
	v := o.vp.GetInt(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getUint64(key string, defaultValue uint64) uint64 {
	v := o.vp.GetUint64(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getBool(key string, defaultValue bool) bool {
	objV := o.vp.Get(key)
	if objV == nil {
		return defaultValue
	}
	return cast.ToBool(objV)
}

func (o *Options) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := o.vp.GetDuration(key)
	if v == 0 {
		return defaultValue
	}
	return v
}
