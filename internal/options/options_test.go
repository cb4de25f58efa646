package options

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestDefaults(t *testing.T) {
	opts := New()
	opts.ConfigureWithViper(viper.New())

	assert.Equal(t, uint64(1), opts.NodeID)
	assert.Equal(t, "snappy", opts.Compression)
	assert.Equal(t, 4096, opts.Dispatch.QueueSize)
	assert.Equal(t, time.Second*10, opts.Dispatch.DrainTimeout)
	assert.Equal(t, 1024, opts.Relay.BufferCapacity)
	assert.Equal(t, 16, opts.Relay.SenderCount)
	assert.Equal(t, time.Millisecond*10, opts.Relay.PollInterval)
	// debug mode defaults the log level down
	assert.Equal(t, zapcore.DebugLevel, opts.Logger.Level)
}

func TestConfigureWithViper(t *testing.T) {
	vp := viper.New()
	vp.Set("nodeId", 3)
	vp.Set("mode", "release")
	vp.Set("compression", "gzip")
	vp.Set("dispatch.queueSize", 128)
	vp.Set("relay.bufferCapacity", 64)
	vp.Set("relay.senderCount", 4)
	vp.Set("peers", []string{"1@a:1", "2@b:2", "3@c:3"})

	opts := New()
	opts.ConfigureWithViper(vp)

	assert.Equal(t, uint64(3), opts.NodeID)
	assert.Equal(t, ReleaseMode, opts.Mode)
	assert.Equal(t, "gzip", opts.Compression)
	assert.Equal(t, 128, opts.Dispatch.QueueSize)
	assert.Equal(t, 64, opts.Relay.BufferCapacity)
	assert.Equal(t, 4, opts.Relay.SenderCount)
	assert.Equal(t, []string{"1@a:1", "2@b:2", "3@c:3"}, opts.Peers)
}

func TestPeerNodes(t *testing.T) {
	opts := New(WithPeers([]string{"1@127.0.0.1:7501", "2@127.0.0.1:7502"}))
	nodes, err := opts.PeerNodes()
	assert.NoError(t, err)
	assert.Equal(t, 2, len(nodes))
	assert.Equal(t, uint64(1), nodes[0].ID)
	assert.Equal(t, "127.0.0.1:7501", nodes[0].Addr)
	assert.Equal(t, uint64(2), nodes[1].ID)
}

func TestPeerNodesInvalid(t *testing.T) {
	for _, peer := range []string{"127.0.0.1:7501", "x@127.0.0.1:7501", "1@"} {
		opts := New(WithPeers([]string{peer}))
		_, err := opts.PeerNodes()
		assert.Error(t, err, peer)
	}
}
