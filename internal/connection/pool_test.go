package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ethService struct{}

func (ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1))
}

func inProcClient(t *testing.T) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", ethService{}))
	t.Cleanup(server.Stop)
	return rpc.DialInProc(server)
}

func newTestPool(t *testing.T, names ...string) *ConnectionPool {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clients := make(map[string]*rpc.Client, len(names))
	for _, name := range names {
		clients[name] = inProcClient(t)
	}
	pool := NewConnectionPoolFromClients(clients, logger)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPool_OrderAndGetNode(t *testing.T) {
	pool := newTestPool(t, "beta", "alpha")

	node, err := pool.GetNode()
	require.NoError(t, err)
	assert.Equal(t, "alpha", node.Name)

	node.setHealth(errors.New("connection refused"))
	node, err = pool.GetNode()
	require.NoError(t, err)
	assert.Equal(t, "beta", node.Name)
}

func TestPool_DoFailsOver(t *testing.T) {
	pool := newTestPool(t, "alpha", "beta")

	var tried []string
	err := pool.Do(context.Background(), func(n *Node) error {
		tried = append(tried, n.Name)
		if n.Name == "alpha" {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, tried)

	stats := pool.GetStats()
	assert.Equal(t, false, stats["alpha"].(map[string]interface{})["is_healthy"])
	assert.Equal(t, true, stats["beta"].(map[string]interface{})["is_healthy"])
}

func TestPool_DoStopsOnNodeError(t *testing.T) {
	pool := newTestPool(t, "alpha", "beta")

	calls := 0
	err := pool.Do(context.Background(), func(n *Node) error {
		calls++
		return errors.New("execution reverted")
	})
	assert.EqualError(t, err, "execution reverted")
	assert.Equal(t, 1, calls)
}

func TestPool_DoContextCancelled(t *testing.T) {
	pool := newTestPool(t, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Do(ctx, func(n *Node) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_EmptyPool(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.GetNode()
	assert.Error(t, err)
	assert.Error(t, pool.Do(context.Background(), func(n *Node) error { return nil }))
}

func TestPool_HealthCheck(t *testing.T) {
	pool := newTestPool(t, "alpha")
	node, err := pool.GetNode()
	require.NoError(t, err)

	node.setHealth(errors.New("eof"))
	pool.checkAll()
	assert.True(t, node.IsHealthy())

	chainID, err := node.Eth().ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), chainID.Int64())
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection reset by peer"), true},
		{errors.New("unexpected EOF"), true},
		{fmt.Errorf("wrap: %w", rpc.HTTPError{StatusCode: 502}), true},
		{rpc.HTTPError{StatusCode: 429}, true},
		{rpc.HTTPError{StatusCode: 400}, false},
		{errors.New("nonce too low"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isConnectionError(tt.err), fmt.Sprint(tt.err))
	}
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool := newTestPool(t, "alpha")
	assert.NoError(t, pool.Close())
	assert.NoError(t, pool.Close())
}
