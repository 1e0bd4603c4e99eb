package source

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"txlens/internal/retry"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	records map[string]json.RawMessage
	fail    map[string]bool
}

func (f *fakeRelay) GetTransactionByHash(hash string) (json.RawMessage, error) {
	if f.fail[hash] {
		return nil, errors.New("relay internal error")
	}
	if r, ok := f.records[hash]; ok {
		return r, nil
	}
	return json.RawMessage("null"), nil
}

func newTestRelayClient(t *testing.T, fake *fakeRelay) *RelayClient {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", fake))
	t.Cleanup(server.Stop)

	logger := testLogger()
	client := NewRelayClientFromRPC(rpc.DialInProc(server), retry.NewRetrier(retry.NoRetryConfig(), logger), logger)
	t.Cleanup(client.Close)
	return client
}

func TestRelayClient_RelayTransaction(t *testing.T) {
	fake := &fakeRelay{records: map[string]json.RawMessage{
		"0xaaa": json.RawMessage(`{"hash":"0xaaa","blocknumber":null,"gasprice":"0x1"}`),
	}}
	client := newTestRelayClient(t, fake)

	rec, err := client.RelayTransaction(context.Background(), "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsPending())

	none, err := client.RelayTransaction(context.Background(), "0xbbb")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRelayClient_RelayTransactions(t *testing.T) {
	fake := &fakeRelay{
		records: map[string]json.RawMessage{
			"0xAAA": json.RawMessage(`{"hash":"0xaaa","blocknumber":"0x10"}`),
		},
		fail: map[string]bool{"0xccc": true},
	}
	client := newTestRelayClient(t, fake)

	got, err := client.RelayTransactions(context.Background(), []string{"0xAAA", "0xbbb", "0xccc"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.Contains(t, got, "0xaaa")
	assert.False(t, got["0xaaa"].IsPending())
}

func TestRelayClient_RelayTransactionsAllFailed(t *testing.T) {
	fake := &fakeRelay{fail: map[string]bool{"0x1": true, "0x2": true}}
	client := newTestRelayClient(t, fake)

	_, err := client.RelayTransactions(context.Background(), []string{"0x1", "0x2"})
	assert.Error(t, err)
}
