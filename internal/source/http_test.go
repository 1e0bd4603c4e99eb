package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"txlens/internal/config"
	"txlens/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(attempts int) *retry.Retrier {
	return retry.NewRetrier(&retry.RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		BackoffFactor:   2,
	}, testLogger())
}

func TestSubgraphClient(t *testing.T) {
	var lastVars map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lastVars = req.Variables

		switch {
		case strings.Contains(req.Query, "relayBlocks"):
			io.WriteString(w, `{"data":{"blocks":[{"number":"100"},{"number":"102"}]}}`)
		case strings.Contains(req.Query, "staker("):
			if req.Variables["id"] == "0x0000000000000000000000000000000000000001" {
				io.WriteString(w, `{"data":{"staker":null}}`)
				return
			}
			io.WriteString(w, `{"data":{"staker":{"staked":"250000000000000000000","rank":"3"}}}`)
		case strings.Contains(req.Query, "slots("):
			io.WriteString(w, `{"data":{"slots":[{"id":"0","delegate":"0xABCDEF0000000000000000000000000000000001"},{"id":"2","delegate":""}]}}`)
		}
	}))
	defer server.Close()

	client := NewSubgraphClient(&config.RelayConfig{SubgraphURL: server.URL, Timeout: time.Second}, fastRetrier(1), testLogger())
	ctx := context.Background()

	blocks, err := client.RelayBlocks(ctx, []uint64{100, 101, 102})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]bool{100: true, 102: true}, blocks)

	block := uint64(99)
	stake, err := client.Stake(ctx, "0xAbC0000000000000000000000000000000000000", &block)
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000000", stake.Staked.String())
	require.NotNil(t, stake.Rank)
	assert.Equal(t, 3, *stake.Rank)
	assert.Equal(t, map[string]interface{}{"number": float64(99)}, lastVars["block"])
	assert.Equal(t, "0xabc0000000000000000000000000000000000000", lastVars["id"])

	empty, err := client.Stake(ctx, "0x0000000000000000000000000000000000000001", nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Staked)
	assert.Nil(t, empty.Rank)

	delegates, err := client.SlotDelegates(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"0xabcdef0000000000000000000000000000000001": 0}, delegates)
}

func TestSubgraphClient_GraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors":[{"message":"indexing error"}]}`)
	}))
	defer server.Close()

	client := NewSubgraphClient(&config.RelayConfig{SubgraphURL: server.URL, Timeout: time.Second}, fastRetrier(3), testLogger())
	_, err := client.SlotDelegates(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing error")
}

func TestBundleClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/blocks", r.URL.Path)
		assert.Equal(t, "13000000", r.URL.Query().Get("block_number"))
		io.WriteString(w, `{"blocks":[{"block_number":13000000,"transactions":[
			{"transaction_hash":"0xDEF","bundle_index":3,"total_miner_reward":"20000000000000000"},
			{"transaction_hash":"0x123","bundle_index":"0"}
		]}]}`)
	}))
	defer server.Close()

	client := NewBundleClient(&config.BundleConfig{APIURL: server.URL + "/", Timeout: time.Second}, fastRetrier(1), testLogger())
	index, err := client.BundlesInBlock(context.Background(), 13000000)
	require.NoError(t, err)

	require.Contains(t, index, "0xdef")
	assert.Equal(t, 3, index["0xdef"].BundleIndex)
	assert.Equal(t, "20000000000000000", index["0xdef"].MinerTip.String())
	assert.Nil(t, index["0x123"].MinerTip)
}

func TestBundleClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"blocks":[]}`)
	}))
	defer server.Close()

	client := NewBundleClient(&config.BundleConfig{APIURL: server.URL, Timeout: time.Second}, fastRetrier(3), testLogger())
	index, err := client.BundlesInBlock(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, index)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBundleClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewBundleClient(&config.BundleConfig{APIURL: server.URL, Timeout: time.Second}, fastRetrier(3), testLogger())
	_, err := client.BundlesInBlock(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExplorerClient_AccountTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "txlist", q.Get("action"))
		assert.Equal(t, "key", q.Get("apikey"))
		assert.Equal(t, "1", q.Get("chainid"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("offset"))

		if q.Get("address") == "0x0000000000000000000000000000000000000002" {
			io.WriteString(w, `{"status":"0","message":"No transactions found","result":[]}`)
			return
		}
		io.WriteString(w, `{"status":"1","message":"OK","result":[
			{"blockNumber":"100","timeStamp":"1600000000","hash":"0xa","nonce":"1","transactionIndex":"0","from":"0x1","to":"0x2","value":"0","gas":"21000","gasPrice":"50000000000","isError":"0","input":"0x"}
		]}`)
	}))
	defer server.Close()

	client := NewExplorerClient(&config.ExplorerConfig{APIURL: server.URL, APIKey: "key", ChainID: 1, RateLimit: 100, Timeout: time.Second}, fastRetrier(1), testLogger())

	txs, err := client.AccountTransactions(context.Background(), "0x0000000000000000000000000000000000000001", 10, 2)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "50000000000", txs[0].GasPrice)

	none, err := client.AccountTransactions(context.Background(), "0x0000000000000000000000000000000000000002", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExplorerClient_ErrorAndRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
			return
		}
		io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`)
	}))
	defer server.Close()

	client := NewExplorerClient(&config.ExplorerConfig{APIURL: server.URL, RateLimit: 100, Timeout: time.Second}, fastRetrier(3), testLogger())
	_, err := client.AccountTransactions(context.Background(), "0x1", 10, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API Key")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExplorerClient_ContractSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "0xverified" {
			io.WriteString(w, `{"status":"1","message":"OK","result":[{"ContractName":"Token","ABI":"[{\"type\":\"function\"}]"}]}`)
			return
		}
		io.WriteString(w, `{"status":"1","message":"OK","result":[{"ContractName":"","ABI":"Contract source code not verified"}]}`)
	}))
	defer server.Close()

	client := NewExplorerClient(&config.ExplorerConfig{APIURL: server.URL, RateLimit: 100, Timeout: time.Second}, fastRetrier(1), testLogger())

	info, err := client.ContractSource(context.Background(), "0xverified")
	require.NoError(t, err)
	assert.Equal(t, "Token", info.Name)
	assert.NotEmpty(t, info.ABI)

	unverified, err := client.ContractSource(context.Background(), "0xother")
	require.NoError(t, err)
	assert.Empty(t, unverified.Name)
	assert.Empty(t, unverified.ABI)
}
