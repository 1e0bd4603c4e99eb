package output

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"txlens/internal/config"
	"txlens/pkg/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	out := NewJSONOutput(&buf, false)

	require.NoError(t, out.WriteTransaction(models.NotFoundRecord("0xabc")))
	require.NoError(t, out.WriteAccount(&models.AccountOverview{Address: "0x01", TxCount: 3}))
	require.NoError(t, out.WriteTransaction(nil))
	require.NoError(t, out.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "0xabc", record["hash"])
	assert.Equal(t, "not-found", record["state"])

	var overview map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &overview))
	assert.Equal(t, float64(3), overview["tx_count"])
}

func TestJSONOutput_Pretty(t *testing.T) {
	var buf bytes.Buffer
	out := NewJSONOutput(&buf, true)

	require.NoError(t, out.WriteTransaction(models.NotFoundRecord("0xabc")))
	assert.Contains(t, buf.String(), "\n  \"hash\": \"0xabc\"")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")

	out, err := NewOutput(&config.OutputConfig{Format: "json", Path: path}, testLogger())
	require.NoError(t, err)
	require.NoError(t, out.WriteTransaction(models.NotFoundRecord("0x1")))
	require.NoError(t, out.WriteTransaction(models.NotFoundRecord("0x2")))
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestNewOutput_Errors(t *testing.T) {
	_, err := NewOutput(&config.OutputConfig{Format: "csv"}, testLogger())
	assert.Error(t, err)

	_, err = NewOutput(&config.OutputConfig{Format: "kafka"}, testLogger())
	assert.Error(t, err)
}

func TestKafkaOutput(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var record models.TransactionRecord
		if err := json.Unmarshal(val, &record); err != nil {
			return err
		}
		if record.Hash != "0xABC" {
			return stderrors.New("unexpected hash " + record.Hash)
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	out := NewKafkaOutputWithProducer(producer, map[string]string{TopicTransactions: "custom_txs"}, testLogger())

	require.NoError(t, out.WriteTransaction(models.NotFoundRecord("0xABC")))
	require.NoError(t, out.WriteAccount(&models.AccountOverview{Address: "0x01"}))
	require.NoError(t, out.WriteAccount(nil))
	require.NoError(t, out.Close())
}

func TestKafkaOutput_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	out := NewKafkaOutputWithProducer(producer, nil, testLogger())

	err := out.WriteTransaction(models.NotFoundRecord("0xabc"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, out.Close())
}

func TestKafkaOutput_TopicFallback(t *testing.T) {
	out := NewKafkaOutputWithProducer(nil, map[string]string{TopicAccounts: ""}, testLogger())

	assert.Equal(t, defaultTransactionsTopic, out.topic(TopicTransactions, defaultTransactionsTopic))
	assert.Equal(t, defaultAccountsTopic, out.topic(TopicAccounts, defaultAccountsTopic))
	assert.NoError(t, out.Close())
}
