package progress

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x00000000000000000000000000000000000000A1"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m, err := NewManager(filepath.Join(t.TempDir(), "data", "progress.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestResumePage(t *testing.T) {
	m := newTestManager(t)

	page, err := m.ResumePage(testAddress, 25)
	require.NoError(t, err)
	assert.Equal(t, 1, page)

	require.NoError(t, m.UpdateProgress(testAddress, 1, 25, 25))
	require.NoError(t, m.UpdateProgress(testAddress, 2, 25, 10))

	page, err = m.ResumePage(testAddress, 25)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	// 地址大小写不影响
	progress, err := m.GetProgress("0x00000000000000000000000000000000000000a1")
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 2, progress.LastPage)
	assert.Equal(t, uint64(35), progress.TotalTransactions)
	assert.False(t, progress.StartTime.IsZero())

	page, err = m.ResumePage(testAddress, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}

func TestPageSizeChangeResetsTotals(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdateProgress(testAddress, 4, 25, 100))
	require.NoError(t, m.UpdateProgress(testAddress, 1, 50, 50))

	progress, err := m.GetProgress(testAddress)
	require.NoError(t, err)
	assert.Equal(t, 50, progress.PageSize)
	assert.Equal(t, uint64(50), progress.TotalTransactions)
}

func TestMarkCompletedAndReset(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdateProgress(testAddress, 1, 25, 3))
	require.NoError(t, m.MarkCompleted(testAddress))

	progress, err := m.GetProgress(testAddress)
	require.NoError(t, err)
	assert.True(t, progress.Completed)

	stats := m.GetStats(testAddress)
	assert.Equal(t, true, stats["completed"])
	assert.Equal(t, 1, stats["last_page"])

	require.NoError(t, m.Reset(testAddress))
	progress, err = m.GetProgress(testAddress)
	require.NoError(t, err)
	assert.Nil(t, progress)
	assert.Equal(t, false, m.GetStats(testAddress)["exported"])
}

func TestList(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.UpdateProgress("0x01", 1, 25, 1))
	require.NoError(t, m.UpdateProgress("0x02", 2, 25, 1))

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0x01", list[0].Address)
	assert.Equal(t, 2, list[1].LastPage)
}

func TestPersistence(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "progress.db")

	m, err := NewManager(path, logger)
	require.NoError(t, err)
	require.NoError(t, m.UpdateProgress(testAddress, 7, 25, 1))
	require.NoError(t, m.Close())

	m, err = NewManager(path, logger)
	require.NoError(t, err)
	defer m.Close()

	page, err := m.ResumePage(testAddress, 25)
	require.NoError(t, err)
	assert.Equal(t, 8, page)
	assert.Equal(t, path, m.GetDBPath())
}
