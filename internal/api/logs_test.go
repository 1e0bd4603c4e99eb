package api

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func entry(level logrus.Level, msg string) *logrus.Entry {
	return &logrus.Entry{Time: time.Now(), Level: level, Message: msg, Data: logrus.Fields{}}
}

func TestLogManager_Wraps(t *testing.T) {
	lm := NewLogManager(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		lm.AddLog(entry(logrus.InfoLevel, msg))
	}

	logs, total := lm.GetLogsWithPagination("", 1, 10)
	assert.Equal(t, 3, total)
	var msgs []string
	for _, l := range logs {
		msgs = append(msgs, l.Message)
	}
	assert.Equal(t, []string{"e", "d", "c"}, msgs)
}

func TestLogManager_Pagination(t *testing.T) {
	lm := NewLogManager(10)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		lm.AddLog(entry(logrus.InfoLevel, msg))
	}
	lm.AddLog(entry(logrus.ErrorLevel, "oops"))

	logs, total := lm.GetLogsWithPagination("info", 2, 2)
	assert.Equal(t, 5, total)
	assert.Equal(t, "c", logs[0].Message)
	assert.Equal(t, "b", logs[1].Message)

	logs, total = lm.GetLogsWithPagination("info", 4, 2)
	assert.Equal(t, 5, total)
	assert.Empty(t, logs)
}

func TestLogManager_ErrorFieldsStringified(t *testing.T) {
	lm := NewLogManager(0)
	e := entry(logrus.WarnLevel, "x")
	e.Data[logrus.ErrorKey] = assert.AnError

	lm.AddLog(e)
	logs, _ := lm.GetLogsWithPagination("", 1, 1)
	assert.Equal(t, assert.AnError.Error(), logs[0].Fields[logrus.ErrorKey])
}
