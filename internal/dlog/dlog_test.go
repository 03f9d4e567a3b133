package dlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaveLogFunctionsDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		SaveDebugLog("debug", "k", "v")
		SaveInfoLog("info", "k", 1)
		SaveWarnLog("warn")
		SaveErrLog("err", "reason", "test")
		Sync()
	})
}
