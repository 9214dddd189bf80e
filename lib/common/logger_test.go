package common

import (
	"bytes"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := LogOutput
	LogOutput = &buf
	t.Cleanup(func() { LogOutput = prev })

	l := CreateLogger("store")
	l.SetLevel(logger.WARNING)
	l.Infof("opened %s", "kiln.db")
	l.Warningf("quota at %d%%", 90)
	l.Errorf("write failed")

	out := buf.String()
	assert.NotContains(t, out, "opened")
	assert.Contains(t, out, "WARN  | store      | quota at 90%")
	assert.Contains(t, out, "ERROR | store      | write failed")
}

func TestLoggerPanicf(t *testing.T) {
	var buf bytes.Buffer
	prev := LogOutput
	LogOutput = &buf
	t.Cleanup(func() { LogOutput = prev })

	l := CreateLogger("cmd")
	l.SetLevel(logger.ERROR)
	assert.PanicsWithValue(t, "broken index", func() { l.Panicf("broken %s", "index") })
	assert.Contains(t, buf.String(), "CRIT  | cmd        | broken index")
}
