package common

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.SetTotals(4, 4096)
	m.Start()
	m.AddFile(1024)
	m.AddFile(2048)
	m.IncFailure()
	m.IncCacheHit()
	m.Stop()

	s := m.Snapshot()
	assert.EqualValues(t, 2, s.Files)
	assert.EqualValues(t, 3072, s.Bytes)
	assert.EqualValues(t, 1, s.Failures)
	assert.EqualValues(t, 1, s.CacheHits)
	assert.InDelta(t, 0.75, s.Completion(), 1e-9)
	assert.Contains(t, formatProgressLine(s), "3/4 files, 1 failed")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KiB", FormatBytes(1536))
	assert.Equal(t, "2.00 MiB", FormatBytes(2*1024*1024))
}

func TestProgressPrinterStops(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	m.Start()
	m.AddFile(10)
	stop := StartProgressPrinter(&buf, m, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()
	assert.True(t, strings.Contains(buf.String(), "Converted: 1 files"))
}

func TestDebugfGated(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetDebug(false)
	Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())
	SetDebug(true)
	defer SetDebug(false)
	Debugf("shown %d", 2)
	Logf("plain")
	assert.Contains(t, buf.String(), "[cnfconv] ")
	assert.Contains(t, buf.String(), "debug: shown 2")
	assert.Contains(t, buf.String(), "plain")
}
