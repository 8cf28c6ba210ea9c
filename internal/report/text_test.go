package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/cnf/cnftest"
)

func identityReport(t *testing.T) *cnf.Report {
	t.Helper()
	b := cnftest.New()
	b.Coefficients = [4]float64{0, 1, 0, 0}
	b.Channels = make([]uint32, 256)
	copy(b.Channels, []uint32{10, 20, 30, 40})
	b.MarkerLeft, b.MarkerRight = 1, 3
	b.RealTime, b.LiveTime = 120, 100
	rep, err := cnf.Decode(b.Bytes())
	require.NoError(t, err)
	return rep
}

func TestWriteTextEndToEnd(t *testing.T) {
	rep := identityReport(t)
	out, err := RenderText(rep)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")

	header := []string{
		"#",
		"# Sample name: Soil sample 7",
		"# Sample id:   S-0007",
		"# Sample type: soil",
		"# User name:   lab",
		"# Sample description: synthetic spectrum",
		"#",
		"# Start time:    2016-10-10, 12:34:56",
		"# Real time (s): 120.000",
		"# Live time (s): 100.000",
		"#",
		"# Total counts:  100",
		"#",
		"# Left marker:  1 (1.000 keV)",
		"# Right marker: 3 (3.000 keV)",
		"# Counts:       50",
		"#",
		"# Energy calibration coefficients ( E = sum(Ai * n**i) )",
		"#     A0: 0.000000",
		"#     A1: 1.000000",
		"#     A2: 0.000000",
		"#     A3: 0.000000",
		"# Energy unit: keV",
		"#",
		"# Channel data",
		"# n\tenergy(keV)\tcounts\trate(1/s)",
		"#-----------------------------------------------------------------------",
	}
	require.GreaterOrEqual(t, len(lines), len(header)+256)
	assert.Equal(t, header, lines[:len(header)])

	data := lines[len(header):]
	require.Len(t, data, 256)
	assert.Equal(t, "1\t1.000\t10\t0.1", data[0])
	assert.Equal(t, "2\t2.000\t20\t0.2", data[1])
	assert.Equal(t, "3\t3.000\t30\t0.3", data[2])
	assert.Equal(t, "4\t4.000\t40\t0.4", data[3])
	assert.Equal(t, "5\t5.000\t0\t0", data[4])
	assert.Equal(t, "256\t256.000\t0\t0", data[255])
}

func TestWriteTextUndefinedRate(t *testing.T) {
	rep := &cnf.Report{
		Calibration: cnf.Calibration{Coefficients: [4]float64{0, 1, 0, 0}, EnergyUnit: "keV"},
		Times:       cnf.AcquisitionTimes{Start: time.Unix(0, 0)},
		Channels:    []uint32{7, 0},
	}
	out, err := RenderText(rep)
	require.NoError(t, err)
	assert.Contains(t, string(out), "\n1\t1.000\t7\tundefined\n")
	assert.Contains(t, string(out), "\n2\t2.000\t0\tundefined\n")
	assert.Contains(t, string(out), "# Start time:    1970-01-01, 00:00:00\n")
}

func TestWriteTextRateFormatting(t *testing.T) {
	rep := &cnf.Report{
		Times:    cnf.AcquisitionTimes{LiveTime: 3},
		Channels: []uint32{1, 370370370},
	}
	out, err := RenderText(rep)
	require.NoError(t, err)
	assert.Contains(t, string(out), "\n1\t0.000\t1\t0.333333\n")
	assert.Contains(t, string(out), "\n2\t0.000\t370370370\t1.23457e+08\n")
}

func TestWriteTextNilReport(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteText(&buf, nil))
}

func TestSaveText(t *testing.T) {
	rep := identityReport(t)
	path := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, SaveText(rep, path))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := RenderText(rep)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
