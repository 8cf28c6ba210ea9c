package report

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/cnf/cnftest"
)

const testSHA = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestDocumentExports(t *testing.T) {
	rep := identityReport(t)
	doc := NewDocument(rep, "sample.cnf", testSHA)
	require.Len(t, doc.EnergyScale, 256)
	assert.Equal(t, 1.0, doc.EnergyScale[0])
	assert.Equal(t, 256.0, doc.EnergyScale[255])

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "sample.json")
	require.NoError(t, SaveJSON(doc, jsonPath))
	fromJSON, err := LoadJSON(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, rep.Markers, fromJSON.Report.Markers)
	assert.Equal(t, rep.Sample, fromJSON.Report.Sample)
	assert.True(t, rep.Times.Start.Equal(fromJSON.Report.Times.Start))

	yamlPath := filepath.Join(dir, "sample.yaml")
	require.NoError(t, SaveYAML(doc, yamlPath))
	fromYAML, err := LoadYAML(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, testSHA, fromYAML.SourceSHA)
	assert.Equal(t, rep.TotalCounts, fromYAML.Report.TotalCounts)
	assert.Equal(t, rep.Channels, fromYAML.Report.Channels)

	raw, err := MarshalYAML(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "totalCounts: 100")
	assert.Contains(t, string(raw), "energyUnit: keV")
}

func TestDocumentExportsNonFiniteCalibration(t *testing.T) {
	b := cnftest.New()
	b.Coefficients = [4]float64{-0.3, 0.5, math.NaN(), math.Inf(1)}
	rep, err := cnf.Decode(b.Bytes())
	require.NoError(t, err)
	require.True(t, math.IsNaN(rep.Calibration.Coefficients[2]))
	require.True(t, math.IsInf(rep.Calibration.Coefficients[3], 1))

	_, err = RenderText(rep)
	require.NoError(t, err)

	doc := NewDocument(rep, "odd.cnf", testSHA)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "odd.json")
	require.NoError(t, SaveJSON(doc, jsonPath))
	yamlPath := filepath.Join(dir, "odd.yaml")
	require.NoError(t, SaveYAML(doc, yamlPath))

	raw, err := MarshalJSON(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "null")

	for name, load := range map[string]func(string) (Document, error){
		jsonPath: LoadJSON,
		yamlPath: LoadYAML,
	} {
		got, err := load(name)
		require.NoError(t, err, name)
		c := got.Report.Calibration.Coefficients
		assert.InDelta(t, -0.3, c[0], 1e-6, name)
		assert.InDelta(t, 0.5, c[1], 1e-6, name)
		assert.True(t, math.IsNaN(c[2]), name)
		assert.True(t, math.IsNaN(c[3]), name)
		require.Len(t, got.EnergyScale, rep.NumChannels(), name)
		assert.True(t, math.IsNaN(got.EnergyScale[0]), name)
	}

	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, doc))
}

func TestCalibrationJSONRejectsExtraCoefficients(t *testing.T) {
	var c cnf.Calibration
	assert.Error(t, c.UnmarshalJSON([]byte(`{"coefficients":[1,2,3,4,5],"energyUnit":"keV"}`)))
	require.NoError(t, c.UnmarshalJSON([]byte(`{"coefficients":[1,2],"energyUnit":"keV"}`)))
	assert.Equal(t, [4]float64{1, 2, 0, 0}, c.Coefficients)
	assert.Equal(t, "keV", c.EnergyUnit)
}

func TestHashToQR(t *testing.T) {
	png, err := HashToQR(" "+testSHA+" ", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = HashToQR("zz--", 64)
	assert.Error(t, err)
	assert.Equal(t, "abcdef09", sanitizeHash("AB-CD:EF 09"))
}

func TestWritePDF(t *testing.T) {
	rep := identityReport(t)
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, NewDocument(rep, "sample.cnf", testSHA)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	path := filepath.Join(t.TempDir(), "sample.pdf")
	require.NoError(t, SavePDF(NewDocument(rep, "", ""), path))
}

func TestWritePDFEmptySpectrum(t *testing.T) {
	rep := identityReport(t)
	for i := range rep.Channels {
		rep.Channels[i] = 0
	}
	rep.Times.LiveTime = 0
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, NewDocument(rep, "empty.cnf", "")))
	assert.NotZero(t, buf.Len())
}

func TestWritePDFNilReport(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WritePDF(&buf, Document{}))
}
