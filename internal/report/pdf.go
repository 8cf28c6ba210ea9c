package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"example.com/cnfconv/internal/cnf"
)

// SavePDF renders a one page summary of doc: sample metadata, acquisition
// times, calibration, marker region and a plot of the spectrum.
func SavePDF(doc Document, out string) error {
	pdf, err := buildPDF(doc)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// WritePDF streams the same document as SavePDF to w.
func WritePDF(w io.Writer, doc Document) error {
	pdf, err := buildPDF(doc)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

func buildPDF(doc Document) (*gofpdf.Fpdf, error) {
	if doc.Report == nil {
		return nil, fmt.Errorf("pdf: nil report")
	}
	rep := doc.Report
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Spectrum Report", false)
	pdf.SetAuthor("cnfconv", false)
	pdf.SetCreator("cnfconv", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Spectrum Report")
	addSampleSection(pdf, doc)
	addCalibrationSection(pdf, rep)
	addSpectrumPlot(pdf, rep)
	if doc.SourceSHA != "" {
		if err := addHashQR(pdf, doc.SourceSHA); err != nil {
			return nil, err
		}
	}
	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSampleSection(pdf *gofpdf.Fpdf, doc Document) {
	rep := doc.Report
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Sample")
	pdf.Ln(8)

	rate := "undefined"
	if rep.Times.LiveTime > 0 {
		rate = strconv.FormatFloat(float64(rep.TotalCounts)/rep.Times.LiveTime, 'g', 6, 64)
	}
	unit := rep.Calibration.EnergyUnit
	items := []struct {
		label string
		value string
	}{
		{label: "Source", value: emptyFallback(doc.Source, "-")},
		{label: "Name", value: emptyFallback(rep.Sample.Name, "-")},
		{label: "ID", value: emptyFallback(rep.Sample.ID, "-")},
		{label: "Type", value: emptyFallback(rep.Sample.Type, "-")},
		{label: "Unit", value: emptyFallback(rep.Sample.Unit, "-")},
		{label: "User", value: emptyFallback(rep.Sample.User, "-")},
		{label: "Description", value: emptyFallback(rep.Sample.Description, "-")},
		{label: "Start time", value: rep.Times.Start.UTC().Format(StartTimeLayout)},
		{label: "Real time (s)", value: fmt.Sprintf("%.3f", rep.Times.RealTime)},
		{label: "Live time (s)", value: fmt.Sprintf("%.3f", rep.Times.LiveTime)},
		{label: "Channels", value: strconv.Itoa(rep.NumChannels())},
		{label: "Total counts", value: strconv.FormatUint(rep.TotalCounts, 10)},
		{label: "Mean rate (1/s)", value: rate},
		{label: "Marker region", value: fmt.Sprintf("%d (%.3f %s) to %d (%.3f %s)",
			rep.Markers.Left, rep.Calibration.Energy(int(rep.Markers.Left)), unit,
			rep.Markers.Right, rep.Calibration.Energy(int(rep.Markers.Right)), unit)},
		{label: "Region counts", value: strconv.FormatUint(rep.Markers.Counts, 10)},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, item.value, "", "L", false)
	}
	pdf.Ln(4)
}

func addCalibrationSection(pdf *gofpdf.Fpdf, rep *cnf.Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Energy Calibration")
	pdf.Ln(9)

	widths := []float64{30, 50}
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(widths[0], 7, "Coefficient", "1", 0, "L", true, 0, "")
	pdf.CellFormat(widths[1], 7, "Value", "1", 1, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for i, a := range rep.Calibration.Coefficients {
		pdf.CellFormat(widths[0], 6, fmt.Sprintf("A%d", i), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%.6f", a), "1", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, "Energy unit: "+emptyFallback(rep.Calibration.EnergyUnit, "-"))
	pdf.Ln(10)
}

// addSpectrumPlot draws counts against channel number on a linear scale,
// shading the marker region.
func addSpectrumPlot(pdf *gofpdf.Fpdf, rep *cnf.Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Spectrum")
	pdf.Ln(9)

	const w, h = 180.0, 70.0
	x0, y0 := pdf.GetX(), pdf.GetY()
	pdf.SetDrawColor(0, 0, 0)
	pdf.Rect(x0, y0, w, h, "D")

	n := rep.NumChannels()
	var peak uint32
	for _, c := range rep.Channels {
		if c > peak {
			peak = c
		}
	}
	if n < 2 || peak == 0 {
		pdf.SetXY(x0, y0+h/2)
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(w, 6, "No counts recorded.", "", 0, "C", false, 0, "")
		pdf.SetXY(x0, y0+h+4)
		return
	}

	xAt := func(i int) float64 { return x0 + w*float64(i)/float64(n-1) }
	yAt := func(c uint32) float64 { return y0 + h - h*float64(c)/float64(peak) }

	left, right := int(rep.Markers.Left), int(rep.Markers.Right)
	if left < right && right <= n {
		pdf.SetFillColor(220, 235, 250)
		xl, xr := xAt(left), xAt(right-1)
		pdf.Rect(xl, y0, math.Max(xr-xl, 0.2), h, "F")
	}

	points := make([]gofpdf.PointType, 0, n)
	for i, c := range rep.Channels {
		points = append(points, gofpdf.PointType{X: xAt(i), Y: yAt(c)})
	}
	pdf.SetLineWidth(0.15)
	pdf.SetDrawColor(20, 60, 140)
	pdf.Polygon(append(points, gofpdf.PointType{X: xAt(n - 1), Y: y0 + h}, gofpdf.PointType{X: xAt(0), Y: y0 + h}), "D")
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(x0, y0+h+1)
	pdf.CellFormat(w/2, 4, "channel 1", "", 0, "L", false, 0, "")
	pdf.CellFormat(w/2, 4, fmt.Sprintf("channel %d", n), "", 1, "R", false, 0, "")
	pdf.SetX(x0)
	pdf.CellFormat(w, 4, fmt.Sprintf("peak %d counts", peak), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func addHashQR(pdf *gofpdf.Fpdf, sha string) error {
	png, err := HashToQR(sha, 256)
	if err != nil {
		return err
	}
	name := "source-sha256"
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	x, y := pdf.GetX(), pdf.GetY()
	if y+40 > 277 {
		pdf.AddPage()
		x, y = pdf.GetX(), pdf.GetY()
	}
	pdf.ImageOptions(name, x, y, 35, 35, false, opts, 0, "")
	pdf.SetXY(x+40, y+12)
	pdf.SetFont("Courier", "", 7)
	pdf.MultiCell(0, 4, "SHA-256 "+strings.ToLower(sha), "", "L", false)
	return nil
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
