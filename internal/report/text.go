package report

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/common"
)

// StartTimeLayout is the acquisition start format used in text reports.
const StartTimeLayout = "2006-01-02, 15:04:05"

const ruler = "#-----------------------------------------------------------------------"

// WriteText renders rep in the tab separated, comment headed layout used
// by the reference converter.
func WriteText(w io.Writer, rep *cnf.Report) error {
	if rep == nil {
		return errors.New("nil report")
	}
	bw := bufio.NewWriter(w)
	unit := rep.Calibration.EnergyUnit
	cal := rep.Calibration

	fmt.Fprintln(bw, "#")
	fmt.Fprintf(bw, "# Sample name: %s\n", rep.Sample.Name)
	fmt.Fprintf(bw, "# Sample id:   %s\n", rep.Sample.ID)
	fmt.Fprintf(bw, "# Sample type: %s\n", rep.Sample.Type)
	fmt.Fprintf(bw, "# User name:   %s\n", rep.Sample.User)
	fmt.Fprintf(bw, "# Sample description: %s\n", rep.Sample.Description)
	fmt.Fprintln(bw, "#")
	fmt.Fprintf(bw, "# Start time:    %s\n", rep.Times.Start.UTC().Format(StartTimeLayout))
	fmt.Fprintf(bw, "# Real time (s): %.3f\n", rep.Times.RealTime)
	fmt.Fprintf(bw, "# Live time (s): %.3f\n", rep.Times.LiveTime)
	fmt.Fprintln(bw, "#")
	fmt.Fprintf(bw, "# Total counts:  %d\n", rep.TotalCounts)
	fmt.Fprintln(bw, "#")
	fmt.Fprintf(bw, "# Left marker:  %d (%.3f %s)\n", rep.Markers.Left, cal.Energy(int(rep.Markers.Left)), unit)
	fmt.Fprintf(bw, "# Right marker: %d (%.3f %s)\n", rep.Markers.Right, cal.Energy(int(rep.Markers.Right)), unit)
	fmt.Fprintf(bw, "# Counts:       %d\n", rep.Markers.Counts)
	fmt.Fprintln(bw, "#")
	fmt.Fprintln(bw, "# Energy calibration coefficients ( E = sum(Ai * n**i) )")
	for i, a := range cal.Coefficients {
		fmt.Fprintf(bw, "#     A%d: %.6f\n", i, a)
	}
	fmt.Fprintf(bw, "# Energy unit: %s\n", unit)
	fmt.Fprintln(bw, "#")
	fmt.Fprintln(bw, "# Channel data")
	fmt.Fprintf(bw, "# n\tenergy(%s)\tcounts\trate(1/s)\n", unit)
	fmt.Fprintln(bw, ruler)

	undefined := rep.Times.LiveTime <= 0
	if undefined {
		common.Debugf("live time is %v, rates reported as undefined", rep.Times.LiveTime)
	}
	for i, c := range rep.Channels {
		rate := "undefined"
		if !undefined {
			r, err := rep.Rate(i)
			if err != nil {
				return err
			}
			rate = strconv.FormatFloat(r, 'g', 6, 64)
		}
		fmt.Fprintf(bw, "%d\t%.3f\t%d\t%s\n", i+1, cal.Energy(i+1), c, rate)
	}
	return bw.Flush()
}

// RenderText returns the text report as a byte slice.
func RenderText(rep *cnf.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteText(&buf, rep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveText writes the text report to out, replacing any existing file.
func SaveText(rep *cnf.Report, out string) error {
	data, err := RenderText(rep)
	if err != nil {
		return err
	}
	return common.WriteFileAtomic(out, data, 0o644)
}
