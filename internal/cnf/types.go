package cnf

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Sections holds the start offsets of the four sections a report needs.
type Sections struct {
	Parameters int64 `json:"parameters"`
	Strings    int64 `json:"strings"`
	Spectrum   int64 `json:"spectrum"`
	Markers    int64 `json:"markers"`
}

type SampleInfo struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Unit        string `json:"unit"`
	User        string `json:"user"`
	Description string `json:"description"`
}

// Calibration maps a channel number to an energy with a cubic polynomial.
type Calibration struct {
	Coefficients [4]float64 `json:"coefficients"`
	EnergyUnit   string     `json:"energyUnit"`
}

// Energy evaluates A0 + A1*ch + A2*ch^2 + A3*ch^3.
func (c Calibration) Energy(ch int) float64 {
	x := float64(ch)
	a := c.Coefficients
	return a[0] + a[1]*x + a[2]*x*x + a[3]*x*x*x
}

type calibrationJSON struct {
	Coefficients []*float64 `json:"coefficients"`
	EnergyUnit   string     `json:"energyUnit"`
}

// MarshalJSON writes non-finite coefficients, which the vendor float layout
// can hold, as null.
func (c Calibration) MarshalJSON() ([]byte, error) {
	return json.Marshal(calibrationJSON{
		Coefficients: NullableFloats(c.Coefficients[:]),
		EnergyUnit:   c.EnergyUnit,
	})
}

// UnmarshalJSON reads null coefficients back as NaN.
func (c *Calibration) UnmarshalJSON(b []byte) error {
	var v calibrationJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if len(v.Coefficients) > len(c.Coefficients) {
		return fmt.Errorf("calibration has %d coefficients, want at most %d", len(v.Coefficients), len(c.Coefficients))
	}
	c.Coefficients = [4]float64{}
	copy(c.Coefficients[:], FromNullable(v.Coefficients))
	c.EnergyUnit = v.EnergyUnit
	return nil
}

// NullableFloats maps NaN and infinities to nil so that encoding/json
// writes them as null.
func NullableFloats(vs []float64) []*float64 {
	if vs == nil {
		return nil
	}
	out := make([]*float64, len(vs))
	for i := range vs {
		if !math.IsNaN(vs[i]) && !math.IsInf(vs[i], 0) {
			out[i] = &vs[i]
		}
	}
	return out
}

// FromNullable is the inverse of NullableFloats; nil becomes NaN.
func FromNullable(ps []*float64) []float64 {
	if ps == nil {
		return nil
	}
	out := make([]float64, len(ps))
	for i, p := range ps {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	return out
}

type AcquisitionTimes struct {
	Start    time.Time `json:"start"`
	RealTime float64   `json:"realTimeSeconds"`
	LiveTime float64   `json:"liveTimeSeconds"`
}

// MarkerRegion is the half-open channel index range [Left, Right) selected
// by the operator, together with the counts it contains.
type MarkerRegion struct {
	Left   uint32 `json:"left"`
	Right  uint32 `json:"right"`
	Counts uint64 `json:"counts"`
}

// Report is the decoded content of one CNF file. Channels[i] holds the
// counts of channel i+1 in the instrument's own numbering.
type Report struct {
	Sample      SampleInfo       `json:"sample"`
	Times       AcquisitionTimes `json:"times"`
	Calibration Calibration      `json:"calibration"`
	Markers     MarkerRegion     `json:"markers"`
	TotalCounts uint64           `json:"totalCounts"`
	Channels    []uint32         `json:"channels"`
	Sections    Sections         `json:"sections"`
}

// NumChannels returns the length of the spectrum.
func (r *Report) NumChannels() int {
	return len(r.Channels)
}

// Rate returns the count rate of storage index i in counts per second of
// live time.
func (r *Report) Rate(i int) (float64, error) {
	if r.Times.LiveTime <= 0 {
		return 0, ErrUndefinedRate
	}
	return float64(r.Channels[i]) / r.Times.LiveTime, nil
}
