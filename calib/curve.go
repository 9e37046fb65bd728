/*Package calib loads and interpolates resistance-bridge calibration
curves (spec §6), and formats the CINI/CAPT upload sequence used to push
a curve onto the bridge's non-volatile curve table.

Grounded on devices.py's SIM921._load_calibration_curve in the picturec
stack this module's domain is drawn from: a two-column whitespace-
separated (temperature_K, resistance_Ω) file, sorted so resistance is
strictly increasing, uploaded as one CINI header line followed by one
CAPT line per row.
*/
package calib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// CurveType is the bridge's on-wire curve interpolation kind.
type CurveType int

const (
	Linear CurveType = iota
	SemilogT
	SemilogR
	Loglog
)

var curveTypeWire = map[CurveType]int{
	Linear:   0,
	SemilogT: 1,
	SemilogR: 2,
	Loglog:   3,
}

// ErrNotIncreasing is returned when two rows of a curve share the same
// resistance. Rows are sorted by resistance before the check, so a file
// in any row order is accepted as long as no resistance repeats.
var ErrNotIncreasing = errors.New("calib: resistance column must be strictly increasing")

// Point is one (temperature, resistance) row of a calibration curve.
type Point struct {
	TemperatureK float64
	ResistanceΩ  float64
}

// Curve is a loaded, validated calibration curve.
type Curve struct {
	Name   string
	Type   CurveType
	Points []Point // sorted by ResistanceΩ ascending
}

// Load parses a two-column whitespace-separated calibration file (spec
// §6). Lines are (temperature_K, resistance_Ω); blank lines and lines
// starting with '#' are ignored.
func Load(path, name string, typ CurveType) (*Curve, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calib: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f, name, typ)
}

func parse(r io.Reader, name string, typ CurveType) (*Curve, error) {
	sc := bufio.NewScanner(r)
	var pts []Point
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("calib: malformed row %q", line)
		}
		temp, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("calib: parse temperature %q: %w", fields[0], err)
		}
		res, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("calib: parse resistance %q: %w", fields[1], err)
		}
		pts = append(pts, Point{TemperatureK: temp, ResistanceΩ: res})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("calib: scan: %w", err)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].ResistanceΩ < pts[j].ResistanceΩ })
	for i := 1; i < len(pts); i++ {
		if pts[i].ResistanceΩ <= pts[i-1].ResistanceΩ {
			return nil, ErrNotIncreasing
		}
	}
	return &Curve{Name: name, Type: typ, Points: pts}, nil
}

// TemperatureAt interpolates the curve's temperature at the given
// resistance, piecewise-linear between bracketing points. Resistances
// outside the curve's range are clamped to the nearest endpoint.
func (c *Curve) TemperatureAt(resistanceΩ float64) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}
	if resistanceΩ <= pts[0].ResistanceΩ {
		return pts[0].TemperatureK
	}
	last := pts[len(pts)-1]
	if resistanceΩ >= last.ResistanceΩ {
		return last.TemperatureK
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].ResistanceΩ >= resistanceΩ })
	lo, hi := pts[i-1], pts[i]
	frac := (resistanceΩ - lo.ResistanceΩ) / (hi.ResistanceΩ - lo.ResistanceΩ)
	return lo.TemperatureK + frac*(hi.TemperatureK-lo.TemperatureK)
}

// ResistanceAt is the inverse of TemperatureAt: the resistance
// corresponding to a given temperature, interpolated over the same
// points (now walked in temperature order).
func (c *Curve) ResistanceAt(temperatureK float64) float64 {
	pts := make([]Point, len(c.Points))
	copy(pts, c.Points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].TemperatureK < pts[j].TemperatureK })
	if len(pts) == 0 {
		return 0
	}
	if temperatureK <= pts[0].TemperatureK {
		return pts[0].ResistanceΩ
	}
	last := pts[len(pts)-1]
	if temperatureK >= last.TemperatureK {
		return last.ResistanceΩ
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].TemperatureK >= temperatureK })
	lo, hi := pts[i-1], pts[i]
	frac := (temperatureK - lo.TemperatureK) / (hi.TemperatureK - lo.TemperatureK)
	return lo.ResistanceΩ + frac*(hi.ResistanceΩ-lo.ResistanceΩ)
}

// UploadLines formats the CINI header and one CAPT line per row, in the
// exact sequence spec §6 requires: "CINI <n>, <type>, <name>" followed by
// one "CAPT <n>, R, T" line per row.
func (c *Curve) UploadLines(curveNumber int) []string {
	out := make([]string, 0, len(c.Points)+1)
	out = append(out, fmt.Sprintf("CINI %d, %d, %s", curveNumber, curveTypeWire[c.Type], c.Name))
	for _, p := range c.Points {
		out = append(out, fmt.Sprintf("CAPT %d, %g, %g", curveNumber, p.ResistanceΩ, p.TemperatureK))
	}
	return out
}
