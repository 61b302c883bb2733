package cube

import (
	"fmt"
	"log"
	"math"
	"time"
)

// string used to format Go ISO times
const ISOFormat = "2006-01-02T15:04:05.000Z"

// parseISOTime accepts full ISO datetimes as well as the partial forms
// produced when a view is written by hand.
func parseISOTime(s string) (time.Time, error) {
	for _, layout := range []string{ISOFormat, "2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse datetime '%s'", s)
}

// Datetime units, ordered from coarse to fine.
const (
	UnitYear   = "year"
	UnitMonth  = "month"
	UnitDay    = "day"
	UnitHour   = "hour"
	UnitMinute = "minute"
	UnitSecond = "second"
)

var unitRank = map[string]int{
	UnitYear:   0,
	UnitMonth:  1,
	UnitDay:    2,
	UnitHour:   3,
	UnitMinute: 4,
	UnitSecond: 5,
}

// Duration is a temporal step size with a calendar unit. All datetime
// arithmetic in the engine happens at the granularity of a unit; finer
// components are truncated away.
type Duration struct {
	N    int    `json:"n"`
	Unit string `json:"unit"`
}

func (d Duration) Valid() bool {
	_, ok := unitRank[d.Unit]
	return ok && d.N > 0
}

func (d Duration) String() string {
	return fmt.Sprintf("%d %s", d.N, d.Unit)
}

// CoarserUnit returns the coarser of two datetime units. Mixed-unit
// comparisons are coerced to the coarser unit; the coercion is logged
// because it loses precision.
func CoarserUnit(a, b string) string {
	ra, oka := unitRank[a]
	rb, okb := unitRank[b]
	if !oka {
		return b
	}
	if !okb {
		return a
	}
	if ra == rb {
		return a
	}
	if ra < rb {
		log.Printf("datetime unit coarsened from %s to %s", b, a)
		return a
	}
	log.Printf("datetime unit coarsened from %s to %s", a, b)
	return b
}

// TruncateToUnit drops all datetime components finer than unit.
func TruncateToUnit(t time.Time, unit string) time.Time {
	t = t.UTC()
	switch unit {
	case UnitYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case UnitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case UnitDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case UnitHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case UnitMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
}

// UnitsBetween counts whole units from a to b after truncating both to
// the unit. The result is negative if b is before a.
func UnitsBetween(a, b time.Time, unit string) int {
	a = TruncateToUnit(a, unit)
	b = TruncateToUnit(b, unit)
	switch unit {
	case UnitYear:
		return b.Year() - a.Year()
	case UnitMonth:
		return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	case UnitDay:
		return int(b.Sub(a) / (24 * time.Hour))
	case UnitHour:
		return int(b.Sub(a) / time.Hour)
	case UnitMinute:
		return int(b.Sub(a) / time.Minute)
	default:
		return int(b.Sub(a) / time.Second)
	}
}

// AddTo advances t by n steps of d, at d's unit.
func (d Duration) AddTo(t time.Time, n int) time.Time {
	t = TruncateToUnit(t, d.Unit)
	k := n * d.N
	switch d.Unit {
	case UnitYear:
		return t.AddDate(k, 0, 0)
	case UnitMonth:
		return t.AddDate(0, k, 0)
	case UnitDay:
		return t.AddDate(0, 0, k)
	case UnitHour:
		return t.Add(time.Duration(k) * time.Hour)
	case UnitMinute:
		return t.Add(time.Duration(k) * time.Minute)
	default:
		return t.Add(time.Duration(k) * time.Second)
	}
}

// STRef is the regular spatiotemporal reference frame of a cube: a
// projected rectangle with a fixed pixel grid and a temporal range
// walked in steps of DT.
type STRef struct {
	SRS    string
	Left   float64
	Right  float64
	Bottom float64
	Top    float64
	NX     int
	NY     int
	T0     time.Time
	T1     time.Time
	DT     Duration
}

func (s *STRef) DX() float64 {
	return (s.Right - s.Left) / float64(s.NX)
}

func (s *STRef) DY() float64 {
	return (s.Top - s.Bottom) / float64(s.NY)
}

// NT is the number of whole DT steps in [T0, T1], inclusive of T0.
func (s *STRef) NT() int {
	if !s.DT.Valid() {
		return 0
	}
	diff := UnitsBetween(s.T0, s.T1, s.DT.Unit)
	if diff < 0 {
		return 0
	}
	return diff/s.DT.N + 1
}

func (s *STRef) Validate() error {
	if s.NX <= 0 || s.NY <= 0 {
		return fmt.Errorf("invalid view: grid size %dx%d", s.NX, s.NY)
	}
	if s.Right <= s.Left || s.Top <= s.Bottom {
		return fmt.Errorf("invalid view: extent (%f,%f,%f,%f)", s.Left, s.Bottom, s.Right, s.Top)
	}
	if !s.DT.Valid() {
		return fmt.Errorf("invalid view: temporal step %+v", s.DT)
	}
	if s.T1.Before(s.T0) {
		return fmt.Errorf("invalid view: t1 %v before t0 %v", s.T1, s.T0)
	}
	return nil
}

func (s *STRef) Equal(o *STRef) bool {
	return s.SRS == o.SRS &&
		s.Left == o.Left && s.Right == o.Right &&
		s.Bottom == o.Bottom && s.Top == o.Top &&
		s.NX == o.NX && s.NY == o.NY &&
		TruncateToUnit(s.T0, s.DT.Unit).Equal(TruncateToUnit(o.T0, o.DT.Unit)) &&
		s.DT == o.DT && s.NT() == o.NT()
}

// Aggregation methods used by collection views.
const (
	AggNone   = "none"
	AggMean   = "mean"
	AggMin    = "min"
	AggMax    = "max"
	AggMedian = "median"
)

// CubeView is an STRef plus the labels controlling how irregular imagery
// is fitted onto the regular grid.
type CubeView struct {
	STRef
	AggregationMethod string
	ResamplingMethod  string
}

// BoundsST is a space-time box. T1 is exclusive: a datetime belongs to
// the box iff T0 <= t < T1.
type BoundsST struct {
	Left   float64
	Right  float64
	Bottom float64
	Top    float64
	T0     time.Time
	T1     time.Time
}

func (b BoundsST) String() string {
	return fmt.Sprintf("[%f %f %f %f] [%s %s)", b.Left, b.Bottom, b.Right, b.Top,
		b.T0.Format(ISOFormat), b.T1.Format(ISOFormat))
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorToInt(v float64) int {
	return int(math.Floor(v))
}
