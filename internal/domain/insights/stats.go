package insights

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientData is returned when a statistic is undefined for the
// group size, e.g. correlation over fewer than two patients.
var ErrInsufficientData = errors.New("insufficient data")

// Summary describes a numeric metric after dropping zero sentinels. A stored
// 0 means "not recorded" throughout the dataset, never a measurement.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// Summarize computes descriptive statistics over values, excluding zeros.
// An empty filtered sequence yields a zero-valued summary, never an error.
func Summarize(values []float64) Summary {
	var clean []float64
	for _, v := range values {
		if v != 0 && !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Summary{}
	}
	sort.Float64s(clean)

	var sum float64
	for _, v := range clean {
		sum += v
	}
	mean := sum / float64(len(clean))

	var std float64
	if len(clean) > 1 {
		var ss float64
		for _, v := range clean {
			ss += (v - mean) * (v - mean)
		}
		std = math.Sqrt(ss / float64(len(clean)-1))
	}

	return Summary{
		Count:  len(clean),
		Mean:   mean,
		StdDev: std,
		Median: quantile(clean, 0.5),
		Q1:     quantile(clean, 0.25),
		Q3:     quantile(clean, 0.75),
	}
}

// quantile interpolates linearly over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Pearson computes the correlation coefficient of two equal-length columns.
// Zero variance in either column yields 0, never NaN.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	var sx, sy float64
	for i := 0; i < n; i++ {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/float64(n), sy/float64(n)

	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// CorrelationMatrix is a symmetric Pearson matrix over named columns.
type CorrelationMatrix struct {
	Names  []string    `json:"names"`
	Values [][]float64 `json:"values"`
	N      int         `json:"n"`
}

// Correlate builds the Pearson matrix over the given columns. Fewer than two
// observations make correlation undefined; the caller gets a refusal, not a
// matrix of NaNs.
func Correlate(names []string, columns [][]float64) (*CorrelationMatrix, error) {
	if len(columns) == 0 || len(columns[0]) < 2 {
		return nil, ErrInsufficientData
	}
	m := &CorrelationMatrix{
		Names:  names,
		Values: make([][]float64, len(columns)),
		N:      len(columns[0]),
	}
	for i := range columns {
		m.Values[i] = make([]float64, len(columns))
		for j := range columns {
			if i == j {
				m.Values[i][j] = 1
				continue
			}
			m.Values[i][j] = Pearson(columns[i], columns[j])
		}
	}
	return m, nil
}

// FeaturePair is one off-diagonal cell of a correlation matrix.
type FeaturePair struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// StrongestPairs ranks the matrix's feature pairs by absolute correlation.
func StrongestPairs(m *CorrelationMatrix, top int) []FeaturePair {
	var pairs []FeaturePair
	for i := 0; i < len(m.Names); i++ {
		for j := i + 1; j < len(m.Names); j++ {
			pairs = append(pairs, FeaturePair{A: m.Names[i], B: m.Names[j], R: m.Values[i][j]})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].R) > math.Abs(pairs[b].R)
	})
	if top > 0 && len(pairs) > top {
		pairs = pairs[:top]
	}
	return pairs
}

// BinRow is one bucket of a percentage distribution.
type BinRow struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// MetricBins returns the hand-chosen breakpoints and labels for the known
// anthropometric metrics. Other metrics fall back to QuartileBins.
func MetricBins(metric string) (bins []float64, labels []string, ok bool) {
	switch metric {
	case "age":
		return []float64{0, 20, 30, 40, 50, 60, 70, 100},
			[]string{"0-20", "21-30", "31-40", "41-50", "51-60", "61-70", "71+"}, true
	case "weight":
		return []float64{0, 50, 60, 70, 80, 90, 100, 200},
			[]string{"0-50kg", "51-60kg", "61-70kg", "71-80kg", "81-90kg", "91-100kg", "101+kg"}, true
	case "height":
		return []float64{1.40, 1.50, 1.60, 1.70, 1.80, 1.90, 2.20},
			[]string{"1.40-1.50m", "1.51-1.60m", "1.61-1.70m", "1.71-1.80m", "1.81-1.90m", "1.91+m"}, true
	case "bmi":
		return []float64{0, 18.5, 25, 30, 35, 40, 100},
			[]string{"<18.5", "18.5-24.9", "25-29.9", "30-34.9", "35-39.9", "40+"}, true
	}
	return nil, nil, false
}

// QuartileBins derives breakpoints from the data's own quartiles, for metrics
// without hand-chosen bins.
func QuartileBins(values []float64) (bins []float64, labels []string) {
	var clean []float64
	for _, v := range values {
		if v != 0 && !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	sort.Float64s(clean)
	bins = []float64{clean[0], quantile(clean, 0.25), quantile(clean, 0.5), quantile(clean, 0.75), clean[len(clean)-1]}
	labels = []string{"Q1", "Q2", "Q3", "Q4"}
	return bins, labels
}

// Distribute buckets the zero-excluded values into bins and reports counts
// and percentages. Bin i covers [bins[i], bins[i+1]), with the final bin
// closed on the right so the maximum value lands in a bucket.
func Distribute(values []float64, bins []float64, labels []string) []BinRow {
	rows := make([]BinRow, len(labels))
	for i, l := range labels {
		rows[i].Label = l
	}
	if len(bins) < 2 {
		return rows
	}
	total := 0
	for _, v := range values {
		if v == 0 || math.IsNaN(v) {
			continue
		}
		for i := 0; i < len(bins)-1 && i < len(rows); i++ {
			last := i == len(bins)-2
			if v >= bins[i] && (v < bins[i+1] || (last && v == bins[i+1])) {
				rows[i].Count++
				total++
				break
			}
		}
	}
	if total > 0 {
		for i := range rows {
			rows[i].Pct = 100 * float64(rows[i].Count) / float64(total)
		}
	}
	return rows
}

// String renders a pair for logs and debugging.
func (p FeaturePair) String() string {
	return fmt.Sprintf("%s~%s r=%.2f", p.A, p.B, p.R)
}
