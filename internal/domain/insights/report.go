package insights

import (
	"fmt"
	"time"

	"github.com/respira/insights/internal/domain/dataset"
)

// Metrics the summary and distribution endpoints understand.
var metricNames = []string{
	"age", "weight", "height", "bmi",
	"acq_first_score", "acq_week_coverage",
	"weekly_diaries", "weekly_activities", "weekly_administrations",
}

// MetricValues extracts the per-patient values for a named metric, in cohort
// order. Zero stands for "not recorded" and is excluded downstream.
func (e *Engine) MetricValues(cohort []*dataset.Patient, metric string) ([]float64, error) {
	switch metric {
	case "age", "weight", "height", "bmi":
		out := make([]float64, len(cohort))
		for i, p := range cohort {
			switch metric {
			case "age":
				out[i] = p.Age
			case "weight":
				out[i] = p.WeightKg
			case "height":
				out[i] = p.HeightMeters
			case "bmi":
				out[i] = p.BMI()
			}
		}
		return out, nil
	case "acq_first_score":
		out := make([]float64, len(cohort))
		for i, p := range cohort {
			out[i] = e.FirstACQScore(p)
		}
		return out, nil
	case "acq_week_coverage":
		out := make([]float64, len(cohort))
		for i, p := range cohort {
			out[i] = e.ACQWeekCoverage(p)
		}
		return out, nil
	case "weekly_diaries":
		return e.WeeklyAverages(cohort, Diaries), nil
	case "weekly_activities":
		return e.WeeklyAverages(cohort, Activities), nil
	case "weekly_administrations":
		return e.WeeklyAverages(cohort, Administrations), nil
	}
	return nil, fmt.Errorf("unknown metric %q", metric)
}

// Distribution buckets a metric's values, using the metric's hand-chosen
// bins when it has them and data-derived quartiles otherwise.
func (e *Engine) Distribution(cohort []*dataset.Patient, metric string) ([]BinRow, error) {
	values, err := e.MetricValues(cohort, metric)
	if err != nil {
		return nil, err
	}
	bins, labels, ok := MetricBins(metric)
	if !ok {
		bins, labels = QuartileBins(values)
	}
	return Distribute(values, bins, labels), nil
}

// WeeklyReport is the reported weekly table for one collection.
type WeeklyReport struct {
	Collection string    `json:"collection"`
	Weeks      []WeekRow `json:"weeks"`
}

// Report is the full analysis output, every section in one document. The CLI
// prints it; the API also serves each section on its own endpoint.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	WindowStart time.Time             `json:"window_start"`
	WindowEnd   time.Time             `json:"window_end"`
	Overview    Overview              `json:"overview"`
	Engagement  Engagement            `json:"engagement"`
	Features    []FeatureCount        `json:"feature_usage"`
	FeatureDist []CountRow            `json:"feature_count_distribution"`
	SexAdoption []SexAdoption         `json:"sex_adoption"`
	Correlation []CorrelationGroup    `json:"correlation"`
	ACQ         ACQSection            `json:"acq"`
	Crises      CrisisSection         `json:"crises"`
	Records     Records               `json:"records"`
	Weekly      []WeeklyReport        `json:"weekly"`
	WeeklyAvgs  map[string][]CountRow `json:"weekly_average_histograms"`
	Metrics     map[string]Summary    `json:"metrics"`
}

// BuildReport runs every section over the cohort.
func (e *Engine) BuildReport(cohort []*dataset.Patient, start, end time.Time, recencyDays int) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		WindowStart: start,
		WindowEnd:   end,
		Overview:    BuildOverview(cohort),
		Engagement:  e.BuildEngagement(cohort, end, recencyDays),
		Features:    BuildFeatureUsage(cohort),
		FeatureDist: BuildFeatureCountDistribution(cohort),
		SexAdoption: BuildSexAdoption(cohort),
		Correlation: BuildCorrelationGroups(cohort),
		ACQ:         e.BuildACQSection(cohort),
		Crises:      e.BuildCrisisSection(cohort),
		Records:     e.BuildRecords(cohort),
		WeeklyAvgs:  map[string][]CountRow{},
		Metrics:     map[string]Summary{},
	}

	for _, col := range Collections {
		mode := CountOnly
		if len(col.PayloadKeys) > 0 {
			mode = SumPayload
		}
		r.Weekly = append(r.Weekly, WeeklyReport{
			Collection: col.Name,
			Weeks:      Reported(e.WeeklyUsage(cohort, col, start, end, mode)),
		})
	}

	for _, col := range []Collection{Diaries, Activities, Administrations} {
		r.WeeklyAvgs[col.Name] = RoundHistogram(e.WeeklyAverages(cohort, col))
	}

	for _, m := range metricNames {
		values, _ := e.MetricValues(cohort, m)
		r.Metrics[m] = Summarize(values)
	}
	return r
}
