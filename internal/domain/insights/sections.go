package insights

import (
	"math"
	"sort"
	"time"

	"github.com/respira/insights/internal/domain/dataset"
)

// Feature display names, in the order the correlation matrix and feature
// rankings use.
var featureNames = []string{"Diaries", "ACQ", "Activities", "Medications", "Crises"}

func featureUsed(p *dataset.Patient, i int) bool {
	switch i {
	case 0:
		return len(p.SymptomDiaries) > 0
	case 1:
		return len(p.ACQs) > 0
	case 2:
		return len(p.ActivityLogs) > 0
	case 3:
		return len(p.Prescriptions) > 0
	case 4:
		return len(p.Crises) > 0
	}
	return false
}

// Overview is the headline card row of the report.
type Overview struct {
	CohortSize           int     `json:"cohort_size"`
	PctWithPrescriptions float64 `json:"pct_with_prescriptions"`
	PctWithActivity      float64 `json:"pct_with_activity"`
	MeanAge              float64 `json:"mean_age"`
}

// BuildOverview computes the headline metrics. Mean age excludes the zero
// sentinel for "age not recorded".
func BuildOverview(cohort []*dataset.Patient) Overview {
	o := Overview{CohortSize: len(cohort)}
	if len(cohort) == 0 {
		return o
	}
	withPresc, withAct := 0, 0
	var ages []float64
	for _, p := range cohort {
		if len(p.Prescriptions) > 0 {
			withPresc++
		}
		if len(p.ActivityLogs) > 0 {
			withAct++
		}
		ages = append(ages, p.Age)
	}
	o.PctWithPrescriptions = 100 * float64(withPresc) / float64(len(cohort))
	o.PctWithActivity = 100 * float64(withAct) / float64(len(cohort))
	o.MeanAge = Summarize(ages).Mean
	return o
}

// Engagement splits the cohort into patients with and without any recent
// record, and breaks the active group down by sex.
type Engagement struct {
	RecencyDays int            `json:"recency_days"`
	Active      int            `json:"active"`
	Inactive    int            `json:"inactive"`
	ActiveBySex map[string]int `json:"active_by_sex"`
}

func recentIn(e *Engine, events []dataset.Event, fields []string, limit time.Time) bool {
	for _, ev := range events {
		for _, f := range fields {
			if ts, ok := e.norm.Normalize(ev[f]); ok && !ts.Before(limit) {
				return true
			}
		}
	}
	return false
}

// IsActive reports whether the patient has any qualifying record on or after
// limit, across all five collections. Prescriptions qualify through their own
// creation date or any administration date.
func (e *Engine) IsActive(p *dataset.Patient, limit time.Time) bool {
	if recentIn(e, p.SymptomDiaries, Diaries.TimeFields, limit) ||
		recentIn(e, p.ACQs, ACQ.TimeFields, limit) ||
		recentIn(e, p.ActivityLogs, Activities.TimeFields, limit) ||
		recentIn(e, p.Crises, Crises.TimeFields, limit) {
		return true
	}
	return recentIn(e, p.Prescriptions, []string{"createdAt"}, limit) ||
		recentIn(e, p.Administrations(), Administrations.TimeFields, limit)
}

// BuildEngagement counts active vs inactive patients, where active means any
// record within recencyDays before windowEnd.
func (e *Engine) BuildEngagement(cohort []*dataset.Patient, windowEnd time.Time, recencyDays int) Engagement {
	limit := windowEnd.UTC().AddDate(0, 0, -recencyDays)
	eng := Engagement{RecencyDays: recencyDays, ActiveBySex: map[string]int{}}
	for _, p := range cohort {
		if e.IsActive(p, limit) {
			eng.Active++
			if p.Sex != "" {
				eng.ActiveBySex[p.Sex]++
			}
		} else {
			eng.Inactive++
		}
	}
	return eng
}

// FeatureCount is one row of the feature-usage ranking.
type FeatureCount struct {
	Feature  string `json:"feature"`
	Patients int    `json:"patients"`
}

// BuildFeatureUsage counts, per feature, the patients who used it at least
// once. Every patient counts here, including sex "I".
func BuildFeatureUsage(cohort []*dataset.Patient) []FeatureCount {
	rows := make([]FeatureCount, len(featureNames))
	for i, name := range featureNames {
		rows[i].Feature = name
		for _, p := range cohort {
			if featureUsed(p, i) {
				rows[i].Patients++
			}
		}
	}
	return rows
}

// CountRow is one bucket of an integer-valued histogram.
type CountRow struct {
	Value    int `json:"value"`
	Patients int `json:"patients"`
}

// BuildFeatureCountDistribution histograms how many distinct features each
// patient used.
func BuildFeatureCountDistribution(cohort []*dataset.Patient) []CountRow {
	counts := map[int]int{}
	for _, p := range cohort {
		used := 0
		for i := range featureNames {
			if featureUsed(p, i) {
				used++
			}
		}
		counts[used]++
	}
	return sortedCountRows(counts)
}

func sortedCountRows(counts map[int]int) []CountRow {
	rows := make([]CountRow, 0, len(counts))
	for v, n := range counts {
		rows = append(rows, CountRow{Value: v, Patients: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Value < rows[j].Value })
	return rows
}

// SexAdoption reports per-feature adoption within one sex group.
type SexAdoption struct {
	Sex      string         `json:"sex"`
	Patients int            `json:"patients"`
	Usage    []FeatureCount `json:"usage"`
}

// BuildSexAdoption computes feature adoption per sex. Sex "I" marks a patient
// who exercised the data-deletion right; those patients stay in aggregate
// views but are excluded from sex-segmented ones.
func BuildSexAdoption(cohort []*dataset.Patient) []SexAdoption {
	var out []SexAdoption
	for _, sex := range []string{"M", "F"} {
		var group []*dataset.Patient
		for _, p := range cohort {
			if p.Sex == sex {
				group = append(group, p)
			}
		}
		out = append(out, SexAdoption{
			Sex:      sex,
			Patients: len(group),
			Usage:    BuildFeatureUsage(group),
		})
	}
	return out
}

// BuildCorrelation computes the feature-usage Pearson matrix for a patient
// group. Fewer than two patients → ErrInsufficientData.
func BuildCorrelation(group []*dataset.Patient) (*CorrelationMatrix, error) {
	columns := make([][]float64, len(featureNames))
	for i := range columns {
		columns[i] = make([]float64, len(group))
		for j, p := range group {
			if featureUsed(p, i) {
				columns[i][j] = 1
			}
		}
	}
	return Correlate(featureNames, columns)
}

// CorrelationGroup is the matrix (or refusal) for one patient grouping.
type CorrelationGroup struct {
	Group         string             `json:"group"`
	Matrix        *CorrelationMatrix `json:"matrix,omitempty"`
	StrongestPair []FeaturePair      `json:"strongest_pairs,omitempty"`
	Insufficient  bool               `json:"insufficient_data,omitempty"`
}

// BuildCorrelationGroups computes correlation for the whole cohort and for
// the M and F sub-cohorts.
func BuildCorrelationGroups(cohort []*dataset.Patient) []CorrelationGroup {
	groups := []struct {
		name    string
		members []*dataset.Patient
	}{{"all", cohort}, {"M", nil}, {"F", nil}}
	for _, p := range cohort {
		switch p.Sex {
		case "M":
			groups[1].members = append(groups[1].members, p)
		case "F":
			groups[2].members = append(groups[2].members, p)
		}
	}

	out := make([]CorrelationGroup, 0, len(groups))
	for _, g := range groups {
		cg := CorrelationGroup{Group: g.name}
		m, err := BuildCorrelation(g.members)
		if err != nil {
			cg.Insufficient = true
		} else {
			cg.Matrix = m
			cg.StrongestPair = StrongestPairs(m, 3)
		}
		out = append(out, cg)
	}
	return out
}

// StatusCount is one slice of the ACQ control-status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ACQSection aggregates the asthma control questionnaire records.
type ACQSection struct {
	StatusCounts     []StatusCount `json:"status_counts"`
	FirstScoreMean   float64       `json:"first_score_mean"`
	PatientsWithACQ  int           `json:"patients_with_acq"`
	PatientsWithout  int           `json:"patients_without_acq"`
	WeekCoverageMean float64       `json:"week_coverage_mean"`
}

// FirstACQScore returns the patient's earliest ACQ average score, 0 when
// none is recorded.
func (e *Engine) FirstACQScore(p *dataset.Patient) float64 {
	first, ok := e.FirstEvent(p.ACQs, ACQ)
	if !ok {
		// Events may lack timestamps entirely; fall back to list order.
		if len(p.ACQs) == 0 {
			return 0
		}
		first = p.ACQs[0]
	}
	v, _ := first.Number("average", "score")
	return v
}

// ACQWeekCoverage returns the percentage of ISO weeks between registration
// and the patient's last ACQ in which at least one ACQ was answered, capped
// at 100. No ACQs or no registration date → 0.
func (e *Engine) ACQWeekCoverage(p *dataset.Patient) float64 {
	if p.RegisteredAt == nil {
		return 0
	}
	weeks := map[[2]int]bool{}
	var last time.Time
	for _, ev := range p.ACQs {
		ts, ok := e.EventTime(ev, ACQ)
		if !ok {
			continue
		}
		y, w := ts.ISOWeek()
		weeks[[2]int{y, w}] = true
		if ts.After(last) {
			last = ts
		}
	}
	if len(weeks) == 0 {
		return 0
	}
	totalWeeks := int(last.Sub(*p.RegisteredAt).Hours()/24)/7 + 1
	if totalWeeks <= 0 {
		return 0
	}
	return math.Min(100, 100*float64(len(weeks))/float64(totalWeeks))
}

// BuildACQSection aggregates control statuses, first scores and week
// coverage across the cohort.
func (e *Engine) BuildACQSection(cohort []*dataset.Patient) ACQSection {
	statusCounts := map[string]int{}
	var firstScores, coverages []float64
	sec := ACQSection{}
	for _, p := range cohort {
		if len(p.ACQs) > 0 {
			sec.PatientsWithACQ++
		} else {
			sec.PatientsWithout++
		}
		for _, acq := range p.ACQs {
			if s := acq.String("controlStatus"); s != "" {
				statusCounts[s]++
			}
		}
		firstScores = append(firstScores, e.FirstACQScore(p))
		coverages = append(coverages, e.ACQWeekCoverage(p))
	}

	statuses := make([]string, 0, len(statusCounts))
	for s := range statusCounts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		sec.StatusCounts = append(sec.StatusCounts, StatusCount{Status: s, Count: statusCounts[s]})
	}
	sec.FirstScoreMean = Summarize(firstScores).Mean
	sec.WeekCoverageMean = Summarize(coverages).Mean
	return sec
}

// CrisisSection aggregates crisis episodes and their durations.
type CrisisSection struct {
	TotalEpisodes    int      `json:"total_episodes"`
	AffectedPatients int      `json:"affected_patients"`
	Durations        []int    `json:"durations_days"`
	DurationBands    []BinRow `json:"duration_bands"`
}

var crisisBands = []struct {
	label    string
	min, max int // inclusive min, exclusive max
}{
	{"1-5 days", 0, 5},
	{"6-10 days", 5, 10},
	{"11-15 days", 10, 15},
	{">15 days", 15, math.MaxInt32},
}

// CrisisDurations returns the episode durations in days for one patient.
// Episodes with missing dates or an interval running backwards are skipped.
func (e *Engine) CrisisDurations(p *dataset.Patient) []int {
	var out []int
	for _, cr := range p.Crises {
		ini, ok1 := e.norm.Normalize(cr["initialUsageDate"])
		fin, ok2 := e.norm.Normalize(cr["finalUsageDate"])
		if !ok1 || !ok2 || fin.Before(ini) {
			continue
		}
		out = append(out, int(fin.Sub(ini).Hours()/24))
	}
	return out
}

// BuildCrisisSection aggregates episode counts and duration bands.
func (e *Engine) BuildCrisisSection(cohort []*dataset.Patient) CrisisSection {
	sec := CrisisSection{}
	bands := make([]BinRow, len(crisisBands))
	for i, b := range crisisBands {
		bands[i].Label = b.label
	}
	for _, p := range cohort {
		sec.TotalEpisodes += len(p.Crises)
		if len(p.Crises) > 0 {
			sec.AffectedPatients++
		}
		for _, d := range e.CrisisDurations(p) {
			sec.Durations = append(sec.Durations, d)
			for i, b := range crisisBands {
				if d >= b.min && d < b.max {
					bands[i].Count++
					break
				}
			}
		}
	}
	if n := len(sec.Durations); n > 0 {
		for i := range bands {
			bands[i].Pct = 100 * float64(bands[i].Count) / float64(n)
		}
	}
	sec.DurationBands = bands
	return sec
}

// Records holds the individual highlights of the report.
type Records struct {
	MostActivePatient string `json:"most_active_patient,omitempty"`
	MostSteps         int    `json:"most_steps"`
	LongestCrisis     string `json:"longest_crisis_patient,omitempty"`
	LongestCrisisDays int    `json:"longest_crisis_days"`
}

// BuildRecords finds the patient with the most total steps and the longest
// crisis episode.
func (e *Engine) BuildRecords(cohort []*dataset.Patient) Records {
	rec := Records{}
	for _, p := range cohort {
		steps := 0.0
		for _, ev := range p.ActivityLogs {
			steps += PayloadValue(ev, Activities)
		}
		if int(steps) > rec.MostSteps {
			rec.MostSteps = int(steps)
			rec.MostActivePatient = p.ID
		}
		for _, d := range e.CrisisDurations(p) {
			if d > rec.LongestCrisisDays {
				rec.LongestCrisisDays = d
				rec.LongestCrisis = p.ID
			}
		}
	}
	return rec
}

// PatientRow is one row of the detailed patient table.
type PatientRow struct {
	ID            string  `json:"id"`
	Age           float64 `json:"age"`
	HeightMeters  float64 `json:"height"`
	WeightKg      float64 `json:"weight"`
	BMI           float64 `json:"bmi"`
	Diaries       int     `json:"diaries"`
	ACQs          int     `json:"acqs"`
	Activities    int     `json:"activities"`
	Prescriptions int     `json:"prescriptions"`
	Crises        int     `json:"crises"`
}

// BuildPatientTable projects the cohort into table rows, keeping only
// patients whose age falls in [minAge, maxAge].
func BuildPatientTable(cohort []*dataset.Patient, minAge, maxAge float64) []PatientRow {
	rows := make([]PatientRow, 0, len(cohort))
	for _, p := range cohort {
		if p.Age < minAge || p.Age > maxAge {
			continue
		}
		rows = append(rows, PatientRow{
			ID:            p.ID,
			Age:           p.Age,
			HeightMeters:  p.HeightMeters,
			WeightKg:      p.WeightKg,
			BMI:           p.BMI(),
			Diaries:       len(p.SymptomDiaries),
			ACQs:          len(p.ACQs),
			Activities:    len(p.ActivityLogs),
			Prescriptions: len(p.Prescriptions),
			Crises:        len(p.Crises),
		})
	}
	return rows
}

// WeeklyAverage returns the patient's mean records per ISO week for one
// collection, counting only weeks with at least one record. No records → 0.
func (e *Engine) WeeklyAverage(p *dataset.Patient, col Collection) float64 {
	weeks := map[[2]int]int{}
	for _, ev := range col.Events(p) {
		ts, ok := e.EventTime(ev, col)
		if !ok {
			continue
		}
		y, w := ts.ISOWeek()
		weeks[[2]int{y, w}]++
	}
	if len(weeks) == 0 {
		return 0
	}
	total := 0
	for _, n := range weeks {
		total += n
	}
	return float64(total) / float64(len(weeks))
}

// WeeklyAverages computes the per-patient weekly average for every cohort
// member, in cohort order.
func (e *Engine) WeeklyAverages(cohort []*dataset.Patient, col Collection) []float64 {
	out := make([]float64, len(cohort))
	for i, p := range cohort {
		out[i] = e.WeeklyAverage(p, col)
	}
	return out
}

// RoundHistogram buckets values by their rounded integer and counts patients
// per bucket.
func RoundHistogram(values []float64) []CountRow {
	counts := map[int]int{}
	for _, v := range values {
		counts[int(math.Round(v))]++
	}
	return sortedCountRows(counts)
}
