package insights

import (
	"time"

	"github.com/respira/insights/internal/domain/dataset"
)

// Service answers every insight query against the current snapshot. The
// analysis window and recency horizon are injected once here; sections never
// derive their own.
type Service struct {
	data        *dataset.Service
	engine      *Engine
	start, end  time.Time
	recencyDays int
}

func NewService(data *dataset.Service, start, end time.Time, recencyDays int) *Service {
	return &Service{
		data:        data,
		engine:      NewEngine(data.Normalizer()),
		start:       start,
		end:         end,
		recencyDays: recencyDays,
	}
}

// Engine exposes the bucketing engine for the CLI.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) cohort() ([]*dataset.Patient, error) {
	snap, err := s.data.Current()
	if err != nil {
		return nil, err
	}
	return snap.Cohort, nil
}

func (s *Service) Report() (*Report, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	return s.engine.BuildReport(cohort, s.start, s.end, s.recencyDays), nil
}

func (s *Service) Overview() (Overview, error) {
	cohort, err := s.cohort()
	if err != nil {
		return Overview{}, err
	}
	return BuildOverview(cohort), nil
}

func (s *Service) Engagement() (Engagement, error) {
	cohort, err := s.cohort()
	if err != nil {
		return Engagement{}, err
	}
	return s.engine.BuildEngagement(cohort, s.end, s.recencyDays), nil
}

func (s *Service) FeatureUsage() ([]FeatureCount, []CountRow, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, nil, err
	}
	return BuildFeatureUsage(cohort), BuildFeatureCountDistribution(cohort), nil
}

func (s *Service) SexAdoption() ([]SexAdoption, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	return BuildSexAdoption(cohort), nil
}

func (s *Service) Correlation() ([]CorrelationGroup, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	return BuildCorrelationGroups(cohort), nil
}

func (s *Service) ACQ() (ACQSection, error) {
	cohort, err := s.cohort()
	if err != nil {
		return ACQSection{}, err
	}
	return s.engine.BuildACQSection(cohort), nil
}

func (s *Service) Crises() (CrisisSection, error) {
	cohort, err := s.cohort()
	if err != nil {
		return CrisisSection{}, err
	}
	return s.engine.BuildCrisisSection(cohort), nil
}

func (s *Service) Records() (Records, error) {
	cohort, err := s.cohort()
	if err != nil {
		return Records{}, err
	}
	return s.engine.BuildRecords(cohort), nil
}

// Weekly returns the reported weekly table for a collection. Payload-bearing
// collections aggregate their payload as well.
func (s *Service) Weekly(col Collection) ([]WeekRow, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	mode := CountOnly
	if len(col.PayloadKeys) > 0 {
		mode = SumPayload
	}
	return Reported(s.engine.WeeklyUsage(cohort, col, s.start, s.end, mode)), nil
}

// Patients returns the filtered patient table.
func (s *Service) Patients(minAge, maxAge float64) ([]PatientRow, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	return BuildPatientTable(cohort, minAge, maxAge), nil
}

// DailySteps returns a patient's daily activity payload for one month.
func (s *Service) DailySteps(patientID string, year int, month time.Month) ([]DayRow, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	for _, p := range cohort {
		if p.ID == patientID {
			return s.engine.DailyPayload(p, Activities, year, month), nil
		}
	}
	return nil, ErrPatientNotFound
}

func (s *Service) MetricSummary(metric string) (Summary, error) {
	cohort, err := s.cohort()
	if err != nil {
		return Summary{}, err
	}
	values, err := s.engine.MetricValues(cohort, metric)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(values), nil
}

func (s *Service) MetricDistribution(metric string) ([]BinRow, error) {
	cohort, err := s.cohort()
	if err != nil {
		return nil, err
	}
	return s.engine.Distribution(cohort, metric)
}
