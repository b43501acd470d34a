package dataset

import (
	"time"

	"github.com/google/uuid"
)

// Event is one raw record from a patient's event collections (a symptom
// diary entry, an activity log, a prescription, ...). The export mixes key
// names and shapes across app versions, so events stay schemaless and are
// read through tolerant accessors instead of a fixed struct.
type Event map[string]interface{}

// String returns the value under key if it is a string.
func (e Event) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// Number returns the first numeric value found under the given keys.
func (e Event) Number(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := e[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

// Events returns the nested event list under key (e.g. a prescription's
// administrations). Non-list values and non-object elements yield nothing.
func (e Event) Events(key string) []Event {
	raw, ok := e[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Event, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, Event(m))
		}
	}
	return out
}

// Patient is one row of the ingested dataset: identity, anthropometrics and
// the five event collections. All fields are read-only projections of the
// uploaded JSON; a new upload replaces the whole dataset.
type Patient struct {
	ID           string     `json:"id"`
	RegisteredAt *time.Time `json:"registered_at"` // nil when absent or unparseable
	Age          float64    `json:"age"`
	HeightMeters float64    `json:"height"`
	WeightKg     float64    `json:"weight"`
	Sex          string     `json:"sex"`    // M, F, or I (undefined after data deletion)
	Gender       string     `json:"gender"` // male / female

	SymptomDiaries []Event `json:"-"`
	ACQs           []Event `json:"-"`
	ActivityLogs   []Event `json:"-"`
	Prescriptions  []Event `json:"-"`
	Crises         []Event `json:"-"`
}

// PatientFromEvent builds a Patient from one raw record. Missing or
// wrongly-typed fields degrade to zero values; a malformed patient never
// aborts the batch. The registration timestamp is normalized once, here.
func PatientFromEvent(e Event, norm *Normalizer) *Patient {
	p := &Patient{
		ID:     e.String("id"),
		Sex:    e.String("sex"),
		Gender: e.String("gender"),

		SymptomDiaries: e.Events("symptomDiaries"),
		ACQs:           e.Events("acqs"),
		ActivityLogs:   e.Events("activityLogs"),
		Prescriptions:  e.Events("prescriptions"),
		Crises:         e.Events("crisis"),
	}
	if v, ok := e.Number("age"); ok {
		p.Age = v
	}
	if v, ok := e.Number("height"); ok {
		p.HeightMeters = v
	}
	if v, ok := e.Number("weight"); ok {
		p.WeightKg = v
	}
	if ts, ok := norm.Normalize(e["createdAt"]); ok {
		p.RegisteredAt = &ts
	}
	return p
}

// Administrations flattens the administration records nested one level
// under the patient's prescriptions.
func (p *Patient) Administrations() []Event {
	var out []Event
	for _, presc := range p.Prescriptions {
		out = append(out, presc.Events("administrations")...)
	}
	return out
}

// BMI returns weight / height², or 0 when either measurement is missing.
// A stored 0 means "not recorded" and must not produce an Inf.
func (p *Patient) BMI() float64 {
	if p.HeightMeters <= 0 || p.WeightKg <= 0 {
		return 0
	}
	return p.WeightKg / (p.HeightMeters * p.HeightMeters)
}

// Snapshot is one ingested dataset: the raw record count plus the cohort
// that survived the registration cutoff. It is immutable once built.
type Snapshot struct {
	ID         uuid.UUID  `json:"id"`
	UploadedAt time.Time  `json:"uploaded_at"`
	Cutoff     time.Time  `json:"cutoff"`
	RawCount   int        `json:"raw_count"`
	Cohort     []*Patient `json:"-"`
}

// CohortSize returns the number of patients in the filtered cohort.
func (s *Snapshot) CohortSize() int {
	return len(s.Cohort)
}
