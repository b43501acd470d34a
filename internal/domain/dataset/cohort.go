package dataset

import "time"

// FilterSince returns the patients registered at or after cutoff, preserving
// input order. Patients with no parseable registration timestamp are excluded;
// absence of evidence is treated as "out of cohort", not as an error.
func FilterSince(patients []*Patient, cutoff time.Time) []*Patient {
	out := make([]*Patient, 0, len(patients))
	for _, p := range patients {
		if p.RegisteredAt == nil {
			continue
		}
		if p.RegisteredAt.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// BuildSnapshotCohort converts raw export records into patients and applies
// the registration cutoff in one pass.
func BuildSnapshotCohort(records []Event, norm *Normalizer, cutoff time.Time) []*Patient {
	patients := make([]*Patient, 0, len(records))
	for _, rec := range records {
		patients = append(patients, PatientFromEvent(rec, norm))
	}
	return FilterSince(patients, cutoff)
}
