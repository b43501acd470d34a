package insights

import (
	"github.com/respira/insights/internal/domain/dataset"
)

// Collection describes one per-patient event stream: how to reach its events,
// which fields may carry the event timestamp, and (for payload-bearing
// streams) which keys may carry the numeric payload. The mobile app changed
// key names across versions, so both lists are ordered candidate sets — first
// hit wins.
type Collection struct {
	Name   string
	Events func(p *dataset.Patient) []dataset.Event

	// TimeFields are tried in order to find the event timestamp.
	TimeFields []string

	// PayloadKeys are tried in order on the event itself, then one level
	// down inside each ContainerKeys entry. No hit means payload 0.
	PayloadKeys   []string
	ContainerKeys []string
}

var stepKeys = []string{"steps", "stepCount", "totalSteps", "passos", "total_passos", "quantity", "count"}

var (
	Diaries = Collection{
		Name:       "diaries",
		Events:     func(p *dataset.Patient) []dataset.Event { return p.SymptomDiaries },
		TimeFields: []string{"createdAt"},
	}
	ACQ = Collection{
		Name:       "acq",
		Events:     func(p *dataset.Patient) []dataset.Event { return p.ACQs },
		TimeFields: []string{"createdAt", "answeredAt"},
	}
	Activities = Collection{
		Name:          "activities",
		Events:        func(p *dataset.Patient) []dataset.Event { return p.ActivityLogs },
		TimeFields:    []string{"createdAt", "date"},
		PayloadKeys:   stepKeys,
		ContainerKeys: []string{"data", "attributes", "payload"},
	}
	Administrations = Collection{
		Name:       "administrations",
		Events:     func(p *dataset.Patient) []dataset.Event { return p.Administrations() },
		TimeFields: []string{"date"},
	}
	Crises = Collection{
		Name:       "crises",
		Events:     func(p *dataset.Patient) []dataset.Event { return p.Crises },
		TimeFields: []string{"initialUsageDate", "finalUsageDate", "updatedAt"},
	}
)

// Collections lists every standard event stream, in report order.
var Collections = []Collection{Diaries, ACQ, Activities, Administrations, Crises}

// CollectionByName resolves a URL slug to its collection.
func CollectionByName(name string) (Collection, bool) {
	for _, c := range Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}
