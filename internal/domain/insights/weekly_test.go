package insights

import (
	"strings"
	"testing"
	"time"

	"github.com/respira/insights/internal/domain/dataset"
)

func testEngine() *Engine {
	return NewEngine(dataset.NewNormalizer(nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func activityPatient(id string, events ...dataset.Event) *dataset.Patient {
	reg := day(2025, 3, 5)
	return &dataset.Patient{ID: id, RegisteredAt: &reg, ActivityLogs: events}
}

func TestWeekStart(t *testing.T) {
	// 2025-03-05 is a Wednesday; its week starts Monday 2025-03-03.
	if got := weekStart(day(2025, 3, 5)); !got.Equal(day(2025, 3, 3)) {
		t.Errorf("expected Mar 3, got %v", got)
	}
	// A Monday is its own week start.
	if got := weekStart(day(2025, 3, 3)); !got.Equal(day(2025, 3, 3)) {
		t.Errorf("Monday should map to itself, got %v", got)
	}
	// Sunday belongs to the preceding Monday's week.
	if got := weekStart(day(2025, 3, 9)); !got.Equal(day(2025, 3, 3)) {
		t.Errorf("Sunday should map to Mar 3, got %v", got)
	}
}

func TestPeriodLabel(t *testing.T) {
	if got := periodLabel(day(2025, 3, 3)); got != "Mar 3-9" {
		t.Errorf("expected \"Mar 3-9\", got %q", got)
	}
	if got := periodLabel(day(2025, 3, 31)); got != "Mar 31 - Apr 6" {
		t.Errorf("expected \"Mar 31 - Apr 6\", got %q", got)
	}
}

func TestWeeklyUsage_SingleActivity(t *testing.T) {
	e := testEngine()
	p := activityPatient("p1", dataset.Event{"createdAt": "2025-03-06T00:00:00Z", "steps": float64(1000)})

	rows := e.WeeklyUsage([]*dataset.Patient{p}, Activities, day(2025, 3, 1), day(2025, 3, 31), SumPayload)
	reported := Reported(rows)
	if len(reported) != 1 {
		t.Fatalf("expected 1 reported week, got %d", len(reported))
	}
	w := reported[0]
	if w.ActivePatients != 1 {
		t.Errorf("expected 1 active patient, got %d", w.ActivePatients)
	}
	if w.TotalPayload != 1000 {
		t.Errorf("expected total steps 1000, got %v", w.TotalPayload)
	}
	if w.AvgPayloadPerActive != 1000 {
		t.Errorf("expected avg steps per active 1000, got %d", w.AvgPayloadPerActive)
	}
	// Mar 6 falls in the Mar 3-9 week.
	if !w.Start.Equal(day(2025, 3, 3)) {
		t.Errorf("expected week start Mar 3, got %v", w.Start)
	}
}

func TestWeeklyUsage_PartitionCoversWindow(t *testing.T) {
	e := testEngine()
	// Window starts mid-week and ends mid-week.
	start, end := day(2025, 3, 5), day(2025, 10, 8)
	rows := e.WeeklyUsage(nil, Diaries, start, end, CountOnly)
	if len(rows) == 0 {
		t.Fatal("expected weeks")
	}
	if rows[0].Start.After(start) {
		t.Errorf("first week %v must start on/before window start %v", rows[0].Start, start)
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Start.Equal(rows[i-1].Start.AddDate(0, 0, 7)) {
			t.Fatalf("weeks %d and %d are not consecutive", i-1, i)
		}
		if rows[i].Index != rows[i-1].Index+1 {
			t.Fatalf("week indexes must be consecutive")
		}
	}
	last := rows[len(rows)-1]
	if last.Start.After(end) {
		t.Errorf("last week starts after the window end")
	}
	if last.Start.AddDate(0, 0, 7).Before(end) {
		t.Errorf("last week %v does not reach the window end %v", last.Start, end)
	}
}

func TestWeeklyUsage_NoDoubleCountPerWeek(t *testing.T) {
	e := testEngine()
	p := activityPatient("p1",
		dataset.Event{"createdAt": "2025-03-04T08:00:00Z"},
		dataset.Event{"createdAt": "2025-03-05T08:00:00Z"},
		dataset.Event{"createdAt": "2025-03-06T08:00:00Z"},
	)
	rows := Reported(e.WeeklyUsage([]*dataset.Patient{p}, Activities, day(2025, 3, 1), day(2025, 3, 31), CountOnly))
	if len(rows) != 1 {
		t.Fatalf("expected 1 reported week, got %d", len(rows))
	}
	if rows[0].ActivePatients != 1 {
		t.Errorf("3 events in one week must count the patient once, got %d", rows[0].ActivePatients)
	}
	if rows[0].AvgRecords != 3 {
		t.Errorf("expected avg records 3, got %v", rows[0].AvgRecords)
	}
}

func TestWeeklyUsage_SundayEventCounted(t *testing.T) {
	e := testEngine()
	// 2025-03-09 is a Sunday; a late-evening event still belongs to that week.
	p := activityPatient("p1", dataset.Event{"createdAt": "2025-03-09T23:30:00Z"})
	rows := Reported(e.WeeklyUsage([]*dataset.Patient{p}, Activities, day(2025, 3, 1), day(2025, 3, 31), CountOnly))
	if len(rows) != 1 || !rows[0].Start.Equal(day(2025, 3, 3)) {
		t.Fatalf("Sunday-evening event must land in the Mar 3-9 week, got %+v", rows)
	}
}

func TestWeeklyUsage_UnrecognizedPayloadKey(t *testing.T) {
	e := testEngine()
	p := activityPatient("p1", dataset.Event{"createdAt": "2025-03-06T00:00:00Z", "qty": float64(500)})
	rows := Reported(e.WeeklyUsage([]*dataset.Patient{p}, Activities, day(2025, 3, 1), day(2025, 3, 31), SumPayload))
	if len(rows) != 1 {
		t.Fatalf("expected 1 reported week, got %d", len(rows))
	}
	if rows[0].ActivePatients != 1 {
		t.Errorf("event with unknown payload key still marks the patient active")
	}
	if rows[0].TotalPayload != 0 {
		t.Errorf("unknown payload key must contribute 0, got %v", rows[0].TotalPayload)
	}
}

func TestWeeklyUsage_ZeroActiveWeeksRetainedThenFiltered(t *testing.T) {
	e := testEngine()
	p := activityPatient("p1", dataset.Event{"createdAt": "2025-03-06T00:00:00Z"})
	raw := e.WeeklyUsage([]*dataset.Patient{p}, Activities, day(2025, 3, 1), day(2025, 3, 31), CountOnly)
	if len(raw) < 5 {
		t.Fatalf("raw result must retain empty weeks, got %d", len(raw))
	}
	for _, r := range raw {
		if r.ActivePatients == 0 && (r.AvgRecords != 0 || r.AvgPayloadPerActive != 0) {
			t.Errorf("empty week must carry zero averages, got %+v", r)
		}
	}
	if got := Reported(raw); len(got) != 1 {
		t.Errorf("reported result must drop empty weeks, got %d", len(got))
	}
}

func TestPayloadValue_NestedContainer(t *testing.T) {
	ev := dataset.Event{"data": map[string]interface{}{"stepCount": float64(250)}}
	if got := PayloadValue(ev, Activities); got != 250 {
		t.Errorf("expected nested payload 250, got %v", got)
	}
	if got := PayloadValue(dataset.Event{"steps": float64(10), "data": map[string]interface{}{"steps": float64(99)}}, Activities); got != 10 {
		t.Errorf("top-level key must win over nested, got %v", got)
	}
}

func TestFirstEvent_UnparseableSortLast(t *testing.T) {
	e := testEngine()
	events := []dataset.Event{
		{"createdAt": "garbage", "tag": "bad"},
		{"createdAt": "2025-05-01T00:00:00Z", "tag": "late"},
		{"createdAt": "2025-03-01T00:00:00Z", "tag": "early"},
	}
	first, ok := e.FirstEvent(events, Diaries)
	if !ok {
		t.Fatal("expected a first event")
	}
	if first.String("tag") != "early" {
		t.Errorf("expected the earliest parseable event, got %s", first.String("tag"))
	}

	_, ok = e.FirstEvent([]dataset.Event{{"createdAt": "garbage"}}, Diaries)
	if ok {
		t.Error("all-unparseable events must yield no first event")
	}
}

func TestDailyPayload(t *testing.T) {
	e := testEngine()
	p := activityPatient("p1",
		dataset.Event{"createdAt": "2025-03-05T08:00:00Z", "steps": float64(1000)},
		dataset.Event{"createdAt": "2025-03-05T18:00:00Z", "steps": float64(500)},
		dataset.Event{"createdAt": "2025-04-01T08:00:00Z", "steps": float64(9999)},
	)
	rows := e.DailyPayload(p, Activities, 2025, time.March)
	if len(rows) != 31 {
		t.Fatalf("March has 31 days, got %d rows", len(rows))
	}
	if rows[4].Day != 5 || rows[4].Records != 2 || rows[4].Payload != 1500 {
		t.Errorf("unexpected day-5 row: %+v", rows[4])
	}
	for _, r := range rows {
		if r.Day != 5 && r.Payload != 0 {
			t.Errorf("April event leaked into March day %d", r.Day)
		}
	}
}

func TestCollectionByName(t *testing.T) {
	for _, name := range []string{"diaries", "acq", "activities", "administrations", "crises"} {
		if _, ok := CollectionByName(name); !ok {
			t.Errorf("expected collection %q", name)
		}
	}
	if _, ok := CollectionByName("bogus"); ok {
		t.Error("unknown name must not resolve")
	}
}

func TestWeeklyUsage_AdministrationsNested(t *testing.T) {
	e := testEngine()
	reg := day(2025, 3, 5)
	p := &dataset.Patient{
		ID:           "p1",
		RegisteredAt: &reg,
		Prescriptions: []dataset.Event{
			{"administrations": []interface{}{
				map[string]interface{}{"date": "2025-03-06T00:00:00Z"},
				map[string]interface{}{"date": "2025-03-07T00:00:00Z"},
			}},
		},
	}
	rows := Reported(e.WeeklyUsage([]*dataset.Patient{p}, Administrations, day(2025, 3, 1), day(2025, 3, 31), CountOnly))
	if len(rows) != 1 || rows[0].AvgRecords != 2 {
		t.Fatalf("expected one week with 2 administrations, got %+v", rows)
	}
	if !strings.HasPrefix(rows[0].Period, "Mar") {
		t.Errorf("unexpected period label %q", rows[0].Period)
	}
}
