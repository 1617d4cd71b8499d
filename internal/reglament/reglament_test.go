package reglament

import (
	"testing"
	"time"

	"controlline/internal/domain"
)

func mustGenerate(t *testing.T, g Generator, clientID, profile string, ref time.Time) []domain.ControlEvent {
	t.Helper()
	events, err := g.Generate(clientID, profile, ref)
	if err != nil {
		t.Fatalf("Generate(%s): %v", profile, err)
	}
	if len(events) == 0 {
		t.Fatalf("Generate(%s): no events", profile)
	}
	return events
}

func TestGenerateDeterministic(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	g := Generator{}

	for _, profile := range []string{ProfileIPUsnDr, ProfileOooOsnoZp1025, ProfileOooUsnTourZp520} {
		first := mustGenerate(t, g, "acme", profile, ref)
		second := mustGenerate(t, g, "acme", profile, ref)
		if len(first) != len(second) {
			t.Fatalf("%s: %d events vs %d on rerun", profile, len(first), len(second))
		}
		for i := range first {
			if first[i].ID != second[i].ID || first[i].Date != second[i].Date {
				t.Fatalf("%s: event %d differs between runs: %v vs %v", profile, i, first[i], second[i])
			}
		}
	}
}

func TestGenerateUniqueIDs(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	events := mustGenerate(t, Generator{}, "acme", ProfileOooOsnoZp1025, ref)

	seen := map[string]bool{}
	for _, ev := range events {
		if seen[ev.ID] {
			t.Fatalf("duplicate event id %s", ev.ID)
		}
		seen[ev.ID] = true
	}
}

func TestDependsOnReferencesEarlierEvents(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	g := Generator{AllowUnknownProfiles: true}

	for _, profile := range []string{ProfileIPUsnDr, ProfileOooOsnoZp1025, ProfileOooUsnTourZp520, "something-else"} {
		events := mustGenerate(t, g, "acme", profile, ref)
		seen := map[string]bool{}
		for _, ev := range events {
			for _, dep := range ev.DependsOn {
				if !seen[dep] {
					t.Fatalf("%s: event %s depends on %s which is not emitted earlier", profile, ev.ID, dep)
				}
			}
			seen[ev.ID] = true
		}
	}
}

func TestIPUsnDrQuarterlyAdvances(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	events := mustGenerate(t, Generator{}, "ip_usn_dr", ProfileIPUsnDr, ref)

	byID := map[string]domain.ControlEvent{}
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	for id, date := range map[string]string{
		"ip_usn_dr-usn-advance-q1-2025-04-25": "2025-04-25",
		"ip_usn_dr-usn-advance-q2-2025-07-25": "2025-07-25",
		"ip_usn_dr-usn-advance-q3-2025-10-25": "2025-10-25",
	} {
		ev, ok := byID[id]
		if !ok {
			t.Fatalf("missing quarterly advance %s", id)
		}
		if ev.Date != date || ev.Category != "tax" {
			t.Fatalf("advance %s: got date=%s category=%s", id, ev.Date, ev.Category)
		}
	}

	// June is not a payment quarter: no advance falls inside it
	for _, ev := range FilterPeriod(events, 2025, time.June) {
		if ev.Title == "USN advance payment" {
			t.Fatalf("unexpected USN advance in June: %s", ev.ID)
		}
	}
}

func TestBankStatementFirstWorkday(t *testing.T) {
	// 2025-11-01 is a Saturday, first workday is Monday the 3rd
	if got := FirstWorkday(2025, time.November).Format(DateLayout); got != "2025-11-03" {
		t.Fatalf("FirstWorkday(2025-11) = %s", got)
	}
	if got := FirstWorkday(2025, time.April).Format(DateLayout); got != "2025-04-01" {
		t.Fatalf("FirstWorkday(2025-04) = %s", got)
	}

	events := mustGenerate(t, Generator{}, "acme", ProfileIPUsnDr, time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC))
	byID := map[string]domain.ControlEvent{}
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	docs, ok := byID["acme-docs-request-2025-11-03"]
	if !ok {
		t.Fatalf("missing November docs request on first workday")
	}
	if len(docs.DependsOn) != 1 || docs.DependsOn[0] != "acme-bank-statement-2025-11-03" {
		t.Fatalf("docs request depends_on = %v", docs.DependsOn)
	}
	if docs.Code != "request_documents" {
		t.Fatalf("docs request code = %s", docs.Code)
	}
}

func TestSalaryScheduleDiffersByProfile(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	osno := mustGenerate(t, Generator{}, "c1", ProfileOooOsnoZp1025, ref)
	tour := mustGenerate(t, Generator{}, "c2", ProfileOooUsnTourZp520, ref)

	find := func(events []domain.ControlEvent, id string) domain.ControlEvent {
		for _, ev := range events {
			if ev.ID == id {
				return ev
			}
		}
		t.Fatalf("event %s not found", id)
		return domain.ControlEvent{}
	}

	adv := find(osno, "c1-salary-advance-2025-06-10")
	if adv.Code != "payroll_advance" {
		t.Fatalf("salary advance code = %s", adv.Code)
	}
	ndfl := find(osno, "c1-ndfl-main-2025-06-26")
	if len(ndfl.DependsOn) != 1 || ndfl.DependsOn[0] != "c1-salary-main-2025-06-25" {
		t.Fatalf("ndfl-main depends_on = %v", ndfl.DependsOn)
	}

	find(tour, "c2-salary-advance-2025-06-05")
	find(tour, "c2-salary-main-2025-06-20")
	levy := find(tour, "c2-tourist-tax-2025-06-25")
	if levy.Code != "tourist_tax" || levy.Title != "Tourist tax report and payment" {
		t.Fatalf("tourist tax event: %+v", levy)
	}
}

func TestOsnoQ4LandsInNextYear(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	events := mustGenerate(t, Generator{}, "c1", ProfileOooOsnoZp1025, ref)

	var q4 *domain.ControlEvent
	for i := range events {
		if events[i].ID == "c1-vat-declaration-q4-2026-01-25" {
			q4 = &events[i]
		}
	}
	if q4 == nil {
		t.Fatalf("missing Q4 VAT declaration dated 2026-01-25")
	}
	if q4.Period != "2026-01" {
		t.Fatalf("Q4 VAT period = %s", q4.Period)
	}
}

func TestUnknownProfile(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	if _, err := (Generator{}).Generate("x", "no-such-profile", ref); err == nil {
		t.Fatalf("expected error for unknown profile")
	} else if _, ok := err.(UnknownProfileError); !ok {
		t.Fatalf("expected UnknownProfileError, got %T", err)
	}

	events := mustGenerate(t, Generator{AllowUnknownProfiles: true}, "x", "no-such-profile", ref)
	if len(events) != 3 {
		t.Fatalf("demo fallback: %d events", len(events))
	}
	if events[0].Source != "demo" || events[2].Date != "2025-06-25" {
		t.Fatalf("demo fallback events: %+v", events)
	}
}

func TestStatusAt(t *testing.T) {
	today := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		date      string
		completed bool
		want      string
	}{
		{"2025-06-14", false, "overdue"},
		{"2025-06-15", false, "planned"},
		{"2025-06-16", false, "planned"},
		{"2025-06-01", true, "completed"},
		{"not-a-date", false, "planned"},
	}
	for _, c := range cases {
		if got := StatusAt(c.date, c.completed, today); got != c.want {
			t.Fatalf("StatusAt(%s, %v) = %s, want %s", c.date, c.completed, got, c.want)
		}
	}
}

func TestFilterPeriod(t *testing.T) {
	ref := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	events := mustGenerate(t, Generator{}, "acme", ProfileIPUsnDr, ref)

	june := FilterPeriod(events, 2025, time.June)
	if len(june) == 0 {
		t.Fatalf("no events in June")
	}
	for _, ev := range june {
		if ev.Period != "2025-06" {
			t.Fatalf("event %s has period %s", ev.ID, ev.Period)
		}
	}
}
