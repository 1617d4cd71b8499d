package reglament

import (
	"fmt"
	"time"

	"controlline/internal/domain"
)

// DateLayout is the calendar-date wire format used across the module.
const DateLayout = "2006-01-02"

// Known profile codes. Each one maps to a fixed rule set below.
const (
	ProfileIPUsnDr        = "ip_usn_dr"
	ProfileOooOsnoZp1025  = "ooo_osno_3_zp1025"
	ProfileOooUsnTourZp520 = "ooo_usn_dr_tour_zp520"
)

// UnknownProfileError is returned when a profile has no rule set and the
// demo fallback is disabled.
type UnknownProfileError struct {
	Profile string
}

func (e UnknownProfileError) Error() string {
	return fmt.Sprintf("unknown client profile %q", e.Profile)
}

// Generator produces the obligation calendar for a client profile.
// Generate is pure: same inputs always yield the same events, with
// deterministic ids ({client}-{slug}-{date}).
type Generator struct {
	// AllowUnknownProfiles degrades unknown profiles to a 3-event demo
	// chain instead of failing.
	AllowUnknownProfiles bool
}

// Generate returns the full-year calendar for refDate's year, ordered so
// that every depends_on reference points to an earlier event.
func (g Generator) Generate(clientID, profileCode string, refDate time.Time) ([]domain.ControlEvent, error) {
	switch profileCode {
	case ProfileIPUsnDr:
		return generateIPUsnDr(clientID, refDate), nil
	case ProfileOooOsnoZp1025:
		return generateOooOsnoZp1025(clientID, refDate), nil
	case ProfileOooUsnTourZp520:
		return generateOooUsnTourZp520(clientID, refDate), nil
	}
	if g.AllowUnknownProfiles {
		return generateDemo(clientID, refDate), nil
	}
	return nil, UnknownProfileError{Profile: profileCode}
}

// FirstWorkday returns the first Mon-Fri date of the month.
func FirstWorkday(year int, month time.Month) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Period formats a (year, month) pair as YYYY-MM.
func Period(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// StatusAt computes the read-time status of an event date.
func StatusAt(eventDate string, completed bool, today time.Time) string {
	if completed {
		return "completed"
	}
	d, err := time.Parse(DateLayout, eventDate)
	if err != nil {
		return "planned"
	}
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(t) {
		return "overdue"
	}
	return "planned"
}

// FilterPeriod keeps only events dated inside the given month.
func FilterPeriod(events []domain.ControlEvent, year int, month time.Month) []domain.ControlEvent {
	var out []domain.ControlEvent
	for _, ev := range events {
		d, err := time.Parse(DateLayout, ev.Date)
		if err != nil {
			continue
		}
		if d.Year() == year && d.Month() == month {
			out = append(out, ev)
		}
	}
	return out
}

// codeBySlug maps calendar slugs to the event codes used by the
// auto-step catalog and the process instance store.
var codeBySlug = map[string]string{
	"bank-statement":        "request_bank_statements",
	"docs-request":          "request_documents",
	"salary-advance":        "payroll_advance",
	"salary-main":           "payroll_main",
	"tourist-tax":           "tourist_tax",
	"6-ndfl-monthly-control": "monthly_close",
}

func codeForSlug(slug string) string {
	if code, ok := codeBySlug[slug]; ok {
		return code
	}
	return slug
}

func newEvent(clientID string, date time.Time, slug, title, category, description string, dependsOn, tags []string, source string) domain.ControlEvent {
	day := date.Format(DateLayout)
	return domain.ControlEvent{
		ID:          fmt.Sprintf("%s-%s-%s", clientID, slug, day),
		ClientID:    clientID,
		Period:      Period(date.Year(), date.Month()),
		Code:        codeForSlug(slug),
		Date:        day,
		Title:       title,
		Category:    category,
		Description: description,
		DependsOn:   dependsOn,
		Tags:        tags,
		Source:      source,
	}
}

func bankAndDocs(clientID string, year int, month time.Month) []domain.ControlEvent {
	bankDate := FirstWorkday(year, month)
	bank := newEvent(clientID, bankDate, "bank-statement", "Bank statement request", "bank",
		"Bank statement request for previous month.", nil, []string{"bank", "statement", "monthly"}, "reglament")
	docs := newEvent(clientID, bankDate, "docs-request", "Primary documents request", "documents",
		"Request primary documents after bank statement is received.",
		[]string{bank.ID}, []string{"docs", "monthly"}, "reglament")
	return []domain.ControlEvent{bank, docs}
}

func salaryWithNDFL(clientID string, year int, month time.Month, advanceDay, mainDay int) []domain.ControlEvent {
	advDate := time.Date(year, month, advanceDay, 0, 0, 0, 0, time.UTC)
	mainDate := time.Date(year, month, mainDay, 0, 0, 0, 0, time.UTC)

	adv := newEvent(clientID, advDate, "salary-advance", "Salary advance payment", "salary",
		"Advance salary payment.", nil, []string{"salary", "monthly"}, "reglament")
	main := newEvent(clientID, mainDate, "salary-main", "Salary main payment", "salary",
		"Main salary payment.", nil, []string{"salary", "monthly"}, "reglament")
	ndflAdv := newEvent(clientID, advDate.AddDate(0, 0, 1), "ndfl-advance", "NDFL payment after advance", "tax",
		"NDFL payment for salary advance.", []string{adv.ID}, []string{"ndfl", "monthly"}, "reglament")
	ndflMain := newEvent(clientID, mainDate.AddDate(0, 0, 1), "ndfl-main", "NDFL payment after salary", "tax",
		"NDFL payment for main salary.", []string{main.ID}, []string{"ndfl", "monthly"}, "reglament")

	return []domain.ControlEvent{adv, main, ndflAdv, ndflMain}
}

func generateIPUsnDr(clientID string, refDate time.Time) []domain.ControlEvent {
	var events []domain.ControlEvent
	year := refDate.Year()

	for month := time.January; month <= time.December; month++ {
		events = append(events, bankAndDocs(clientID, year, month)...)
		insDate := time.Date(year, month, 20, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, insDate, "insurance-self-control",
			"Insurance contributions self-check", "insurance",
			"Control of personal insurance contributions for current month.",
			nil, []string{"insurance", "monthly"}, "reglament"))
	}

	// quarterly USN advances: 25 Apr, 25 Jul, 25 Oct
	quarters := []struct {
		month time.Month
		slug  string
	}{
		{time.April, "usn-advance-q1"},
		{time.July, "usn-advance-q2"},
		{time.October, "usn-advance-q3"},
	}
	for _, q := range quarters {
		d := time.Date(year, q.month, 25, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, d, q.slug, "USN advance payment", "tax",
			"Quarterly USN advance payment.", nil, []string{"usn", "advance", "quarterly"}, "reglament"))
	}

	events = append(events, newEvent(clientID, time.Date(year, time.April, 30, 0, 0, 0, 0, time.UTC),
		"usn-declaration", "USN annual declaration", "tax",
		"Annual USN declaration.", nil, []string{"usn", "annual"}, "reglament"))
	events = append(events, newEvent(clientID, time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC),
		"insurance-final", "Insurance contributions final payment", "insurance",
		"Final payment of fixed contributions and 1 percent.", nil, []string{"insurance", "annual"}, "reglament"))

	return events
}

func generateOooOsnoZp1025(clientID string, refDate time.Time) []domain.ControlEvent {
	var events []domain.ControlEvent
	year := refDate.Year()

	for month := time.January; month <= time.December; month++ {
		events = append(events, salaryWithNDFL(clientID, year, month, 10, 25)...)

		insDate := time.Date(year, month, 15, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, insDate, "insurance-control",
			"Insurance contributions control", "insurance",
			"Control of insurance contributions for previous month.",
			nil, []string{"insurance", "monthly"}, "reglament"))

		events = append(events, bankAndDocs(clientID, year, month)...)

		lastDay := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		events = append(events, newEvent(clientID, lastDay, "6-ndfl-monthly-control",
			"6-NDFL monthly control", "report",
			"Monthly control of 6-NDFL (section 1).", nil, []string{"6-ndfl", "monthly"}, "reglament"))
	}

	// quarterly VAT + 6-NDFL/RSV; Q4 reports land on 25 Jan of the next year
	quarterDates := []struct {
		year  int
		month time.Month
		slug  string
	}{
		{year, time.April, "q1"},
		{year, time.July, "q2"},
		{year, time.October, "q3"},
		{year + 1, time.January, "q4"},
	}
	for _, q := range quarterDates {
		d := time.Date(q.year, q.month, 25, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, d, "vat-declaration-"+q.slug, "VAT declaration", "tax",
			"Quarterly VAT declaration.", nil, []string{"vat", "quarterly"}, "reglament"))
		events = append(events, newEvent(clientID, d, "6-ndfl-rsv-"+q.slug, "6-NDFL and RSV reports", "report",
			"Quarterly 6-NDFL and RSV reports.", nil, []string{"6-ndfl", "rsv", "quarterly"}, "reglament"))
	}

	events = append(events, newEvent(clientID, time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC),
		"szv-stazh", "SZV-STAZH annual report", "report",
		"Annual SZV-STAZH report.", nil, []string{"pension", "annual"}, "reglament"))
	events = append(events, newEvent(clientID, time.Date(year, time.March, 31, 0, 0, 0, 0, time.UTC),
		"annual-accounting", "Annual accounting report", "report",
		"Annual accounting report.", nil, []string{"accounting", "annual"}, "reglament"))

	return events
}

func generateOooUsnTourZp520(clientID string, refDate time.Time) []domain.ControlEvent {
	var events []domain.ControlEvent
	year := refDate.Year()

	for month := time.January; month <= time.December; month++ {
		events = append(events, salaryWithNDFL(clientID, year, month, 5, 20)...)

		insDate := time.Date(year, month, 15, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, insDate, "insurance-control",
			"Insurance contributions control", "insurance",
			"Control of insurance contributions for previous month.",
			nil, []string{"insurance", "monthly"}, "reglament"))

		// tourist levy is formally due next month; kept in-month to keep
		// the yearly sequence stable
		tourDate := time.Date(year, month, 25, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, tourDate, "tourist-tax",
			"Tourist tax report and payment", "tax",
			"Monthly tourist tax report and payment.", nil, []string{"tourist-tax", "monthly"}, "reglament"))

		events = append(events, bankAndDocs(clientID, year, month)...)
	}

	quarters := []struct {
		month time.Month
		slug  string
	}{
		{time.April, "q1"},
		{time.July, "q2"},
		{time.October, "q3"},
	}
	for _, q := range quarters {
		d := time.Date(year, q.month, 25, 0, 0, 0, 0, time.UTC)
		events = append(events, newEvent(clientID, d, "usn-advance-"+q.slug, "USN advance payment", "tax",
			"Quarterly USN advance payment.", nil, []string{"usn", "advance", "quarterly"}, "reglament"))
		events = append(events, newEvent(clientID, d, "6-ndfl-rsv-"+q.slug, "6-NDFL and RSV reports", "report",
			"Quarterly 6-NDFL and RSV reports.", nil, []string{"6-ndfl", "rsv", "quarterly"}, "reglament"))
	}

	events = append(events, newEvent(clientID, time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC),
		"szv-stazh", "SZV-STAZH annual report", "report",
		"Annual SZV-STAZH report.", nil, []string{"pension", "annual"}, "reglament"))
	events = append(events, newEvent(clientID, time.Date(year, time.March, 31, 0, 0, 0, 0, time.UTC),
		"usn-declaration", "USN annual declaration", "tax",
		"Annual USN declaration.", nil, []string{"usn", "annual"}, "reglament"))

	return events
}

// generateDemo is the fallback chain for profiles without a rule set:
// statement -> docs -> tax, linearly dependent.
func generateDemo(clientID string, refDate time.Time) []domain.ControlEvent {
	day := time.Date(refDate.Year(), refDate.Month(), refDate.Day(), 0, 0, 0, 0, time.UTC)

	bank := newEvent(clientID, day, "bank-statement", "Bank statement request", "bank",
		"Bank statement request.", nil, []string{"bank", "demo"}, "demo")
	docs := newEvent(clientID, day, "docs-request", "Primary documents request", "documents",
		"Request primary documents after bank statement.", []string{bank.ID}, []string{"docs", "demo"}, "demo")
	tax := newEvent(clientID, day.AddDate(0, 0, 10), "tax-payment", "Tax payment deadline", "tax",
		"Demo tax payment deadline.", []string{docs.ID}, []string{"tax", "demo"}, "demo")

	return []domain.ControlEvent{bank, docs, tax}
}
