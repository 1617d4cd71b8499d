package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"controlline/internal/config"
	"controlline/internal/domain"
	"controlline/internal/events"
	"controlline/internal/reglament"
	"controlline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Generator reglament.Generator
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Generator: reglament.Generator{AllowUnknownProfiles: cfg.Clients.AllowUnknownProfiles},
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ProfileFor resolves the configured profile code for a client. Clients
// absent from the catalog fall back to their own id, so a client named
// after a profile gets that profile's rule set.
func (e Engine) ProfileFor(clientID string) string {
	if profile, ok := e.Config.Profile(clientID); ok {
		return profile
	}
	return clientID
}

// GenerateOptions are parameters for calendar generation.
type GenerateOptions struct {
	ClientID string
	// Period restricts output to one YYYY-MM month; empty keeps the
	// whole generated year.
	Period  string
	ActorID string
	// DryRun previews events without touching the ledger.
	DryRun bool
}

type GenerateResult struct {
	Events   []domain.ControlEvent
	Appended []domain.ControlEvent
}

// GenerateEvents produces the rule-based calendar for a client and
// appends the new events to the ledger. Events whose ids already exist
// are left untouched.
func (e Engine) GenerateEvents(ctx context.Context, opts GenerateOptions) (GenerateResult, error) {
	if opts.ClientID == "" {
		return GenerateResult{}, errors.New("client is required")
	}
	refDate := e.now().UTC()
	if opts.Period != "" {
		t, err := time.Parse("2006-01", opts.Period)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("invalid period %q, want YYYY-MM", opts.Period)
		}
		refDate = t
	}

	profile := e.ProfileFor(opts.ClientID)
	generated, err := e.Generator.Generate(opts.ClientID, profile, refDate)
	if err != nil {
		return GenerateResult{}, err
	}
	if opts.Period != "" {
		generated = reglament.FilterPeriod(generated, refDate.Year(), refDate.Month())
	}

	res := GenerateResult{Events: generated}
	if opts.DryRun {
		return res, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return GenerateResult{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	for _, ev := range generated {
		ev.Status = "new"
		ev.CreatedAt = now
		ev.UpdatedAt = now
		created, err := e.Repo.AppendEventTx(ctx, tx, ev)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("append event %s: %w", ev.ID, err)
		}
		if created {
			res.Appended = append(res.Appended, ev)
		}
	}
	if err := e.Events.Append(ctx, tx, "events.generate", opts.ClientID, "ledger", "", opts.ActorID, events.EventPayload{
		"period":   opts.Period,
		"profile":  profile,
		"appended": len(res.Appended),
		"total":    len(generated),
	}); err != nil {
		return GenerateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return GenerateResult{}, err
	}
	return res, nil
}

// DispatchEvent routes one new ledger event into its process instance
// and marks it handled. On processing failure the event is marked error.
func (e Engine) DispatchEvent(ctx context.Context, eventID, actorID string) (domain.ProcessInstance, error) {
	ev, err := e.Repo.GetEvent(ctx, eventID)
	if err != nil {
		return domain.ProcessInstance{}, err
	}
	if ev.Status != "new" {
		return domain.ProcessInstance{}, fmt.Errorf("event %s is %s, only new events can be dispatched", ev.ID, ev.Status)
	}

	instanceID, _, err := e.dispatchOne(ctx, ev, actorID)
	if err != nil {
		e.markEventError(ctx, ev.ID)
		return domain.ProcessInstance{}, err
	}
	return e.Repo.GetInstance(ctx, instanceID)
}

// DispatchNewEvents routes every new ledger event of a (client, period)
// pair. Returns handled event count and the number of auto-seeded steps.
func (e Engine) DispatchNewEvents(ctx context.Context, clientID, period, actorID string) (int, int, error) {
	pending, err := e.Repo.ListEvents(ctx, clientID, period, "new")
	if err != nil {
		return 0, 0, err
	}
	var handled, seeded int
	for _, ev := range pending {
		_, n, err := e.dispatchOne(ctx, ev, actorID)
		if err != nil {
			e.markEventError(ctx, ev.ID)
			return handled, seeded, fmt.Errorf("dispatch event %s: %w", ev.ID, err)
		}
		handled++
		seeded += n
	}
	return handled, seeded, nil
}

func (e Engine) dispatchOne(ctx context.Context, ev domain.ControlEvent, actorID string) (string, int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	profile := e.ProfileFor(ev.ClientID)
	key := ev.ClientID + "::" + profile + "::" + ev.Period

	inst, err := e.Repo.GetInstanceByKeyTx(ctx, tx, key)
	if err == repo.ErrNotFound {
		inst = domain.ProcessInstance{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String(),
			Key:         key,
			ClientID:    ev.ClientID,
			ProfileCode: profile,
			Period:      ev.Period,
			Status:      "open",
			Source:      ev.Source,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertInstanceTx(ctx, tx, inst); err != nil {
			return "", 0, fmt.Errorf("insert instance %s: %w", key, err)
		}
	} else if err != nil {
		return "", 0, err
	}

	if err := e.Repo.AttachEventTx(ctx, tx, inst.ID, ev.ID); err != nil {
		return "", 0, err
	}
	code := ev.Code
	if err := e.Repo.TouchInstanceTx(ctx, tx, inst.ID, &code, now); err != nil {
		return "", 0, err
	}

	// auto-steps seed only an empty checklist; later events never
	// overwrite operator-managed steps
	seeded := 0
	existing, err := e.Repo.CountStepsTx(ctx, tx, inst.ID)
	if err != nil {
		return "", 0, err
	}
	if existing == 0 {
		for i, title := range e.Config.AutoStepsFor(ev.Code) {
			st := domain.Step{
				ID:        uuid.NewString(),
				Title:     title,
				Status:    "pending",
				CreatedAt: now,
			}
			if err := e.Repo.InsertStepTx(ctx, tx, inst.ID, i, st); err != nil {
				return "", 0, err
			}
			seeded++
		}
	}

	if err := e.Repo.UpdateEventStatusTx(ctx, tx, ev.ID, "handled", now); err != nil {
		return "", 0, err
	}
	if err := e.Events.Append(ctx, tx, "event.dispatch", ev.ClientID, "event", ev.ID, actorID, events.EventPayload{
		"instance_id":  inst.ID,
		"event_code":   ev.Code,
		"steps_seeded": seeded,
	}); err != nil {
		return "", 0, err
	}
	if err := tx.Commit(); err != nil {
		return "", 0, err
	}
	return inst.ID, seeded, nil
}

func (e Engine) markEventError(ctx context.Context, eventID string) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateEventStatusTx(ctx, tx, eventID, "error", e.timestamp()); err != nil {
		return
	}
	tx.Commit()
}

// SetEventStatus updates a ledger event's lifecycle status.
func (e Engine) SetEventStatus(ctx context.Context, eventID, status, actorID string) (domain.ControlEvent, error) {
	switch status {
	case "new", "handled", "error", "completed":
	default:
		return domain.ControlEvent{}, fmt.Errorf("invalid event status %q", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ControlEvent{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateEventStatusTx(ctx, tx, eventID, status, e.timestamp()); err != nil {
		return domain.ControlEvent{}, err
	}
	if err := e.Events.Append(ctx, tx, "event.status", "", "event", eventID, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.ControlEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ControlEvent{}, err
	}
	return e.Repo.GetEvent(ctx, eventID)
}

// AddStep appends a manual checklist step to an instance.
func (e Engine) AddStep(ctx context.Context, instanceID, title, actorID string) (domain.Step, error) {
	if title == "" {
		return domain.Step{}, errors.New("step title is required")
	}
	if _, err := e.Repo.GetInstance(ctx, instanceID); err != nil {
		return domain.Step{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Step{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	position, err := e.Repo.CountStepsTx(ctx, tx, instanceID)
	if err != nil {
		return domain.Step{}, err
	}
	st := domain.Step{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    "pending",
		CreatedAt: now,
	}
	if err := e.Repo.InsertStepTx(ctx, tx, instanceID, position, st); err != nil {
		return domain.Step{}, err
	}
	if err := e.Repo.TouchInstanceTx(ctx, tx, instanceID, nil, now); err != nil {
		return domain.Step{}, err
	}
	if err := e.Events.Append(ctx, tx, "instance.step.add", "", "instance", instanceID, actorID, events.EventPayload{
		"step_id": st.ID,
		"title":   title,
	}); err != nil {
		return domain.Step{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Step{}, err
	}
	return st, nil
}

// CompleteStep marks a step done; when it was the last pending step the
// instance's stored status flips to completed.
func (e Engine) CompleteStep(ctx context.Context, instanceID, stepID, actorID string) (domain.ProcessInstance, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProcessInstance{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.CompleteStepTx(ctx, tx, instanceID, stepID, now); err != nil {
		return domain.ProcessInstance{}, err
	}
	pending, err := e.Repo.PendingStepsTx(ctx, tx, instanceID)
	if err != nil {
		return domain.ProcessInstance{}, err
	}
	if pending == 0 {
		if err := e.Repo.SetInstanceStatusTx(ctx, tx, instanceID, "completed", now); err != nil {
			return domain.ProcessInstance{}, err
		}
	} else if err := e.Repo.TouchInstanceTx(ctx, tx, instanceID, nil, now); err != nil {
		return domain.ProcessInstance{}, err
	}
	if err := e.Events.Append(ctx, tx, "instance.step.complete", "", "instance", instanceID, actorID, events.EventPayload{
		"step_id":       stepID,
		"pending_after": pending,
	}); err != nil {
		return domain.ProcessInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProcessInstance{}, err
	}
	return e.Repo.GetInstance(ctx, instanceID)
}

// DeriveOptions are parameters for task derivation.
type DeriveOptions struct {
	ClientID string
	Period   string
	// Persist writes the derived tasks; otherwise the call is a preview.
	Persist bool
	ActorID string
}

// DeriveTasks projects ledger events into work items. Task ids are
// deterministic, so repeat derivation creates nothing new.
func (e Engine) DeriveTasks(ctx context.Context, opts DeriveOptions) ([]domain.Task, int, error) {
	evs, err := e.Repo.ListEvents(ctx, opts.ClientID, opts.Period, "")
	if err != nil {
		return nil, 0, err
	}

	today := e.now().UTC()
	now := e.timestamp()
	seen := map[string]bool{}
	var tasks []domain.Task
	for _, ev := range evs {
		id := "task-" + ev.ID
		if seen[id] {
			continue
		}
		seen[id] = true

		status := reglament.StatusAt(ev.Date, ev.Status == "completed", today)
		description := ev.Description
		if description == "" {
			description = fmt.Sprintf("%s event on %s", ev.Category, ev.Date)
		}
		tasks = append(tasks, domain.Task{
			ID:            id,
			ClientID:      ev.ClientID,
			Title:         ev.Title,
			Description:   description,
			Status:        status,
			DueDate:       ev.Date,
			SourceEventID: ev.ID,
			CreatedAt:     now,
		})
	}

	if !opts.Persist {
		return tasks, 0, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	created := 0
	for _, t := range tasks {
		ok, err := e.Repo.InsertTaskTx(ctx, tx, t)
		if err != nil {
			return nil, 0, fmt.Errorf("insert task %s: %w", t.ID, err)
		}
		if ok {
			created++
		}
	}
	if err := e.Events.Append(ctx, tx, "tasks.derive", opts.ClientID, "tasks", "", opts.ActorID, events.EventPayload{
		"period":  opts.Period,
		"derived": len(tasks),
		"created": created,
	}); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return tasks, created, nil
}

// Instances returns instances with their computed status annotated.
func (e Engine) Instances(ctx context.Context, clientID, period string) ([]domain.ProcessInstance, error) {
	insts, err := e.Repo.ListInstances(ctx, clientID, period)
	if err != nil {
		return nil, err
	}
	for i := range insts {
		insts[i] = domain.AnnotateComputedStatus(insts[i])
	}
	return insts, nil
}

// Instance returns one instance with computed status annotated.
func (e Engine) Instance(ctx context.Context, id string) (domain.ProcessInstance, error) {
	inst, err := e.Repo.GetInstance(ctx, id)
	if err != nil {
		return domain.ProcessInstance{}, err
	}
	return domain.AnnotateComputedStatus(inst), nil
}

// Templates synthesizes the event template catalog from the ledger.
func (e Engine) Templates(ctx context.Context, clientID string) ([]domain.EventTemplate, error) {
	return e.Repo.InferEventTemplates(ctx, clientID)
}
