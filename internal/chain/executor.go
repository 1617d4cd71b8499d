package chain

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"controlline/internal/domain"
	"controlline/internal/engine"
)

// ValidatePeriod checks the YYYY-MM accounting period format and bounds.
// Runs before any side effect, so a bad period never leaves a run record.
func ValidatePeriod(period string) (time.Time, error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q, want YYYY-MM", period)
	}
	if t.Year() < 2000 || t.Year() > 2100 {
		return time.Time{}, fmt.Errorf("period year %d out of range 2000-2100", t.Year())
	}
	return t, nil
}

// ExecuteOptions are parameters for one chain execution.
type ExecuteOptions struct {
	ChainID  string
	ClientID string
	Period   string
	// Mode defaults to production.
	Mode string
	// Trigger records who asked: manual, api or scheduled.
	Trigger string
	ActorID string
}

// Executor runs chains against the engine and records run history.
// A (chain, client, period) triple runs to completion at most once;
// later triggers get a skipped result that is not persisted.
type Executor struct {
	Engine   engine.Engine
	Registry *Registry
	Now      func() time.Time
}

func NewExecutor(eng engine.Engine, reg *Registry) Executor {
	return Executor{Engine: eng, Registry: reg, Now: eng.Now}
}

func (x Executor) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

func (x Executor) Execute(ctx context.Context, opts ExecuteOptions) (domain.ChainRun, error) {
	c, ok := x.Registry.Get(opts.ChainID)
	if !ok {
		return domain.ChainRun{}, fmt.Errorf("unknown chain %q", opts.ChainID)
	}
	if opts.ClientID == "" {
		return domain.ChainRun{}, fmt.Errorf("client is required")
	}
	if _, err := ValidatePeriod(opts.Period); err != nil {
		return domain.ChainRun{}, err
	}
	if opts.Mode == "" {
		opts.Mode = "production"
	}
	if opts.Trigger == "" {
		opts.Trigger = "manual"
	}

	run := domain.ChainRun{
		ChainID:   opts.ChainID,
		ClientID:  opts.ClientID,
		Period:    opts.Period,
		Mode:      opts.Mode,
		Trigger:   opts.Trigger,
		StartedAt: x.now().UTC().Format(time.RFC3339),
	}

	// idempotency check and the running row share one transaction, so
	// two concurrent triggers cannot both start
	tx, err := x.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChainRun{}, err
	}
	defer tx.Rollback()

	done, err := x.Engine.Repo.HasCompletedRunTx(ctx, tx, opts.ChainID, opts.ClientID, opts.Period)
	if err != nil {
		return domain.ChainRun{}, err
	}
	if done {
		run.Status = "skipped"
		run.Reason = fmt.Sprintf("chain %s already completed for %s/%s", opts.ChainID, opts.ClientID, opts.Period)
		return run, nil
	}

	run.ID = uuid.NewString()
	run.Status = "running"
	if err := x.Engine.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return domain.ChainRun{}, fmt.Errorf("record run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ChainRun{}, err
	}

	phaseErr := x.runPhases(ctx, c, opts, &run)

	finished := x.now().UTC().Format(time.RFC3339)
	run.FinishedAt = &finished
	if phaseErr != nil {
		run.Status = "error"
		msg := phaseErr.Error()
		run.Error = &msg
	} else {
		run.Status = "completed"
	}
	if err := x.Engine.Repo.FinishRun(ctx, run); err != nil {
		return run, fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return run, nil
}

func (x Executor) runPhases(ctx context.Context, c Chain, opts ExecuteOptions, run *domain.ChainRun) error {
	if c.Kind == "debug" {
		log.Printf("chain %s: debug run for %s/%s", c.ID, opts.ClientID, opts.Period)
		return nil
	}

	genRes, err := x.Engine.GenerateEvents(ctx, engine.GenerateOptions{
		ClientID: opts.ClientID,
		Period:   opts.Period,
		ActorID:  opts.ActorID,
	})
	if err != nil {
		return fmt.Errorf("generate events: %w", err)
	}
	run.EventsAppended = len(genRes.Appended)

	_, seeded, err := x.Engine.DispatchNewEvents(ctx, opts.ClientID, opts.Period, opts.ActorID)
	if err != nil {
		return fmt.Errorf("dispatch events: %w", err)
	}
	run.StepsGenerated = seeded

	_, created, err := x.Engine.DeriveTasks(ctx, engine.DeriveOptions{
		ClientID: opts.ClientID,
		Period:   opts.Period,
		Persist:  true,
		ActorID:  opts.ActorID,
	})
	if err != nil {
		return fmt.Errorf("derive tasks: %w", err)
	}
	run.TasksGenerated = created
	return nil
}
