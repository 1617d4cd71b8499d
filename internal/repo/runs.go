package repo

import (
	"context"
	"database/sql"
	"strings"

	"controlline/internal/domain"
)

const runColumns = `id,chain_id,client_id,period,mode,trigger_kind,status,started_at,finished_at,events_appended,steps_generated,tasks_generated,error`

func scanRun(scan func(dest ...any) error) (domain.ChainRun, error) {
	var (
		run        domain.ChainRun
		finishedAt sql.NullString
		runErr     sql.NullString
	)
	err := scan(&run.ID, &run.ChainID, &run.ClientID, &run.Period, &run.Mode, &run.Trigger, &run.Status,
		&run.StartedAt, &finishedAt, &run.EventsAppended, &run.StepsGenerated, &run.TasksGenerated, &runErr)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	run.FinishedAt = optionalString(finishedAt)
	run.Error = optionalString(runErr)
	return run, err
}

// HasCompletedRunTx checks whether the (chain, client, period) triple
// already has a completed run. Called inside the transaction that would
// insert the new running row, so two concurrent triggers cannot both pass.
func (r Repo) HasCompletedRunTx(ctx context.Context, tx *sql.Tx, chainID, clientID, period string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chain_runs WHERE chain_id=? AND client_id=? AND period=? AND status='completed'`,
		chainID, clientID, period).Scan(&n)
	return n > 0, err
}

func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.ChainRun) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chain_runs(id,chain_id,client_id,period,mode,trigger_kind,status,started_at,finished_at,events_appended,steps_generated,tasks_generated,error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.ChainID, run.ClientID, run.Period, run.Mode, run.Trigger, run.Status,
		run.StartedAt, run.FinishedAt, run.EventsAppended, run.StepsGenerated, run.TasksGenerated, run.Error)
	return err
}

// FinishRun records the terminal state of a run started earlier.
func (r Repo) FinishRun(ctx context.Context, run domain.ChainRun) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE chain_runs SET status=?, finished_at=?, events_appended=?, steps_generated=?, tasks_generated=?, error=? WHERE id=?`,
		run.Status, run.FinishedAt, run.EventsAppended, run.StepsGenerated, run.TasksGenerated, run.Error, run.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.ChainRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM chain_runs WHERE id=?`, id)
	return scanRun(row.Scan)
}

func (r Repo) ListRuns(ctx context.Context, chainID, clientID, period string, limit int) ([]domain.ChainRun, error) {
	var (
		where []string
		args  []any
	)
	if chainID != "" {
		where = append(where, "chain_id=?")
		args = append(args, chainID)
	}
	if clientID != "" {
		where = append(where, "client_id=?")
		args = append(args, clientID)
	}
	if period != "" {
		where = append(where, "period=?")
		args = append(args, period)
	}
	q := `SELECT ` + runColumns + ` FROM chain_runs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChainRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}
