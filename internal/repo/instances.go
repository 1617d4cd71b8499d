package repo

import (
	"context"
	"database/sql"
	"strings"

	"controlline/internal/domain"
)

const instanceColumns = `id,key,client_id,profile_code,period,status,COALESCE(source,''),last_event_code,created_at,updated_at`

func scanInstance(scan func(dest ...any) error) (domain.ProcessInstance, error) {
	var (
		inst     domain.ProcessInstance
		lastCode sql.NullString
	)
	err := scan(&inst.ID, &inst.Key, &inst.ClientID, &inst.ProfileCode, &inst.Period, &inst.Status,
		&inst.Source, &lastCode, &inst.CreatedAt, &inst.UpdatedAt)
	if err == sql.ErrNoRows {
		return inst, ErrNotFound
	}
	if err != nil {
		return inst, err
	}
	inst.LastEventCode = optionalString(lastCode)
	return inst, nil
}

func (r Repo) InsertInstanceTx(ctx context.Context, tx *sql.Tx, inst domain.ProcessInstance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO process_instances(id,key,client_id,profile_code,period,status,source,last_event_code,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		inst.ID, inst.Key, inst.ClientID, inst.ProfileCode, inst.Period, inst.Status,
		nullable(inst.Source), inst.LastEventCode, inst.CreatedAt, inst.UpdatedAt)
	return err
}

func (r Repo) TouchInstanceTx(ctx context.Context, tx *sql.Tx, id string, lastEventCode *string, updatedAt string) error {
	if lastEventCode != nil {
		_, err := tx.ExecContext(ctx, `UPDATE process_instances SET last_event_code=?, updated_at=? WHERE id=?`, *lastEventCode, updatedAt, id)
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE process_instances SET updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func (r Repo) SetInstanceStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE process_instances SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachEventTx links a ledger event to an instance; re-linking the same
// event is a no-op.
func (r Repo) AttachEventTx(ctx context.Context, tx *sql.Tx, instanceID, eventID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO instance_events(instance_id,event_id) VALUES (?,?)
		ON CONFLICT(instance_id,event_id) DO NOTHING`, instanceID, eventID)
	return err
}

// GetInstanceByKeyTx reads the bare instance row inside the caller's
// transaction (children are not loaded).
func (r Repo) GetInstanceByKeyTx(ctx context.Context, tx *sql.Tx, key string) (domain.ProcessInstance, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM process_instances WHERE key=?`, key)
	return scanInstance(row.Scan)
}

func (r Repo) GetInstanceByKey(ctx context.Context, key string) (domain.ProcessInstance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM process_instances WHERE key=?`, key)
	inst, err := scanInstance(row.Scan)
	if err != nil {
		return inst, err
	}
	return r.loadInstanceChildren(ctx, inst)
}

func (r Repo) GetInstance(ctx context.Context, id string) (domain.ProcessInstance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM process_instances WHERE id=?`, id)
	inst, err := scanInstance(row.Scan)
	if err != nil {
		return inst, err
	}
	return r.loadInstanceChildren(ctx, inst)
}

func (r Repo) ListInstances(ctx context.Context, clientID, period string) ([]domain.ProcessInstance, error) {
	var (
		where []string
		args  []any
	)
	if clientID != "" {
		where = append(where, "client_id=?")
		args = append(args, clientID)
	}
	if period != "" {
		where = append(where, "period=?")
		args = append(args, period)
	}
	q := `SELECT ` + instanceColumns + ` FROM process_instances`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY period DESC, client_id`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProcessInstance
	for rows.Next() {
		inst, err := scanInstance(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i], err = r.loadInstanceChildren(ctx, res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) loadInstanceChildren(ctx context.Context, inst domain.ProcessInstance) (domain.ProcessInstance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT event_id FROM instance_events WHERE instance_id=? ORDER BY event_id`, inst.ID)
	if err != nil {
		return inst, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return inst, err
		}
		inst.Events = append(inst.Events, id)
	}
	if err := rows.Err(); err != nil {
		return inst, err
	}
	inst.Steps, err = r.ListSteps(ctx, inst.ID)
	return inst, err
}

func (r Repo) ListSteps(ctx context.Context, instanceID string) ([]domain.Step, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,status,created_at,completed_at FROM steps WHERE instance_id=? ORDER BY position`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Step
	for rows.Next() {
		var (
			st          domain.Step
			completedAt sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Title, &st.Status, &st.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		st.CompletedAt = optionalString(completedAt)
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r Repo) CountStepsTx(ctx context.Context, tx *sql.Tx, instanceID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE instance_id=?`, instanceID).Scan(&n)
	return n, err
}

func (r Repo) InsertStepTx(ctx context.Context, tx *sql.Tx, instanceID string, position int, st domain.Step) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO steps(id,instance_id,position,title,status,created_at,completed_at)
		VALUES (?,?,?,?,?,?,?)`,
		st.ID, instanceID, position, st.Title, st.Status, st.CreatedAt, st.CompletedAt)
	return err
}

func (r Repo) CompleteStepTx(ctx context.Context, tx *sql.Tx, instanceID, stepID, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE steps SET status='completed', completed_at=? WHERE instance_id=? AND id=?`,
		completedAt, instanceID, stepID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingStepsTx reports how many steps of the instance are not completed.
func (r Repo) PendingStepsTx(ctx context.Context, tx *sql.Tx, instanceID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE instance_id=? AND status!='completed'`, instanceID).Scan(&n)
	return n, err
}
