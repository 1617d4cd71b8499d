package repo

import (
	"context"
	"database/sql"
	"strings"

	"controlline/internal/domain"
)

const taskColumns = `id,client_id,title,COALESCE(description,''),status,due_date,source_event_id,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var (
		t         domain.Task
		updatedAt sql.NullString
	)
	err := scan(&t.ID, &t.ClientID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.SourceEventID, &t.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.UpdatedAt = optionalString(updatedAt)
	return t, err
}

// InsertTaskTx writes a derived task unless its deterministic id already
// exists. Returns true when a new row was created.
func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,client_id,title,description,status,due_date,source_event_id,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING`,
		t.ID, t.ClientID, t.Title, nullable(t.Description), t.Status, t.DueDate, t.SourceEventID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) ListTasks(ctx context.Context, clientID, status string) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if clientID != "" {
		where = append(where, "client_id=?")
		args = append(args, clientID)
	}
	if status != "" {
		where = append(where, "status=?")
		args = append(args, status)
	}
	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY due_date, id`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
