package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"controlline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const eventColumns = `id,client_id,period,COALESCE(event_code,''),date,title,category,status,depends_on_json,COALESCE(description,''),tags_json,COALESCE(source,''),created_at,updated_at`

func scanEvent(scan func(dest ...any) error) (domain.ControlEvent, error) {
	var (
		ev          domain.ControlEvent
		dependsJSON sql.NullString
		tagsJSON    sql.NullString
	)
	err := scan(&ev.ID, &ev.ClientID, &ev.Period, &ev.Code, &ev.Date, &ev.Title, &ev.Category, &ev.Status,
		&dependsJSON, &ev.Description, &tagsJSON, &ev.Source, &ev.CreatedAt, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	if ev.DependsOn, err = decodeList(dependsJSON); err != nil {
		return ev, fmt.Errorf("event %s depends_on: %w", ev.ID, err)
	}
	if ev.Tags, err = decodeList(tagsJSON); err != nil {
		return ev, fmt.Errorf("event %s tags: %w", ev.ID, err)
	}
	return ev, nil
}

// AppendEventTx inserts a calendar event if its id is not present yet.
// Returns true when a row was actually written.
func (r Repo) AppendEventTx(ctx context.Context, tx *sql.Tx, ev domain.ControlEvent) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO control_events(id,client_id,period,event_code,date,title,category,status,depends_on_json,description,tags_json,source,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.ClientID, ev.Period, nullable(ev.Code), ev.Date, ev.Title, ev.Category, ev.Status,
		encodeList(ev.DependsOn), nullable(ev.Description), encodeList(ev.Tags), nullable(ev.Source),
		ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.ControlEvent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM control_events WHERE id=?`, id)
	return scanEvent(row.Scan)
}

// ListEvents returns ledger events, newest-dated last. Empty filter values
// mean "any".
func (r Repo) ListEvents(ctx context.Context, clientID, period, status string) ([]domain.ControlEvent, error) {
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
	if status != "" {
		where = append(where, "status=?")
		args = append(args, status)
	}
	q := `SELECT ` + eventColumns + ` FROM control_events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY date, id`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ControlEvent
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (r Repo) UpdateEventStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE control_events SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InferEventTemplates synthesizes a template catalog from the stored
// ledger: one entry per event code, labeled by the earliest occurrence.
func (r Repo) InferEventTemplates(ctx context.Context, clientID string) ([]domain.EventTemplate, error) {
	events, err := r.ListEvents(ctx, clientID, "", "")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var res []domain.EventTemplate
	for _, ev := range events {
		code := ev.Code
		if code == "" {
			continue
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		res = append(res, domain.EventTemplate{
			Code:          code,
			Label:         ev.Title,
			Category:      ev.Category,
			DefaultStatus: "new",
		})
	}
	return res, nil
}

func encodeList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(ns.String), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optionalString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
