package repo

import (
	"context"
	"database/sql"

	"controlline/internal/domain"
)

// ListAuditEvents returns the newest audit rows first, up to limit.
func (r Repo) ListAuditEvents(ctx context.Context, clientID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id,ts,type,client_id,entity_kind,entity_id,actor_id,payload_json FROM audit_events`
	var args []any
	if clientID != "" {
		q += ` WHERE client_id=?`
		args = append(args, clientID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var (
			ev  domain.AuditEvent
			cid sql.NullString
			eid sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &cid, &ev.EntityKind, &eid, &ev.ActorID, &ev.Payload); err != nil {
			return nil, err
		}
		ev.ClientID = cid.String
		ev.EntityID = eid.String
		res = append(res, ev)
	}
	return res, rows.Err()
}
