package domain

// ControlEvent is one dated regulatory obligation for a client.
type ControlEvent struct {
	ID          string   `json:"id"`
	ClientID    string   `json:"client_id"`
	Period      string   `json:"period,omitempty"`
	Code        string   `json:"event_code,omitempty"`
	Date        string   `json:"date" format:"date"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Status      string   `json:"status" enum:"new,handled,error,planned,overdue,completed"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Source      string   `json:"source,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt   string   `json:"updated_at,omitempty" format:"date-time"`
}

// ProcessInstance tracks execution of one (client, profile, period) cycle.
type ProcessInstance struct {
	ID             string   `json:"id"`
	Key            string   `json:"key"`
	ClientID       string   `json:"client_id"`
	ProfileCode    string   `json:"profile_code"`
	Period         string   `json:"period"`
	Status         string   `json:"status"`
	ComputedStatus string   `json:"computed_status,omitempty"`
	Source         string   `json:"source,omitempty"`
	Events         []string `json:"events,omitempty"`
	LastEventCode  *string  `json:"last_event_code,omitempty"`
	Steps          []Step   `json:"steps,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
}

type Step struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Status      string  `json:"status" enum:"pending,completed,error"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

// ChainRun is one recorded invocation of the chain executor.
type ChainRun struct {
	ID             string  `json:"id,omitempty"`
	ChainID        string  `json:"chain_id"`
	ClientID       string  `json:"client_id"`
	Period         string  `json:"period"`
	Mode           string  `json:"mode"`
	Trigger        string  `json:"trigger"`
	Status         string  `json:"status" enum:"running,completed,error,skipped"`
	Reason         string  `json:"reason,omitempty"`
	StartedAt      string  `json:"started_at,omitempty" format:"date-time"`
	FinishedAt     *string `json:"finished_at,omitempty" format:"date-time"`
	EventsAppended int     `json:"events_appended"`
	StepsGenerated int     `json:"steps_generated"`
	TasksGenerated int     `json:"tasks_generated"`
	Error          *string `json:"error,omitempty"`
}

// Task is a derived work item; id is deterministic (task-{event.id}).
type Task struct {
	ID            string  `json:"id"`
	ClientID      string  `json:"client_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Status        string  `json:"status" enum:"planned,overdue,completed"`
	DueDate       string  `json:"due_date" format:"date"`
	SourceEventID string  `json:"source_event_id"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     *string `json:"updated_at,omitempty" format:"date-time"`
}

// EventTemplate is synthesized from stored events when no catalog exists.
type EventTemplate struct {
	Code          string `json:"code"`
	Label         string `json:"label"`
	Category      string `json:"category"`
	DefaultStatus string `json:"default_status"`
}

// AuditEvent is a row of the append-only audit log.
type AuditEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ClientID   string `json:"client_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
