package server

import (
	"controlline/internal/chain"
	"controlline/internal/domain"
)

// Request payloads

type RunChainRequest struct {
	ClientID string `json:"client_id" minLength:"1"`
	Period   string `json:"period" example:"2025-06"`
	Mode     string `json:"mode,omitempty" enum:"production,test"`
}

type GenerateEventsRequest struct {
	ClientID string `json:"client_id" minLength:"1"`
	Period   string `json:"period,omitempty" example:"2025-06"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

type SetEventStatusRequest struct {
	Status string `json:"status" enum:"new,handled,error,completed"`
}

type AddStepRequest struct {
	Title string `json:"title" minLength:"1"`
}

type DeriveTasksRequest struct {
	ClientID string `json:"client_id,omitempty"`
	Period   string `json:"period,omitempty" example:"2025-06"`
	Persist  bool   `json:"persist,omitempty"`
}

// Response bodies

type ChainListBody struct {
	Chains []chain.Chain `json:"chains"`
}

type RunBody struct {
	Run domain.ChainRun `json:"run"`
}

type RunListBody struct {
	Runs []domain.ChainRun `json:"runs"`
}

type GenerateEventsBody struct {
	Events   []domain.ControlEvent `json:"events"`
	Appended int                   `json:"appended"`
}

type EventBody struct {
	Event domain.ControlEvent `json:"event"`
}

type EventListBody struct {
	Events []domain.ControlEvent `json:"events"`
}

type InstanceBody struct {
	Instance domain.ProcessInstance `json:"instance"`
}

type InstanceListBody struct {
	Instances []domain.ProcessInstance `json:"instances"`
}

type StepBody struct {
	Step domain.Step `json:"step"`
}

type TaskListBody struct {
	Tasks   []domain.Task `json:"tasks"`
	Created int           `json:"created,omitempty"`
}

type TemplateListBody struct {
	Templates []domain.EventTemplate `json:"templates"`
}

type ProfileInfo struct {
	ClientID    string `json:"client_id"`
	Profile     string `json:"profile"`
	Description string `json:"description,omitempty"`
}

type ProfileListBody struct {
	Profiles []ProfileInfo `json:"profiles"`
}

type AuditListBody struct {
	Events []domain.AuditEvent `json:"events"`
}
