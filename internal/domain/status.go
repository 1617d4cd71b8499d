package domain

import "strings"

// ComputeInstanceStatus derives the instance status from its steps.
// Priority: error step > all completed > pending wait-step > open.
// Without steps the stored status wins, defaulting to open.
func ComputeInstanceStatus(inst ProcessInstance) string {
	for _, s := range inst.Steps {
		if strings.EqualFold(s.Status, "error") {
			return "error"
		}
	}
	if len(inst.Steps) > 0 {
		allCompleted := true
		for _, s := range inst.Steps {
			if !strings.EqualFold(s.Status, "completed") {
				allCompleted = false
				break
			}
		}
		if allCompleted {
			return "completed"
		}
		for _, s := range inst.Steps {
			if strings.EqualFold(s.Status, "pending") && strings.Contains(strings.ToLower(s.Title), "wait") {
				return "waiting"
			}
		}
		return "open"
	}
	if stored := strings.TrimSpace(inst.Status); stored != "" {
		return stored
	}
	return "open"
}

// AnnotateComputedStatus returns a copy with ComputedStatus filled in.
func AnnotateComputedStatus(inst ProcessInstance) ProcessInstance {
	inst.ComputedStatus = ComputeInstanceStatus(inst)
	return inst
}
