package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func step(title, status string) Step {
	return Step{ID: "s-" + title, Title: title, Status: status, CreatedAt: "2025-01-01T00:00:00Z"}
}

func TestComputeInstanceStatusErrorWins(t *testing.T) {
	inst := ProcessInstance{Steps: []Step{
		step("Prepare draft reports", "completed"),
		step("Review calculations", "error"),
		step("Wait for documents", "pending"),
	}}
	assert.Equal(t, "error", ComputeInstanceStatus(inst))
}

func TestComputeInstanceStatusAllCompleted(t *testing.T) {
	inst := ProcessInstance{Steps: []Step{
		step("Send request to client", "completed"),
		step("Verify bank statements", "completed"),
	}}
	assert.Equal(t, "completed", ComputeInstanceStatus(inst))

	// Adding a pending step reopens the instance.
	inst.Steps = append(inst.Steps, step("Archive payroll documents", "pending"))
	assert.Equal(t, "open", ComputeInstanceStatus(inst))

	// A pending step whose title mentions waiting flips it to waiting.
	inst.Steps[2] = step("Wait for bank statements", "pending")
	assert.Equal(t, "waiting", ComputeInstanceStatus(inst))
}

func TestComputeInstanceStatusNoSteps(t *testing.T) {
	assert.Equal(t, "open", ComputeInstanceStatus(ProcessInstance{}))
	assert.Equal(t, "closed", ComputeInstanceStatus(ProcessInstance{Status: "closed"}))
	assert.Equal(t, "open", ComputeInstanceStatus(ProcessInstance{Status: "   "}))
}

func TestAnnotateComputedStatusDoesNotPersist(t *testing.T) {
	inst := ProcessInstance{Status: "open", Steps: []Step{step("Check received documents", "completed")}}
	annotated := AnnotateComputedStatus(inst)
	assert.Equal(t, "completed", annotated.ComputedStatus)
	assert.Equal(t, "open", annotated.Status)
	assert.Empty(t, inst.ComputedStatus)
}
