package storage

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Phases and actions of the hooks fired by DB.
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"

	ActionCreate = "Create"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

// HookName builds the hook fired around a write, e.g.
// HookName(PhaseBefore, "customer", ActionCreate) is "beforeCustomerCreate".
func HookName(phase, model, action string) string {
	// Casers carry state, so one is built per call.
	return phase + cases.Title(language.Und, cases.NoLower).String(model) + action
}
