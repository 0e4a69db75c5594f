package app

import (
	"newsdesk/api/internal/roles"
	"newsdesk/api/internal/store"
	"newsdesk/api/internal/workflow"
)

// Read-side authorization. The rule table is uniform across content kinds:
//
//	anonymous            -> published terminal state only
//	curator              -> every persisted state except author-private
//	                        CREATED stories
//	journalist, owner    -> all states of their own entities
//	journalist, not owner -> same as anonymous
//
// A denied read is reported as NOT_FOUND by the service layer, never as
// FORBIDDEN, so hidden entities are indistinguishable from absent ones.

func storyVisible(caller roles.Caller, item store.Story) bool {
	if caller.Owns(item.Author) {
		return true
	}
	switch caller.Role {
	case roles.RoleCurator:
		return item.State != string(workflow.StateCreated)
	default:
		return item.State == string(workflow.StatePublished)
	}
}

func topicVisible(caller roles.Caller, item store.Topic) bool {
	if caller.Owns(item.Author) {
		return true
	}
	if caller.IsCurator() {
		return true
	}
	return item.State == string(workflow.StateApproved)
}

func commentVisible(caller roles.Caller, item store.Comment) bool {
	if caller.Owns(item.Author) {
		return true
	}
	if caller.IsCurator() {
		return true
	}
	return item.State == string(workflow.StateApproved)
}
