// Package workflow decides whether a moderation command may be applied to an
// entity in its current state, and what the resulting state is. It is a pure
// decision layer: it never touches storage.
package workflow

import (
	"errors"

	"newsdesk/api/internal/roles"
)

type Kind string

const (
	KindStory   Kind = "story"
	KindTopic   Kind = "topic"
	KindComment Kind = "comment"
)

type State string

const (
	StateCreated   State = "CREATED"
	StateSubmitted State = "SUBMITTED"
	StateApproved  State = "APPROVED"
	StatePublished State = "PUBLISHED"
)

type Command string

const (
	CommandSubmit  Command = "submit"
	CommandApprove Command = "approve"
	CommandPublish Command = "publish"
	CommandReject  Command = "reject"
)

var (
	// ErrDenied means the caller's role may never issue this command for
	// this kind, regardless of the entity's state.
	ErrDenied = errors.New("caller not authorized for command")
	// ErrInvalidTransition means the command is not defined for the
	// entity's current state.
	ErrInvalidTransition = errors.New("command not valid in current state")
)

// Decision is the computed outcome of an allowed transition. Delete marks the
// terminal reject of a Topic or Comment, which removes the entity instead of
// moving it to a state.
type Decision struct {
	Next   State
	Delete bool
}

type rule struct {
	next      State
	delete    bool
	role      roles.Role
	ownerOnly bool
}

// Transition tables. A command missing from a state map is an invalid
// transition; a command missing from the kind's authority map below can never
// be issued by anyone.
var transitions = map[Kind]map[State]map[Command]rule{
	KindStory: {
		StateCreated: {
			CommandSubmit: {next: StateSubmitted, role: roles.RoleJournalist, ownerOnly: true},
		},
		StateSubmitted: {
			CommandApprove: {next: StateApproved, role: roles.RoleCurator},
			CommandReject:  {next: StateCreated, role: roles.RoleCurator},
		},
		StateApproved: {
			CommandPublish: {next: StatePublished, role: roles.RoleCurator},
		},
		// PUBLISHED has no outgoing transition.
	},
	KindTopic: {
		StateSubmitted: {
			CommandApprove: {next: StateApproved, role: roles.RoleCurator},
			CommandReject:  {delete: true, role: roles.RoleCurator},
		},
	},
	KindComment: {
		StateSubmitted: {
			CommandApprove: {next: StateApproved, role: roles.RoleCurator},
			CommandReject:  {delete: true, role: roles.RoleCurator},
		},
	},
}

// commandRoles records which role may issue each command per kind, across all
// states. The role check runs before the state lookup so that an unauthorized
// caller learns nothing about the entity's current state.
var commandRoles = map[Kind]map[Command]roles.Role{
	KindStory: {
		CommandSubmit:  roles.RoleJournalist,
		CommandApprove: roles.RoleCurator,
		CommandPublish: roles.RoleCurator,
		CommandReject:  roles.RoleCurator,
	},
	KindTopic: {
		CommandApprove: roles.RoleCurator,
		CommandReject:  roles.RoleCurator,
	},
	KindComment: {
		CommandApprove: roles.RoleCurator,
		CommandReject:  roles.RoleCurator,
	},
}

// Authorized reports whether the role may ever issue cmd for the kind. The
// façade calls this before loading the entity, so unauthorized callers learn
// nothing about whether the entity exists.
func Authorized(kind Kind, cmd Command, role roles.Role) bool {
	required, ok := commandRoles[kind][cmd]
	return ok && role == required
}

// AttemptTransition validates cmd against the entity's current state and the
// caller's authority, returning the resulting decision. owner is the entity's
// author identity, used for owner-gated commands such as story submit.
func AttemptTransition(kind Kind, current State, cmd Command, caller roles.Caller, owner string) (Decision, error) {
	required, ok := commandRoles[kind][cmd]
	if !ok || caller.Role != required {
		return Decision{}, ErrDenied
	}

	r, ok := transitions[kind][current][cmd]
	if !ok {
		return Decision{}, ErrInvalidTransition
	}
	if r.ownerOnly && !caller.Owns(owner) {
		return Decision{}, ErrDenied
	}
	return Decision{Next: r.next, Delete: r.delete}, nil
}

// InitialState returns the state a freshly created entity of the kind starts
// in. Stories begin author-private; topics and comments enter the moderation
// queue immediately.
func InitialState(kind Kind) State {
	if kind == KindStory {
		return StateCreated
	}
	return StateSubmitted
}
