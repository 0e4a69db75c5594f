package roles

type Role string
type Action string

const (
	RoleAnonymous  Role = "anonymous"
	RoleJournalist Role = "journalist"
	RoleCurator    Role = "curator"
)

const (
	ActionCreateStory Action = "create_story"
	ActionCreateTopic Action = "create_topic"
	ActionComment     Action = "comment"
	ActionModerate    Action = "moderate"
)

// Caller identifies the user an operation runs on behalf of. The zero value
// is an anonymous caller.
type Caller struct {
	Name string
	Role Role
}

func Anonymous() Caller {
	return Caller{Role: RoleAnonymous}
}

func (c Caller) IsCurator() bool {
	return c.Role == RoleCurator
}

// Owns reports whether the caller is the journalist that authored an entity.
// An empty owner never matches: anonymous entities have no owner.
func (c Caller) Owns(owner string) bool {
	return c.Role == RoleJournalist && owner != "" && c.Name == owner
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleCurator:
		return action == ActionModerate || action == ActionComment
	case RoleJournalist:
		return action == ActionCreateStory || action == ActionCreateTopic || action == ActionComment
	case RoleAnonymous:
		return action == ActionComment
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleJournalist, RoleCurator:
		return Role(role)
	default:
		return RoleAnonymous
	}
}
