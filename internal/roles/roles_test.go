package roles

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "anonymous comment", role: RoleAnonymous, action: ActionComment, allow: true},
		{name: "anonymous create story", role: RoleAnonymous, action: ActionCreateStory, allow: false},
		{name: "anonymous moderate", role: RoleAnonymous, action: ActionModerate, allow: false},
		{name: "journalist create story", role: RoleJournalist, action: ActionCreateStory, allow: true},
		{name: "journalist create topic", role: RoleJournalist, action: ActionCreateTopic, allow: true},
		{name: "journalist moderate", role: RoleJournalist, action: ActionModerate, allow: false},
		{name: "curator moderate", role: RoleCurator, action: ActionModerate, allow: true},
		{name: "curator create story", role: RoleCurator, action: ActionCreateStory, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("curator"); got != RoleCurator {
		t.Fatalf("Normalize(curator) = %q", got)
	}
	if got := Normalize("editor"); got != RoleAnonymous {
		t.Fatalf("Normalize(editor) = %q, want anonymous", got)
	}
	if got := Normalize(""); got != RoleAnonymous {
		t.Fatalf("Normalize(empty) = %q, want anonymous", got)
	}
}

func TestOwns(t *testing.T) {
	caller := Caller{Name: "ana", Role: RoleJournalist}
	if !caller.Owns("ana") {
		t.Fatal("journalist should own their own entity")
	}
	if caller.Owns("") {
		t.Fatal("empty owner must never match")
	}
	curator := Caller{Name: "ana", Role: RoleCurator}
	if curator.Owns("ana") {
		t.Fatal("ownership is a journalist property")
	}
}
