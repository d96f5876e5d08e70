package app

import "testing"

func TestParseDevUsers(t *testing.T) {
	t.Parallel()

	v := parseDevUsers("ada:lovelace, bob:builder ,broken,also:")
	if len(v.Users) != 2 {
		t.Fatalf("parsed %d users, want 2", len(v.Users))
	}
	if v.Users["ada"] != "lovelace" || v.Users["bob"] != "builder" {
		t.Fatalf("users = %v", v.Users)
	}

	if v := parseDevUsers(""); len(v.Users) != 0 {
		t.Fatalf("empty spec produced %v", v.Users)
	}
}
