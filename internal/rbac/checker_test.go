package rbac

import "testing"

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)

	if !c.Has("admin", "schedule:export") {
		t.Fatal("admin wildcard should cover everything")
	}
	if !c.Has("doctor", "eval:submit") {
		t.Fatal("doctor should submit evaluations")
	}
	if c.Has("student", "eval:submit") {
		t.Fatal("student must not submit evaluations")
	}
	if !c.Has("student", "grades:view-own") {
		t.Fatal("student should view own grades")
	}
	if c.Has("doctor", "criteria:create") {
		t.Fatal("doctor must not create criteria")
	}
	if c.Has("", "eval:submit") || c.Has("ghost", "eval:submit") {
		t.Fatal("unknown roles have no permissions")
	}
}

func TestMatchPerm(t *testing.T) {
	if !matchPerm("*", "anything:at-all") {
		t.Fatal("* matches everything")
	}
	if !matchPerm("criteria:*", "criteria:view") {
		t.Fatal("prefix wildcard")
	}
	if matchPerm("criteria:*", "schedule:view") {
		t.Fatal("prefix wildcard must not cross domains")
	}
	if !matchPerm("eval:submit", "eval:submit") {
		t.Fatal("exact match")
	}
}

func TestAny(t *testing.T) {
	c := NewChecker(nil)
	if !c.Any("doctor", "criteria:create", "criteria:view") {
		t.Fatal("doctor holds criteria:view")
	}
	if c.Any("student", "criteria:create", "schedule:export") {
		t.Fatal("student holds neither")
	}
}
