package services

import "testing"

func TestAuthPolicy(t *testing.T) {
	p := NewAuthPolicy([]int64{1, 2})

	if !p.IsAdmin(1) || !p.IsAdmin(2) {
		t.Fatal("configured admins not recognized")
	}
	if p.IsAdmin(3) {
		t.Fatal("unknown id recognized as admin")
	}

	if !p.CanManage(10, 10) {
		t.Fatal("owner cannot manage own listing")
	}
	if !p.CanManage(1, 10) {
		t.Fatal("admin cannot manage foreign listing")
	}
	if p.CanManage(11, 10) {
		t.Fatal("stranger can manage foreign listing")
	}
}

func TestAuthPolicy_Empty(t *testing.T) {
	p := NewAuthPolicy(nil)
	if p.IsAdmin(0) {
		t.Fatal("zero id must not be admin on empty allow-list")
	}
	if !p.CanManage(5, 5) {
		t.Fatal("ownership must work without admins")
	}
}
