package id

import "testing"

func TestNewIsUniqueAndWellFormed(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if len(a) != 36 {
		t.Fatalf("expected UUID string form (36 chars), got %q (%d chars)", a, len(a))
	}
}

func TestUnixMillisMonotonicEnough(t *testing.T) {
	t0 := Wall()
	t1 := t0.Add(1)
	if UnixMillis(t1) < UnixMillis(t0) {
		t.Fatalf("UnixMillis went backwards: %d -> %d", UnixMillis(t0), UnixMillis(t1))
	}
}
