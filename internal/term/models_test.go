package term

import (
	"testing"
	"time"
)

func TestTermAt(t *testing.T) {
	base := time.Unix(1_760_000_000, 0)
	a := Appointment{
		FirstTermStart:  base.Unix(),
		FirstTermEnd:    base.Add(30 * 24 * time.Hour).Unix(),
		SecondTermStart: base.Add(60 * 24 * time.Hour).Unix(),
		SecondTermEnd:   base.Add(120 * 24 * time.Hour).Unix(),
	}

	if trm, ok := a.TermAt(base.Add(24 * time.Hour)); !ok || trm != TermFirst {
		t.Fatalf("inside first term: (%s, %v)", trm, ok)
	}
	if trm, ok := a.TermAt(base.Add(70 * 24 * time.Hour)); !ok || trm != TermSecond {
		t.Fatalf("inside second term: (%s, %v)", trm, ok)
	}
	if _, ok := a.TermAt(base.Add(45 * 24 * time.Hour)); ok {
		t.Fatal("between terms should resolve to nothing")
	}
	if _, ok := a.TermAt(base.Add(-time.Hour)); ok {
		t.Fatal("before first term should resolve to nothing")
	}

	// window ends are inclusive
	if trm, ok := a.TermAt(time.Unix(a.FirstTermEnd, 0)); !ok || trm != TermFirst {
		t.Fatalf("first term end: (%s, %v)", trm, ok)
	}
}

func TestValidTerm(t *testing.T) {
	if !ValidTerm(TermFirst) || !ValidTerm(TermSecond) {
		t.Fatal("named terms must be valid")
	}
	if ValidTerm("Summer") {
		t.Fatal("unknown term accepted")
	}
}
