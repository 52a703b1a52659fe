package gamut

import "testing"

func TestGamutOrder(t *testing.T) {
	if !(Unknown < Rec709 && Rec709 < DCIP3 && DCIP3 < Rec2020) {
		t.Fatal("gamut values must be ordered Unknown < Rec709 < DCI-P3 < Rec2020")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		in   Gamut
		want Gamut
	}{
		{Unknown, Rec709},
		{Rec709, Rec709},
		{DCIP3, DCIP3},
		{Rec2020, Rec2020},
		{Gamut(42), Rec709},
	}
	for _, tt := range tests {
		if got := tt.in.Resolve(); got != tt.want {
			t.Errorf("%v.Resolve() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPrimaries(t *testing.T) {
	if _, ok := Unknown.Primaries(); ok {
		t.Error("Unknown.Primaries() should report false")
	}
	for _, g := range All {
		p, ok := g.Primaries()
		if !ok {
			t.Fatalf("%v.Primaries() reported false", g)
		}
		if p.White.Y == 0 {
			t.Errorf("%v white point has zero y", g)
		}
	}
	p, _ := Rec2020.Primaries()
	if p.Red != (Chromaticity{0.708, 0.292}) {
		t.Errorf("Rec2020 red = %v", p.Red)
	}
}

func TestCodePoint(t *testing.T) {
	if Rec2020.CodePoint() != ColorPrimariesBT2020 {
		t.Errorf("Rec2020.CodePoint() = %d, want 9", Rec2020.CodePoint())
	}
	if Unknown.CodePoint() != ColorPrimariesBT709 {
		t.Errorf("Unknown.CodePoint() = %d, want 1", Unknown.CodePoint())
	}
}

func TestString(t *testing.T) {
	if DCIP3.String() != "DCI-P3" {
		t.Errorf("DCIP3.String() = %q", DCIP3.String())
	}
	if Gamut(9).String() != "Gamut(9)" {
		t.Errorf("Gamut(9).String() = %q", Gamut(9).String())
	}
}
