package drmcolor

import (
	"errors"
	"testing"
)

func TestBlobSlot(t *testing.T) {
	inst := newFakeInstaller()
	s := blobSlot{prop: PropPlaneCTM}

	if err := s.set(inst, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	first := s.id
	if err := s.set(inst, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	if s.id != first || inst.created != 1 {
		t.Errorf("unchanged bytes: id %d -> %d, %d creates", first, s.id, inst.created)
	}

	if err := s.set(inst, []byte{3}); err != nil {
		t.Fatal(err)
	}
	if s.id == first || len(inst.live) != 1 || inst.destroyed != 1 {
		t.Errorf("replace: id %d, %d live, %d destroyed", s.id, len(inst.live), inst.destroyed)
	}
	if _, ok := inst.live[first]; ok {
		t.Error("old blob still live")
	}

	if err := s.clear(inst); err != nil {
		t.Fatal(err)
	}
	if s.id != 0 || len(inst.live) != 0 {
		t.Errorf("clear: id %d, %d live", s.id, len(inst.live))
	}
	if err := s.clear(inst); err != nil {
		t.Errorf("clear of empty slot = %v", err)
	}
}

func TestBlobSlotDestroyFailureKeepsID(t *testing.T) {
	inst := newFakeInstaller()
	s := blobSlot{prop: PropGammaLUT}
	if err := s.set(inst, []byte{1}); err != nil {
		t.Fatal(err)
	}
	id := s.id
	delete(inst.live, id) // destroy will now fail

	err := s.set(inst, []byte{2})
	if !errors.Is(err, ErrBlobInstallFailure) {
		t.Fatalf("set = %v, want ErrBlobInstallFailure", err)
	}
	if s.id != id {
		t.Errorf("id after failed destroy = %d, want %d kept", s.id, id)
	}
	if inst.created != 1 {
		t.Error("new blob created before the old one was destroyed")
	}
}

func TestProperty(t *testing.T) {
	tests := []struct {
		p    Property
		want ObjectKind
	}{
		{PropPlaneDegammaLUT, ObjectPlane},
		{PropPlaneCTM, ObjectPlane},
		{PropPlaneGammaLUT, ObjectPlane},
		{PropGammaLUT, ObjectCRTC},
		{PropHDROutputMetadata, ObjectConnector},
	}
	for _, tt := range tests {
		if got := tt.p.Object(); got != tt.want {
			t.Errorf("%s.Object() = %d, want %d", tt.p, got, tt.want)
		}
	}
	if PlaneTypeCursor.String() != "Cursor" || PlaneType(9).String() != "Unknown" {
		t.Error("PlaneType names")
	}
}
