package command

import (
	"errors"
	"testing"
)

const (
	markerOK          = 1
	markerCalibration = 2
	markerNever       = 3
	markerFreq01      = 4
	markerFreq1       = 5
	markerFreq5       = 6
	markerAlways      = 7
	markerNED         = 8
	markerENU         = 9
	markerShutdown    = 10
	markerPlatform1   = 11
	markerPlatform2   = 12
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	assign := func(id int, role Role) {
		if err := reg.Assign(id, role); err != nil {
			t.Fatalf("Assign(%d) error = %v", id, err)
		}
	}
	assign(markerOK, Role{Kind: KindOK})
	assign(markerCalibration, Role{Kind: KindCalibration})
	assign(markerNever, Role{Kind: KindBroadcastNever})
	assign(markerFreq01, Role{Kind: KindBroadcastFrequency, FrequencyHz: 0.1})
	assign(markerFreq1, Role{Kind: KindBroadcastFrequency, FrequencyHz: 1})
	assign(markerFreq5, Role{Kind: KindBroadcastFrequency, FrequencyHz: 5})
	assign(markerAlways, Role{Kind: KindBroadcastAlways})
	assign(markerNED, Role{Kind: KindFrameNED})
	assign(markerENU, Role{Kind: KindFrameENU})
	assign(markerShutdown, Role{Kind: KindShutdown})
	assign(markerPlatform1, Role{Kind: KindPlatform, Platform: 1})
	assign(markerPlatform2, Role{Kind: KindPlatform, Platform: 2})
	return reg
}

func TestRegistry_DuplicateMarker(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Assign(5, Role{Kind: KindOK}); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	err := reg.Assign(5, Role{Kind: KindShutdown})
	if !errors.Is(err, ErrDuplicateMarker) {
		t.Errorf("Assign() error = %v, want ErrDuplicateMarker", err)
	}
}

func TestRegistry_RoleOf(t *testing.T) {
	reg := testRegistry(t)

	role, ok := reg.RoleOf(markerPlatform2)
	if !ok || role.Kind != KindPlatform || role.Platform != 2 {
		t.Errorf("RoleOf(%d) = %v, %v", markerPlatform2, role, ok)
	}

	if _, ok := reg.RoleOf(99); ok {
		t.Error("RoleOf(99) should not be found")
	}

	if got := reg.Platforms(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Platforms() = %v, want [1 2]", got)
	}

	if id, ok := reg.MarkerFor(KindCalibration); !ok || id != markerCalibration {
		t.Errorf("MarkerFor(CALIBRATION) = %d, %v", id, ok)
	}
}

func TestInterpreter_Interpret(t *testing.T) {
	in := NewInterpreter(testRegistry(t))

	tests := []struct {
		name    string
		visible []int
		want    Command
	}{
		{"empty frame", nil, Command{Type: None}},
		{"OK alone", []int{markerOK}, Command{Type: None}},
		{"frequency without OK", []int{markerFreq5}, Command{Type: None}},
		{"shutdown without OK", []int{markerShutdown, markerPlatform1}, Command{Type: None}},
		{"frequency with OK", []int{markerFreq5, markerOK}, Command{Type: SetFrequency, FrequencyHz: 5}},
		{"always with OK", []int{markerOK, markerAlways}, Command{Type: SetFrequency, FrequencyHz: FrequencyAlways}},
		{"never with OK", []int{markerOK, markerNever}, Command{Type: SetFrequency, FrequencyHz: FrequencyNever}},
		{"NED with OK", []int{markerOK, markerNED}, Command{Type: SetConvention, Convention: "NED"}},
		{"ENU with OK", []int{markerOK, markerENU}, Command{Type: SetConvention, Convention: "ENU"}},
		{"shutdown with OK", []int{markerShutdown, markerOK}, Command{Type: Shutdown}},
		{"platform with OK", []int{markerPlatform1, markerOK}, Command{Type: None}},
		{"unknown with OK", []int{77, markerOK}, Command{Type: None}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.Interpret(tt.visible); got != tt.want {
				t.Errorf("Interpret(%v) = %v, want %v", tt.visible, got, tt.want)
			}
		})
	}
}

func TestInterpreter_Precedence(t *testing.T) {
	in := NewInterpreter(testRegistry(t))

	tests := []struct {
		name    string
		visible []int
		want    Command
	}{
		{
			name:    "frequency beats frame selector",
			visible: []int{markerNED, markerFreq1, markerOK},
			want:    Command{Type: SetFrequency, FrequencyHz: 1},
		},
		{
			name:    "always beats frequency",
			visible: []int{markerFreq01, markerAlways, markerOK},
			want:    Command{Type: SetFrequency, FrequencyHz: FrequencyAlways},
		},
		{
			name:    "frequencies in declared order",
			visible: []int{markerFreq5, markerFreq01, markerOK},
			want:    Command{Type: SetFrequency, FrequencyHz: 0.1},
		},
		{
			name:    "never beats frame selectors",
			visible: []int{markerENU, markerNever, markerOK},
			want:    Command{Type: SetFrequency, FrequencyHz: FrequencyNever},
		},
		{
			name:    "NED beats ENU",
			visible: []int{markerENU, markerNED, markerOK},
			want:    Command{Type: SetConvention, Convention: "NED"},
		},
		{
			name:    "anything beats shutdown",
			visible: []int{markerShutdown, markerENU, markerOK},
			want:    Command{Type: SetConvention, Convention: "ENU"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.Interpret(tt.visible); got != tt.want {
				t.Errorf("Interpret(%v) = %v, want %v", tt.visible, got, tt.want)
			}
		})
	}

	want := []int{markerAlways, markerFreq01, markerFreq1, markerFreq5, markerNever, markerNED, markerENU, markerShutdown}
	got := in.Precedence()
	if len(got) != len(want) {
		t.Fatalf("Precedence() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Precedence()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
