package tado

import (
	"errors"
	"testing"
)

func TestHVACModeString_Table(t *testing.T) {
	cases := []struct {
		name string
		in   HVACMode
		want string
	}{
		{"unknown (zero)", HVACUnknown, "unknown"},
		{"heat", HVACHeat, "heat"},
		{"off", HVACOff, "off"},
		{"auto", HVACAuto, "auto"},
		{"unknown (out of range)", HVACMode(999), "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.String(); got != tc.want {
				t.Fatalf("HVACMode(%d).String()=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseHVACMode_Table(t *testing.T) {
	cases := []struct {
		in      string
		want    HVACMode
		wantErr bool
	}{
		{"heat", HVACHeat, false},
		{"off", HVACOff, false},
		{"auto", HVACAuto, false},
		{"cool", HVACUnknown, true},
		{"", HVACUnknown, true},
	}

	for _, tc := range cases {
		got, err := ParseHVACMode(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidHVACMode) {
				t.Fatalf("ParseHVACMode(%q) expected ErrInvalidHVACMode, got %v", tc.in, err)
			}
		} else if err != nil {
			t.Fatalf("ParseHVACMode(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseHVACMode(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestParsePreset_RoundTrip(t *testing.T) {
	for _, p := range []Preset{PresetSchedule, PresetHome, PresetAway, PresetAuto} {
		got, err := ParsePreset(p.String())
		if err != nil {
			t.Fatalf("ParsePreset(%q): %v", p.String(), err)
		}
		if got != p {
			t.Fatalf("ParsePreset(%q)=%v want %v", p.String(), got, p)
		}
	}
	if _, err := ParsePreset("none"); !errors.Is(err, ErrInvalidPreset) {
		t.Fatalf("expected ErrInvalidPreset for none, got %v", err)
	}
}

func TestParsePresenceMode(t *testing.T) {
	for _, m := range []PresenceMode{PresenceModeHome, PresenceModeAway, PresenceModeAuto} {
		got, err := ParsePresenceMode(m.String())
		if err != nil || got != m {
			t.Fatalf("ParsePresenceMode(%q)=%v,%v want %v", m.String(), got, err, m)
		}
	}
	if PresenceUnknown.Valid() {
		t.Fatal("PresenceUnknown must not be valid")
	}
}

func TestParseTermination(t *testing.T) {
	cases := []struct {
		in      string
		want    Termination
		wantErr bool
	}{
		{"TIMER", TerminationTimer, false},
		{"manual", TerminationManual, false},
		{" next_time_block ", TerminationNextTimeBlock, false},
		{"FOREVER", "", true},
	}

	for _, tc := range cases {
		got, err := ParseTermination(tc.in)
		if tc.wantErr != (err != nil) {
			t.Fatalf("ParseTermination(%q) err=%v wantErr=%v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseTermination(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseTariffUnit(t *testing.T) {
	if u, err := ParseTariffUnit("kWh"); err != nil || u != TariffKWh {
		t.Fatalf("kWh: got %q, %v", u, err)
	}
	if u, err := ParseTariffUnit("m3"); err != nil || u != TariffCubicMeter {
		t.Fatalf("m3: got %q, %v", u, err)
	}
	if _, err := ParseTariffUnit("kwh"); !errors.Is(err, ErrInvalidTariffUnit) {
		t.Fatalf("expected ErrInvalidTariffUnit, got %v", err)
	}
}

func TestValidateLimits(t *testing.T) {
	if err := ValidateTemperature(21.5); err != nil {
		t.Fatalf("21.5: %v", err)
	}
	for _, v := range []float64{4.9, 25.5} {
		if err := ValidateTemperature(v); !errors.Is(err, ErrTemperatureOutOfRange) {
			t.Fatalf("ValidateTemperature(%v) = %v", v, err)
		}
	}
	if err := ValidateOffset(-9.9); err != nil {
		t.Fatalf("offset -9.9: %v", err)
	}
	if err := ValidateOffset(10); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Fatalf("offset 10: %v", err)
	}
	if err := ValidateTimerMinutes(0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("0 minutes: %v", err)
	}
	if err := ValidateTimerMinutes(1440); err != nil {
		t.Fatalf("1440 minutes: %v", err)
	}
	if err := ValidateDate(""); err != nil {
		t.Fatalf("empty date: %v", err)
	}
	if err := ValidateDate("2024-13-01"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("bad date: %v", err)
	}
	if got := RoundTemperature(21.3); got != 21.5 {
		t.Fatalf("RoundTemperature(21.3)=%v", got)
	}
}

func TestRoomControlDefaultsWith(t *testing.T) {
	base := DefaultRoomControl()
	if got := base.With(RoomControlDefaults{Termination: TerminationManual}); got.Termination != TerminationManual || got.DurationMinutes != DefaultTimerMinutes {
		t.Fatalf("termination only: %+v", got)
	}
	if got := base.With(RoomControlDefaults{DurationMinutes: 45}); got.Termination != TerminationTimer || got.DurationMinutes != 45 {
		t.Fatalf("duration only: %+v", got)
	}
	if got := base.With(RoomControlDefaults{}); got != base {
		t.Fatalf("empty patch changed defaults: %+v", got)
	}
}
