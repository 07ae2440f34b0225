package tado

import "math"

// HVACMode derives the climate mode. A room following its schedule is AUTO
// even when power is OFF because the target has been reached.
func (r Room) HVACMode() HVACMode {
	switch {
	case r.Power == PowerOff && r.ManualControlActive:
		return HVACOff
	case r.ManualControlActive:
		return HVACHeat
	default:
		return HVACAuto
	}
}

func (r Room) HVACAction() HVACAction {
	if r.Power == PowerOff {
		return ActionOff
	}
	if r.HeatingPower > 0 {
		return ActionHeating
	}
	return ActionIdle
}

// DisplayTarget hides the target only when heating was explicitly switched off.
func (r Room) DisplayTarget() *float64 {
	if r.Power == PowerOff && r.ManualControlActive {
		return nil
	}
	return r.TargetTemperature
}

func (r Room) Heating() bool { return r.HeatingPower > 0 }

func (r Room) Available() bool { return r.Connection == Connected }

// ManualControlRemainingMinutes is zero when no timer is running.
func (r Room) ManualControlRemainingMinutes() int {
	if !r.ManualControlActive || r.ManualControlRemaining == nil || *r.ManualControlRemaining == 0 {
		return 0
	}
	return int(math.Round(float64(*r.ManualControlRemaining) / 60))
}

// Preset reports the preset of a room: a locked presence wins, an unlocked
// known presence means geofencing, otherwise schedule unless under manual control.
func (s Snapshot) Preset(roomID int) Preset {
	r, ok := s.Rooms[roomID]
	if !ok {
		return PresetNone
	}
	if s.PresenceLocked {
		switch s.Presence {
		case PresenceHome:
			return PresetHome
		case PresenceAway:
			return PresetAway
		}
	} else if s.Presence != "" {
		return PresetAuto
	}
	if !r.ManualControlActive {
		return PresetSchedule
	}
	return PresetNone
}

func (s Snapshot) PresenceMode() PresenceMode {
	if s.PresenceLocked {
		switch s.Presence {
		case PresenceHome:
			return PresenceModeHome
		case PresenceAway:
			return PresenceModeAway
		}
	}
	return PresenceModeAuto
}

func (d Device) Connected() bool { return d.Connection == Connected }

// BatteryLow returns known=false for devices that report no battery state.
func (d Device) BatteryLow() (low, known bool) {
	if d.Battery == "" {
		return false, false
	}
	return d.Battery == BatteryLow, true
}
