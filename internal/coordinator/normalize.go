package coordinator

import (
	"fmt"

	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

// buildSnapshot turns the three required responses into a snapshot.
func buildSnapshot(homeID int, homeName string, rooms []api.Room, rd api.RoomsAndDevices, st api.HomeState) tado.Snapshot {
	s := tado.Snapshot{
		HomeID:         homeID,
		HomeName:       homeName,
		Rooms:          make(map[int]tado.Room, len(rooms)),
		Devices:        make(map[string]tado.Device),
		MobileDevices:  make(map[int]tado.MobileDevice),
		AirComfort:     make(map[int]tado.AirComfort),
		Presence:       tado.Presence(st.Presence),
		PresenceLocked: st.PresenceLocked,
	}

	roomDevices := make(map[int][]api.DeviceInfo, len(rd.Rooms))
	for _, r := range rd.Rooms {
		if r.RoomID != 0 {
			roomDevices[r.RoomID] = r.Devices
		}
	}

	order := make([]int, 0, len(rooms))
	for _, raw := range rooms {
		if raw.ID == 0 {
			continue
		}
		room := convertRoom(raw)
		for _, d := range roomDevices[room.ID] {
			dev := convertDevice(d, room.ID, room.Name)
			room.Devices = append(room.Devices, dev)
			s.Devices[dev.Serial] = dev
		}
		if _, dup := s.Rooms[room.ID]; !dup {
			order = append(order, room.ID)
		}
		s.Rooms[room.ID] = room
	}

	attachOtherDevices(&s, order, rd.OtherDevices)
	return s
}

func convertRoom(r api.Room) tado.Room {
	room := tado.Room{
		ID:                 r.ID,
		Name:               r.Name,
		Power:              tado.PowerOff,
		Connection:         tado.Disconnected,
		BoostMode:          r.BoostActive(),
		OpenWindowDetected: r.OpenWindowActive(),
	}
	if room.Name == "" {
		room.Name = fmt.Sprintf("Room %d", r.ID)
	}
	if sd := r.SensorDataPoints; sd != nil {
		if sd.InsideTemperature != nil {
			room.CurrentTemperature = sd.InsideTemperature.Value
		}
		if sd.Humidity != nil {
			room.Humidity = sd.Humidity.Percentage
		}
	}
	if set := r.Setting; set != nil {
		if set.Power != "" {
			room.Power = tado.Power(set.Power)
		}
		if set.Temperature != nil {
			room.TargetTemperature = set.Temperature.Value
		}
	}
	if mc := r.ManualControlTermination; mc != nil {
		room.ManualControlActive = true
		room.ManualControlRemaining = mc.RemainingTimeInSeconds
		room.ManualControlType = tado.Termination(mc.Type)
	}
	if next := r.NextScheduleChange; next != nil {
		room.NextScheduleChange = next.Start
		if next.Setting != nil && next.Setting.Temperature != nil {
			room.NextScheduleTemperature = next.Setting.Temperature.Value
		}
	}
	if hp := r.HeatingPower; hp != nil && hp.Percentage != nil {
		room.HeatingPower = int(*hp.Percentage)
	}
	if c := r.Connection; c != nil && c.State != "" {
		room.Connection = tado.ConnectionState(c.State)
	}
	return room
}

func connectionState(c *api.Connection) tado.ConnectionState {
	if c == nil || c.State == "" {
		return tado.Disconnected
	}
	return tado.ConnectionState(c.State)
}

func convertDevice(d api.DeviceInfo, roomID int, roomName string) tado.Device {
	dev := tado.Device{
		Serial:              d.SerialNumber,
		Type:                tado.DeviceType(d.Type),
		Firmware:            d.FirmwareVersion,
		Connection:          connectionState(d.Connection),
		Battery:             tado.BatteryState(d.BatteryState),
		TemperatureMeasured: d.TemperatureAsMeasured,
		MountingState:       d.Mounting(),
		ChildLockEnabled:    d.ChildLockEnabled,
		RoomID:              roomID,
		RoomName:            roomName,
	}
	if d.TemperatureOffset != nil {
		dev.TemperatureOffset = *d.TemperatureOffset
	}
	return dev
}

// attachOtherDevices files bridges and controllers. A device keeps the room
// the vendor reports. A wireless receiver without one is attached to the room
// with the most devices, which is usually the room it drives. Ties go to the
// first room in vendor order.
func attachOtherDevices(s *tado.Snapshot, order []int, others []api.DeviceInfo) {
	busiest, most := 0, 0
	for _, id := range order {
		if n := len(s.Rooms[id].Devices); n > most {
			busiest, most = id, n
		}
	}

	for _, d := range others {
		dev := tado.Device{
			Serial:     d.SerialNumber,
			Type:       tado.DeviceType(d.Type),
			Firmware:   d.FirmwareVersion,
			Connection: connectionState(d.Connection),
			RoomID:     d.RoomID,
		}
		if room, ok := s.Rooms[d.RoomID]; ok && d.RoomID != 0 {
			dev.RoomName = room.Name
		} else if dev.Type == tado.DeviceThermostat && busiest != 0 {
			dev.RoomID = busiest
			dev.RoomName = s.Rooms[busiest].Name
		}

		if room, ok := s.Rooms[dev.RoomID]; ok && dev.RoomID != 0 {
			room.Devices = append(room.Devices, dev)
			s.Rooms[dev.RoomID] = room
		}
		s.OtherDevices = append(s.OtherDevices, dev)
		s.Devices[dev.Serial] = dev
	}
}

func convertWeather(w api.Weather) *tado.Weather {
	out := &tado.Weather{}
	if w.OutsideTemperature != nil {
		out.OutdoorTemperature = w.OutsideTemperature.Celsius
	}
	if w.SolarIntensity != nil {
		out.SolarIntensity = w.SolarIntensity.Percentage
	}
	if w.WeatherState != nil {
		out.State = w.WeatherState.Value
	}
	return out
}

// applyMobileDevices sets a location only when the device reported one.
func applyMobileDevices(s *tado.Snapshot, devices []api.MobileDevice) {
	for _, m := range devices {
		if m.ID == 0 {
			continue
		}
		md := tado.MobileDevice{ID: m.ID, Name: m.Name}
		if md.Name == "" {
			md.Name = fmt.Sprintf("Mobile %d", m.ID)
		}
		if m.DeviceMetadata != nil {
			md.Metadata = tado.MobileDeviceMetadata{
				Platform:  m.DeviceMetadata.Platform,
				OSVersion: m.DeviceMetadata.OSVersion,
				Model:     m.DeviceMetadata.Model,
				Locale:    m.DeviceMetadata.Locale,
			}
		}
		if m.Settings != nil {
			md.GeofencingEnabled = m.Settings.GeoTrackingEnabled
		}
		if m.Location != nil {
			md.AtHome = m.Location.AtHome
			md.Location = tado.PresenceAway
			if md.AtHome {
				md.Location = tado.PresenceHome
			}
		}
		s.MobileDevices[m.ID] = md
	}
}

// applyRunningTimes matches zone ids to room ids.
func applyRunningTimes(s *tado.Snapshot, rt api.RunningTimes) {
	for _, entry := range rt.RunningTimes {
		for _, z := range entry.Zones {
			room, ok := s.Rooms[z.ID]
			if !ok || z.ID == 0 {
				continue
			}
			room.RunningTimeToday = z.RunningTimeInSeconds
			s.Rooms[z.ID] = room
		}
	}
}

func applyAirComfort(s *tado.Snapshot, ac api.AirComfort) {
	for _, c := range ac.Comfort {
		if c.RoomID == 0 {
			continue
		}
		s.AirComfort[c.RoomID] = tado.AirComfort{
			RoomID:       c.RoomID,
			Freshness:    c.HumidityLevel,
			ComfortLevel: c.TemperatureLevel,
		}
	}
}

func convertFlow(f *api.FlowTemperatureOptimization) *tado.FlowTemperature {
	if f.Empty() {
		return nil
	}
	out := &tado.FlowTemperature{Max: f.MaxFlowTemperature}
	if c := f.MaxFlowTemperatureConstraints; c != nil {
		out.Min = c.Min
		out.Limit = c.Max
	}
	if a := f.AutoAdaptation; a != nil {
		out.AutoAdaptation = a.Enabled
		out.AutoValue = a.MaxFlowTemperature
	}
	return out
}
