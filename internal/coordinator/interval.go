package coordinator

import (
	"time"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

const (
	AutoAssistInterval = 30 * time.Second
	FreeTierInterval   = 2700 * time.Second

	// baseCallsPerUpdate covers rooms, rooms-and-devices and home state.
	baseCallsPerUpdate = 3
)

// Features toggles the optional endpoints fetched on every update.
type Features struct {
	Weather         bool
	MobileDevices   bool
	AirComfort      bool
	RunningTimes    bool
	FlowTemperature bool
}

func AllFeatures() Features {
	return Features{Weather: true, MobileDevices: true, AirComfort: true, RunningTimes: true, FlowTemperature: true}
}

// CallsPerUpdate counts the requests one update costs. Flow temperature is
// left out as it is not billed against the daily quota.
func (f Features) CallsPerUpdate() int {
	n := baseCallsPerUpdate
	for _, on := range []bool{f.Weather, f.MobileDevices, f.AirComfort, f.RunningTimes} {
		if on {
			n++
		}
	}
	return n
}

// selectInterval picks the polling interval. An explicit interval is used as
// is. Otherwise the tier default applies, raised so that a full day of
// updates fits in the reported quota.
func selectInterval(explicit time.Duration, stats tado.APIStats, callsPerUpdate int) time.Duration {
	if explicit > 0 {
		return explicit
	}
	d := FreeTierInterval
	if stats.HasAutoAssist {
		d = AutoAssistInterval
	}
	if floor := quotaFloor(stats.QuotaLimit, callsPerUpdate); floor > d {
		d = floor
	}
	return d
}

// quotaFloor is ceil(86400 * callsPerUpdate / quota) seconds.
func quotaFloor(quota *int, callsPerUpdate int) time.Duration {
	if quota == nil || *quota <= 0 {
		return 0
	}
	secs := (86400*callsPerUpdate + *quota - 1) / *quota
	return time.Duration(secs) * time.Second
}

// IntervalFor reports the interval a coordinator polling with f would pick
// for the given budget.
func IntervalFor(explicit time.Duration, stats tado.APIStats, f Features) time.Duration {
	return selectInterval(explicit, stats, f.CallsPerUpdate())
}
