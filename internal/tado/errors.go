package tado

import "errors"

var (
	ErrTemperatureOutOfRange      = errors.New("temperature out of range")
	ErrInvalidTermination         = errors.New("invalid termination type")
	ErrInvalidDuration            = errors.New("invalid timer duration")
	ErrOffsetOutOfRange           = errors.New("temperature offset out of range")
	ErrInvalidHVACMode            = errors.New("invalid hvac mode")
	ErrInvalidPreset              = errors.New("invalid preset")
	ErrInvalidPresenceMode        = errors.New("invalid presence mode")
	ErrInvalidTariffUnit          = errors.New("invalid tariff unit")
	ErrNegativeReading            = errors.New("meter reading must be greater or equal to zero")
	ErrNegativeTariff             = errors.New("tariff must be greater or equal to zero")
	ErrInvalidDate                = errors.New("invalid date, expected YYYY-MM-DD")
	ErrUnknownRoom                = errors.New("unknown room")
	ErrUnknownDevice              = errors.New("unknown device")
	ErrRoomDevice                 = errors.New("operation requires a valve or sensor, not a room")
	ErrFlowTemperatureUnavailable = errors.New("flow temperature control not available")
	ErrFlowTemperatureOutOfRange  = errors.New("flow temperature out of range")
	ErrNoSnapshot                 = errors.New("no data fetched yet")
)
