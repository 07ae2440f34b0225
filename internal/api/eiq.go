package api

import (
	"context"
	"math"
	"net/http"
	"net/url"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

// GetRunningTimes returns heating running times per zone between two
// YYYY-MM-DD dates.
func (c *Client) GetRunningTimes(ctx context.Context, from, to string) (RunningTimes, error) {
	var out RunningTimes
	q := url.Values{"from": {from}, "to": {to}}
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.MinderURL, "runningTimes?"+q.Encode(), nil, &out)
	return out, err
}

// AddMeterReading records a gas meter reading. An empty date means today.
func (c *Client) AddMeterReading(ctx context.Context, reading int, date string) error {
	if reading < 0 {
		return tado.ErrNegativeReading
	}
	if err := tado.ValidateDate(date); err != nil {
		return err
	}
	if date == "" {
		date = tado.FormatDate(c.now())
	}
	return c.homeRequest(ctx, http.MethodPost, c.cfg.EIQURL, "meterReadings", meterReadingRequest{Date: date, Reading: reading}, nil)
}

// SetEIQTariff sets the energy price per unit. The tariff is sent in cents.
func (c *Client) SetEIQTariff(ctx context.Context, tariff float64, unit tado.TariffUnit, start, end string) error {
	if tariff < 0 {
		return tado.ErrNegativeTariff
	}
	if !unit.Valid() {
		return tado.ErrInvalidTariffUnit
	}
	if err := tado.ValidateDate(start); err != nil {
		return err
	}
	if err := tado.ValidateDate(end); err != nil {
		return err
	}
	if start == "" {
		start = tado.FormatDate(c.now())
	}
	body := tariffRequest{
		TariffInCents: math.Round(tariff * 100),
		Unit:          string(unit),
		StartDate:     start,
		EndDate:       end,
	}
	return c.homeRequest(ctx, http.MethodPost, c.cfg.EIQURL, "tariffs", body, nil)
}
