package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/tadox/internal/control"
	httpctrl "github.com/Agrid-Dev/tadox/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/tadox/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/tadox/internal/controllers/mqtt"
	"github.com/Agrid-Dev/tadox/internal/coordinator"
	"github.com/Agrid-Dev/tadox/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the selected home and serve the enabled controllers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		err = run(cmd.Context(), e)
		if errors.Is(err, coordinator.ErrReauthRequired) {
			return fmt.Errorf("%w; run tadox login", err)
		}
		return err
	},
}

func run(ctx context.Context, e *env) error {
	saved := e.store.State()
	homeID, homeName := e.cfg.Home.ID, e.cfg.Home.Name
	if homeID == 0 {
		homeID = saved.HomeID
	}
	if homeName == "" && homeID == saved.HomeID {
		homeName = saved.HomeName
	}
	if homeID == 0 {
		return errors.New("no home selected; run tadox login")
	}

	coord, err := coordinator.New(e.client, coordinator.Config{
		HomeID:       homeID,
		HomeName:     homeName,
		ScanInterval: e.cfg.Polling.ScanInterval,
		Features:     e.cfg.Features(),
		Logger:       e.log,
		Persist:      persistState(e.store, e.log),
	})
	if err != nil {
		return err
	}
	coord.RestoreRoomDefaults(saved.ControlDefaults())

	svc := control.New(e.client, coord, e.log.With(slog.String("component", "control")))

	runners, err := controllers(e, svc, coord)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(ctx) })
	for _, r := range runners {
		g.Go(func() error { return r(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type runner func(context.Context) error

// controllers builds the enabled controllers.
func controllers(e *env, svc *control.Service, coord *coordinator.Coordinator) ([]runner, error) {
	ctrls := e.cfg.Controllers
	var out []runner

	if ctrls.HTTP.Enabled {
		srv := httpctrl.New(svc, ctrls.HTTP.Addr, coord, e.log)
		e.log.Info("http listening", slog.String("addr", ctrls.HTTP.Addr))
		out = append(out, srv.Run)
	}

	if ctrls.MQTT.Enabled {
		m := ctrls.MQTT
		c, err := mqttctrl.New(svc, mqttctrl.Config{
			HomeID:          coord.HomeID(),
			BrokerURL:       m.BrokerURL,
			ClientID:        m.ClientID,
			BaseTopic:       m.BaseTopic,
			QoS:             m.QoS,
			RetainSnapshot:  m.RetainSnapshot,
			PublishInterval: m.PublishInterval,
			Username:        m.Username,
			Password:        m.Password,
			Logger:          e.log,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, c.Run)
	}

	if ctrls.MODBUS.Enabled {
		c, err := modbusctrl.New(svc, modbusctrl.Config{
			Addr:   ctrls.MODBUS.Addr,
			UnitID: ctrls.MODBUS.UnitID,
			Logger: e.log,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, c.Run)
	}
	return out, nil
}

// persistState writes the request budget and room defaults to the state file.
func persistState(st *store.Store, log *slog.Logger) func(coordinator.State) {
	return func(s coordinator.State) {
		err := st.Update(func(ps *store.State) {
			ps.APICallsToday = s.API.CallsToday
			ps.APIResetTime = s.API.ResetTime
			ps.HasAutoAssist = s.API.HasAutoAssist
			ps.SetControlDefaults(s.RoomDefaults)
		})
		if err != nil {
			log.Error("persist state", slog.Any("error", err))
		}
	}
}
