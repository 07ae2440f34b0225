package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/controllers/dto"
	"github.com/Agrid-Dev/tadox/internal/device"
	"github.com/Agrid-Dev/tadox/internal/ports"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

// Subscriber delivers every new snapshot; the websocket stream needs one.
type Subscriber interface {
	Subscribe(fn func(tado.Snapshot)) (cancel func())
}

type Server struct {
	svc     ports.HomeService
	updates Subscriber
	srv     *http.Server
	log     *slog.Logger

	// closed on shutdown so hijacked stream connections end too
	stop chan struct{}
}

// New returns a runnable server. updates may be nil, in which case
// /v1/stream is not served.
func New(svc ports.HomeService, addr string, updates Subscriber, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{svc: svc, updates: updates, log: log, stop: make(chan struct{})}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/rooms/{id}", s.handleGetRoom)
	if updates != nil {
		mux.HandleFunc("GET /v1/stream", s.handleStream)
	}

	// Home
	mux.HandleFunc("POST /v1/presence", s.handlePostPresence)
	mux.HandleFunc("POST /v1/max_flow_temperature", s.handlePostMaxFlow)
	mux.HandleFunc("POST /v1/boost_all", s.button(s.svc.BoostAll))
	mux.HandleFunc("POST /v1/all_off", s.button(s.svc.AllOff))
	mux.HandleFunc("POST /v1/resume_schedules", s.button(s.svc.ResumeAllSchedules))
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)

	// Rooms: one endpoint per variable
	mux.HandleFunc("POST /v1/rooms/{id}/temperature", s.handlePostTemperature)
	mux.HandleFunc("POST /v1/rooms/{id}/timer", s.handlePostTimer)
	mux.HandleFunc("POST /v1/rooms/{id}/hvac_mode", s.handlePostHVACMode)
	mux.HandleFunc("POST /v1/rooms/{id}/preset", s.handlePostPreset)
	mux.HandleFunc("POST /v1/rooms/{id}/power", s.handlePostPower)
	mux.HandleFunc("POST /v1/rooms/{id}/boost", s.handlePostBoost)
	mux.HandleFunc("POST /v1/rooms/{id}/open_window_detection", s.handlePostOpenWindow)
	mux.HandleFunc("POST /v1/rooms/{id}/defaults", s.handlePostDefaults)

	// Devices
	mux.HandleFunc("POST /v1/devices/{serial}/child_lock", s.handlePostChildLock)
	mux.HandleFunc("POST /v1/devices/{serial}/temperature_offset", s.handlePostOffset)

	// Energy insights
	mux.HandleFunc("POST /v1/meter_readings", s.handlePostMeterReading)
	mux.HandleFunc("POST /v1/tariff", s.handlePostTariff)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv.RegisterOnShutdown(func() { close(s.stop) })
	return s
}

// Handler exposes the routes for in-process tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- request bodies ----

type timerReq struct {
	Temperature float64 `json:"temperature"`
	Termination string  `json:"termination"`
	Minutes     int     `json:"minutes"`
}

// defaultsReq fields are optional; omitted ones keep their current value.
type defaultsReq struct {
	Termination     string `json:"termination,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type meterReq struct {
	Reading int    `json:"reading"`
	Date    string `json:"date"`
}

type tariffReq struct {
	Tariff    float64 `json:"tariff"`
	Unit      string  `json:"unit"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	s.respondRoom(w, id)
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.svc.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func (s *Server) handlePostPresence(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "away"}
	postValue(w, r, func(v string) error {
		m, err := tado.ParsePresenceMode(v)
		if err != nil {
			return err
		}
		return s.svc.SetPresenceMode(r.Context(), m)
	}, s.respondSnapshot)
}

func (s *Server) handlePostMaxFlow(w http.ResponseWriter, r *http.Request) {
	postValue(w, r, func(v int) error {
		return s.svc.SetMaxFlowTemperature(r.Context(), v)
	}, s.respondSnapshot)
}

func (s *Server) button(press func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := press(r.Context()); err != nil {
			writeErr(w, statusFor(err), err.Error())
			return
		}
		s.respondSnapshot(w)
	}
}

func (s *Server) handlePostTemperature(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(v float64) error {
			return s.svc.SetTemperature(r.Context(), id, v)
		}, s.roomResponder(id))
	})
}

func (s *Server) handlePostTimer(w http.ResponseWriter, r *http.Request) {
	// body: {"value": {"temperature": 21, "termination": "TIMER", "minutes": 30}}
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(v timerReq) error {
			var t tado.Termination
			if v.Termination != "" {
				var err error
				if t, err = tado.ParseTermination(v.Termination); err != nil {
					return err
				}
			}
			return s.svc.SetClimateTimer(r.Context(), id, v.Temperature, t, v.Minutes)
		}, s.roomResponder(id))
	})
}

func (s *Server) handlePostHVACMode(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(v string) error {
			m, err := tado.ParseHVACMode(v)
			if err != nil {
				return err
			}
			return s.svc.SetHVACMode(r.Context(), id, m)
		}, s.roomResponder(id))
	})
}

func (s *Server) handlePostPreset(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(v string) error {
			p, err := tado.ParsePreset(v)
			if err != nil {
				return err
			}
			return s.svc.SetPreset(r.Context(), id, p)
		}, s.roomResponder(id))
	})
}

func (s *Server) handlePostPower(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(on bool) error {
			if on {
				return s.svc.TurnOn(r.Context(), id)
			}
			return s.svc.TurnOff(r.Context(), id)
		}, s.roomResponder(id))
	})
}

func (s *Server) handlePostBoost(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		if err := s.svc.BoostRoom(r.Context(), id); err != nil {
			writeErr(w, statusFor(err), err.Error())
			return
		}
		s.respondRoom(w, id)
	})
}

func (s *Server) handlePostOpenWindow(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(on bool) error {
			return s.svc.SetOpenWindowDetection(r.Context(), id, on)
		}, s.roomResponder(id))
	})
}

func (s *Server) handlePostDefaults(w http.ResponseWriter, r *http.Request) {
	s.postRoom(w, r, func(id int) {
		postValue(w, r, func(v defaultsReq) error {
			var patch tado.RoomControlDefaults
			if v.Termination != "" {
				t, err := tado.ParseTermination(v.Termination)
				if err != nil {
					return err
				}
				patch.Termination = t
			}
			if v.DurationMinutes != 0 {
				if err := tado.ValidateTimerMinutes(v.DurationMinutes); err != nil {
					return err
				}
				patch.DurationMinutes = v.DurationMinutes
			}
			return s.svc.SetRoomDefaults(id, s.svc.RoomDefaults(id).With(patch))
		}, func(w http.ResponseWriter) {
			d := s.svc.RoomDefaults(id)
			writeJSON(w, http.StatusOK, defaultsReq{Termination: string(d.Termination), DurationMinutes: d.DurationMinutes})
		})
	})
}

func (s *Server) handlePostChildLock(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")
	postValue(w, r, func(on bool) error {
		return s.svc.SetChildLock(r.Context(), serial, on)
	}, s.respondSnapshot)
}

func (s *Server) handlePostOffset(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")
	postValue(w, r, func(v float64) error {
		return s.svc.SetTemperatureOffset(r.Context(), serial, v)
	}, s.respondSnapshot)
}

func (s *Server) handlePostMeterReading(w http.ResponseWriter, r *http.Request) {
	postValue(w, r, func(v meterReq) error {
		return s.svc.AddMeterReading(r.Context(), v.Reading, v.Date)
	}, respondOK)
}

func (s *Server) handlePostTariff(w http.ResponseWriter, r *http.Request) {
	postValue(w, r, func(v tariffReq) error {
		unit, err := tado.ParseTariffUnit(v.Unit)
		if err != nil {
			return err
		}
		return s.svc.SetEIQTariff(r.Context(), v.Tariff, unit, v.StartDate, v.EndDate)
	}, respondOK)
}

// ---- generic helpers ----

func (s *Server) respondSnapshot(w http.ResponseWriter) {
	snap, err := s.svc.Get()
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSnapshot(snap))
}

func (s *Server) respondRoom(w http.ResponseWriter, id int) {
	snap, err := s.svc.Get()
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	room, ok := snap.Room(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "unknown room")
		return
	}
	writeJSON(w, http.StatusOK, dto.FromRoom(snap, room))
}

func (s *Server) roomResponder(id int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) { s.respondRoom(w, id) }
}

func (s *Server) postRoom(w http.ResponseWriter, r *http.Request, fn func(id int)) {
	id, ok := roomID(w, r)
	if !ok {
		return
	}
	fn(id)
}

func respondOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// roomID accepts a bare room id or a climate entity id (`<home>_<room>_climate`).
func roomID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		_, id, err = device.ParseClimateEntity(raw)
	}
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid room id")
		return 0, false
	}
	return id, true
}

func postValue[T any](w http.ResponseWriter, r *http.Request, apply func(T) error, respond func(http.ResponseWriter)) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}

	respond(w)
}

// statusFor maps service errors onto HTTP status codes. Anything not
// recognised is a validation error.
func statusFor(err error) int {
	var apiErr *api.APIError
	_, limited := api.IsRateLimited(err)
	switch {
	case errors.Is(err, tado.ErrNoSnapshot), errors.Is(err, api.ErrHomeNotSet):
		return http.StatusServiceUnavailable
	case errors.Is(err, tado.ErrUnknownRoom), errors.Is(err, tado.ErrUnknownDevice):
		return http.StatusNotFound
	case limited:
		return http.StatusTooManyRequests
	case api.IsAuthError(err), errors.Is(err, api.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
