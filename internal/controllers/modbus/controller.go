package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/tadox/internal/ports"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

// Each room owns a block of BlockSize addresses in every table, ordered by
// room id: the room with the lowest id starts at 0, the next at BlockSize.
const BlockSize = 10

// Holding register offsets (read/write).
const (
	HRTargetTemperature = 0 // °C ×100
	HRHVACMode          = 1 // tado.HVACMode
	HRPreset            = 2 // tado.Preset
)

// Input register offsets (read only).
const (
	IRCurrentTemperature = 0 // °C ×100
	IRHumidity           = 1 // % ×100
	IRHeatingPower       = 2 // %
	IRHVACAction         = 3 // tado.HVACAction
	IRConnected          = 4 // 0 or 1
	IRRoomID             = 5
)

// Coil offsets.
const (
	CoilHeating = 0 // power on/off
	CoilBoost   = 1 // write 1 to boost; reads the boost state
)

// NotAvailable is reported for values the room does not provide.
const NotAvailable uint16 = 0x8000

const writeTimeout = 30 * time.Second

// Config for the Modbus controller.
type Config struct {
	Addr   string
	UnitID byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
	Logger *slog.Logger
}

type Controller struct {
	svc ports.HomeService
	cfg Config
	log *slog.Logger
	ctx context.Context

	serv *mbserver.Server
}

func New(svc ports.HomeService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: cfg.Logger.With(slog.String("controller", "modbus")),
		ctx: context.Background(),
	}, nil
}

// Run starts the Modbus server. Reads are answered from the latest snapshot
// and writes go straight to the home service. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	serv := mbserver.NewServer()
	c.serv = serv

	// Register handlers BEFORE starting the TCP listener to avoid races inside mbserver
	// between handler registration and the server's goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.registerReader(holdingRegister))
	serv.RegisterFunctionHandler(4, c.registerReader(inputRegister))
	serv.RegisterFunctionHandler(5, c.writeSingleCoil)
	serv.RegisterFunctionHandler(6, c.writeSingleRegister)
	serv.RegisterFunctionHandler(16, c.writeMultipleRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}
	c.log.Info("modbus listening", slog.String("addr", c.cfg.Addr))

	// Block until ctx.Done()
	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

type handler = func(*mbserver.Server, mbserver.Framer) ([]byte, *mbserver.Exception)

// layout returns the snapshot with its rooms in block order.
func (c *Controller) layout() (tado.Snapshot, []tado.Room, *mbserver.Exception) {
	snap, err := c.svc.Get()
	if err != nil {
		return tado.Snapshot{}, nil, &mbserver.SlaveDeviceBusy
	}
	rooms := make([]tado.Room, 0, len(snap.Rooms))
	for _, id := range slices.Sorted(maps.Keys(snap.Rooms)) {
		rooms = append(rooms, snap.Rooms[id])
	}
	return snap, rooms, nil
}

func readRange(data []byte, maxQty int) (start, qty int, ex *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxQty {
		return 0, 0, &mbserver.IllegalDataValue
	}
	return start, qty, nil
}

func holdingRegister(snap tado.Snapshot, r tado.Room, off int) uint16 {
	switch off {
	case HRTargetTemperature:
		return encodeOptionalTemp(r.DisplayTarget())
	case HRHVACMode:
		return uint16(r.HVACMode())
	case HRPreset:
		return uint16(snap.Preset(r.ID))
	}
	return 0
}

func inputRegister(_ tado.Snapshot, r tado.Room, off int) uint16 {
	switch off {
	case IRCurrentTemperature:
		return encodeOptionalTemp(r.CurrentTemperature)
	case IRHumidity:
		return encodeOptionalTemp(r.Humidity)
	case IRHeatingPower:
		return uint16(max(r.HeatingPower, 0))
	case IRHVACAction:
		return uint16(r.HVACAction())
	case IRConnected:
		return boolReg(r.Available())
	case IRRoomID:
		return uint16(r.ID)
	}
	return 0
}

// registerReader serves function codes 3 and 4. Requests may span blocks;
// unused offsets read as zero.
func (c *Controller) registerReader(value func(tado.Snapshot, tado.Room, int) uint16) handler {
	return func(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		start, qty, ex := readRange(frame.GetData(), 125)
		if ex != nil {
			return []byte{}, ex
		}
		snap, rooms, ex := c.layout()
		if ex != nil {
			return []byte{}, ex
		}
		if start+qty > len(rooms)*BlockSize {
			return []byte{}, &mbserver.IllegalDataAddress
		}

		byteCount := qty * 2
		resp := make([]byte, 1+byteCount)
		resp[0] = byte(byteCount)
		for i := range qty {
			addr := start + i
			v := value(snap, rooms[addr/BlockSize], addr%BlockSize)
			binary.BigEndian.PutUint16(resp[1+i*2:], v)
		}
		return resp, &mbserver.Success
	}
}

func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, ex := readRange(frame.GetData(), 2000)
	if ex != nil {
		return []byte{}, ex
	}
	_, rooms, ex := c.layout()
	if ex != nil {
		return []byte{}, ex
	}
	if start+qty > len(rooms)*BlockSize {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	byteCount := (qty + 7) / 8
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i := range qty {
		addr := start + i
		r := rooms[addr/BlockSize]
		var on bool
		switch addr % BlockSize {
		case CoilHeating:
			on = r.Power == tado.PowerOn
		case CoilBoost:
			on = r.BoostMode
		}
		if on {
			resp[1+i/8] |= 1 << (i % 8)
		}
	}
	return resp, &mbserver.Success
}

// Write Single Coil (function 5)
func (c *Controller) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := int(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	var on bool
	switch value {
	case 0x0000:
		on = false
	case 0xFF00:
		on = true
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	_, rooms, ex := c.layout()
	if ex != nil {
		return []byte{}, ex
	}
	if addr >= len(rooms)*BlockSize {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	id := rooms[addr/BlockSize].ID

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	var err error
	switch addr % BlockSize {
	case CoilHeating:
		if on {
			err = c.svc.TurnOn(ctx, id)
		} else {
			err = c.svc.TurnOff(ctx, id)
		}
	case CoilBoost:
		if on {
			err = c.svc.BoostRoom(ctx, id)
		}
	default:
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if err != nil {
		return []byte{}, c.exceptionFor(err, addr)
	}

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Single Register (function 6)
func (c *Controller) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := int(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	_, rooms, ex := c.layout()
	if ex != nil {
		return []byte{}, ex
	}
	if ex := c.writeRegister(rooms, addr, value); ex != nil {
		return []byte{}, ex
	}

	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Write Multiple Registers (function 16)
func (c *Controller) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}

	_, rooms, ex := c.layout()
	if ex != nil {
		return []byte{}, ex
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(d[5+i*2 : 5+i*2+2])
		if ex := checkRegister(rooms, int(start)+i, values[i]); ex != nil {
			return []byte{}, ex
		}
	}
	for i, val := range values {
		if ex := c.writeRegister(rooms, int(start)+i, val); ex != nil {
			return []byte{}, ex
		}
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

// checkRegister validates a holding register write without applying it.
func checkRegister(rooms []tado.Room, addr int, value uint16) *mbserver.Exception {
	if addr >= len(rooms)*BlockSize {
		return &mbserver.IllegalDataAddress
	}
	var err error
	switch addr % BlockSize {
	case HRTargetTemperature:
		err = tado.ValidateTemperature(decodeTemp(value))
	case HRHVACMode:
		if !tado.HVACMode(value).Valid() {
			err = tado.ErrInvalidHVACMode
		}
	case HRPreset:
		if !tado.Preset(value).Valid() {
			err = tado.ErrInvalidPreset
		}
	default:
		return &mbserver.IllegalDataAddress
	}
	if err != nil {
		return &mbserver.IllegalDataValue
	}
	return nil
}

func (c *Controller) writeRegister(rooms []tado.Room, addr int, value uint16) *mbserver.Exception {
	if addr >= len(rooms)*BlockSize {
		return &mbserver.IllegalDataAddress
	}
	id := rooms[addr/BlockSize].ID

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	var err error
	switch addr % BlockSize {
	case HRTargetTemperature:
		err = c.svc.SetTemperature(ctx, id, decodeTemp(value))
	case HRHVACMode:
		err = c.svc.SetHVACMode(ctx, id, tado.HVACMode(value))
	case HRPreset:
		err = c.svc.SetPreset(ctx, id, tado.Preset(value))
	default:
		return &mbserver.IllegalDataAddress
	}
	if err != nil {
		return c.exceptionFor(err, addr)
	}
	return nil
}

var invalidValue = []error{
	tado.ErrTemperatureOutOfRange,
	tado.ErrInvalidHVACMode,
	tado.ErrInvalidPreset,
	tado.ErrInvalidTermination,
	tado.ErrInvalidDuration,
}

func (c *Controller) exceptionFor(err error, addr int) *mbserver.Exception {
	if errors.Is(err, tado.ErrUnknownRoom) {
		return &mbserver.IllegalDataAddress
	}
	for _, target := range invalidValue {
		if errors.Is(err, target) {
			return &mbserver.IllegalDataValue
		}
	}
	c.log.Warn("write failed", slog.Int("address", addr), slog.Any("error", err))
	return &mbserver.SlaveDeviceFailure
}

const TemperatureScale int = 100

func encodeTemp(v float64) uint16 {
	r := min(max(int(math.Round(v*float64(TemperatureScale))), math.MinInt16+1), math.MaxInt16)
	return uint16(int16(r))
}

func encodeOptionalTemp(v *float64) uint16 {
	if v == nil {
		return NotAvailable
	}
	return encodeTemp(*v)
}

func decodeTemp(u uint16) float64 {
	i := int16(u)
	return float64(i) / float64(TemperatureScale)
}

func boolReg(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
