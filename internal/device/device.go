// Package device builds and parses the identifiers hosts use for a home,
// its rooms and their climate entities. Hardware devices are identified by
// serial number.
package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const climateSuffix = "_climate"

var ErrInvalidID = errors.New("invalid device identifier")

func HomeDeviceID(homeID int) string { return strconv.Itoa(homeID) }

func RoomDeviceID(homeID, roomID int) string {
	return fmt.Sprintf("%d_%d", homeID, roomID)
}

func ClimateEntityID(homeID, roomID int) string {
	return RoomDeviceID(homeID, roomID) + climateSuffix
}

// ParseClimateEntity accepts both `<home>_<room>_climate` and the legacy
// `<home>_<room>` form.
func ParseClimateEntity(id string) (homeID, roomID int, err error) {
	return parseRoom(strings.TrimSuffix(id, climateSuffix))
}

func IsClimateEntity(id string) bool {
	rest, ok := strings.CutSuffix(id, climateSuffix)
	return ok && IsRoomDevice(rest)
}

// IsRoomDevice reports whether id names a room rather than a hardware
// device. Hardware serials never have the numeric `<home>_<room>` shape.
func IsRoomDevice(id string) bool {
	_, _, err := parseRoom(id)
	return err == nil
}

func parseRoom(id string) (int, int, error) {
	home, room, ok := strings.Cut(id, "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	h, err := strconv.Atoi(home)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	r, err := strconv.Atoi(room)
	if err != nil || r <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return h, r, nil
}
