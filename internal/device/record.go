package device

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record keys recognised in a device record.
const (
	keyUDID          = "udid"
	keyType          = "type"
	keyName          = "name"
	keyPort          = "appium"
	keyBootstrapPort = "appiumbp"
	keyOSVersion     = "osversion"
)

// variablePrefix is the robot argument-file syntax a record line may carry.
const variablePrefix = "--variable"

// maxPort is the highest valid TCP port.
const maxPort = 65535

// ParseRecord reads a device record.
//
// A record is line oriented. A line contributes only when splitting it on
// ':' yields exactly two parts; every other line is ignored. The key may
// carry the "--variable " prefix of robot argument files. Unknown keys are
// ignored.
//
// Parameters:
//   - r: Record content
//   - confPath: Path recorded in Device.ConfPath
//
// Returns:
//   - Device: Parsed and validated device
//   - error: ErrUnreadableRecord on I/O failure, ErrInvalidRecord on validation failure
func ParseRecord(r io.Reader, confPath string) (Device, error) {
	d := Device{ConfPath: confPath}

	var rawPort, rawBootstrap string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := splitLine(scanner.Text())
		if !ok {
			continue
		}

		switch key {
		case keyUDID:
			d.UDID = value
		case keyType:
			d.Type = value
		case keyName:
			d.Name = value
		case keyPort:
			rawPort = value
		case keyBootstrapPort:
			rawBootstrap = value
		case keyOSVersion:
			d.OSVersion = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Device{}, fmt.Errorf("%w: %s: %w", ErrUnreadableRecord, confPath, err)
	}

	var err error
	if d.Port, err = parsePort(keyPort, rawPort); err != nil {
		return Device{}, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, confPath, err)
	}
	if d.BootstrapPort, err = parsePort(keyBootstrapPort, rawBootstrap); err != nil {
		return Device{}, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, confPath, err)
	}

	if err := d.Validate(); err != nil {
		return Device{}, fmt.Errorf("%s: %w", confPath, err)
	}

	return d, nil
}

// splitLine extracts key and value from a record line.
func splitLine(line string) (key, value string, ok bool) {
	parts := strings.Split(line, ":")
	if len(parts) != 2 {
		return "", "", false
	}

	key = strings.TrimSpace(parts[0])
	if rest, found := strings.CutPrefix(key, variablePrefix); found {
		key = strings.TrimSpace(rest)
	}
	return strings.ToLower(key), strings.TrimSpace(parts[1]), key != ""
}

func parsePort(key, raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", key, raw)
	}
	return port, nil
}

// Validate checks the invariants of a single device.
// Cross-device port uniqueness is enforced by the Registry.
func (d Device) Validate() error {
	if d.UDID == "" {
		return fmt.Errorf("%w: udid is required", ErrInvalidRecord)
	}
	if d.Port < 1 || d.Port > maxPort {
		return fmt.Errorf("%w: %s port %d out of range", ErrInvalidRecord, keyPort, d.Port)
	}
	if d.BootstrapPort < 1 || d.BootstrapPort > maxPort {
		return fmt.Errorf("%w: %s port %d out of range", ErrInvalidRecord, keyBootstrapPort, d.BootstrapPort)
	}
	if d.Port == d.BootstrapPort {
		return fmt.Errorf("%w: %s and %s share port %d", ErrInvalidRecord, keyPort, keyBootstrapPort, d.Port)
	}
	return nil
}
