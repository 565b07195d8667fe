package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// RecordExt is the file extension of device records.
const RecordExt = ".dat"

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Rejection records a device record that was dropped during loading.
type Rejection struct {
	Path string
	Err  error
}

// Registry is the fleet of devices accepted for a run.
//
// The index of a device in Devices() is its device index for the whole
// run: it selects the runner argument file slot and the raw artifact name.
//
// A Registry is immutable once loaded and safe for concurrent reads.
type Registry struct {
	devices  []Device
	byUDID   map[string]int
	rejected []Rejection
}

// NewRegistry builds a registry from already parsed devices, enforcing
// fleet-wide uniqueness. Devices that clash with an earlier one are
// rejected.
func NewRegistry(devices []Device) *Registry {
	r := &Registry{byUDID: make(map[string]int, len(devices))}
	ports := make(map[int]string, len(devices)*2)

	for _, d := range devices {
		if err := r.admit(d, ports); err != nil {
			r.rejected = append(r.rejected, Rejection{Path: d.ConfPath, Err: err})
		}
	}
	return r
}

func (r *Registry) admit(d Device, ports map[int]string) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, dup := r.byUDID[d.UDID]; dup {
		return fmt.Errorf("%w: udid %s already registered", ErrInvalidRecord, d.UDID)
	}
	for _, p := range []int{d.Port, d.BootstrapPort} {
		if owner, taken := ports[p]; taken {
			return fmt.Errorf("%w: %d already used by %s", ErrDuplicatePort, p, owner)
		}
	}

	ports[d.Port] = d.UDID
	ports[d.BootstrapPort] = d.UDID
	r.byUDID[d.UDID] = len(r.devices)
	r.devices = append(r.devices, d)
	return nil
}

// LoadDir reads every record file in dir and returns the accepted fleet.
//
// Records are visited in file name order so device indices are stable
// between runs. Unreadable and invalid records are logged and dropped; they
// are not retried. An empty fleet is not an error here.
//
// Parameters:
//   - ctx: Cancels the scan between records
//   - dir: Directory holding *.dat records
//   - logger: Receives one error per dropped record, may be nil
//
// Returns:
//   - *Registry: Accepted devices and the rejections
//   - error: Only when dir itself cannot be listed or ctx is cancelled
func LoadDir(ctx context.Context, dir string, logger Logger) (*Registry, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("listing device records: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*"+RecordExt))
	if err != nil {
		return nil, fmt.Errorf("listing device records: %w", err)
	}
	sort.Strings(paths)

	var (
		parsed   []Device
		rejected []Rejection
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, err := loadRecord(path)
		if err != nil {
			rejected = append(rejected, Rejection{Path: path, Err: err})
			continue
		}
		parsed = append(parsed, d)
	}

	r := NewRegistry(parsed)
	r.rejected = append(rejected, r.rejected...)

	for _, rej := range r.rejected {
		logger.Error("device record dropped",
			"kind", "config",
			"path", rej.Path,
			"error", rej.Err,
		)
	}
	for i, d := range r.devices {
		logger.Info("device registered",
			"index", i,
			"udid", d.UDID,
			"name", d.Name,
			"port", d.Port,
			"bootstrap_port", d.BootstrapPort,
		)
	}

	return r, nil
}

func loadRecord(path string) (Device, error) {
	f, err := os.Open(path) //nolint:gosec // records come from the workspace devices directory
	if err != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrUnreadableRecord, err)
	}
	defer f.Close()

	return ParseRecord(f, path)
}

// Devices returns a copy of the accepted devices in index order.
func (r *Registry) Devices() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Count returns the number of accepted devices.
func (r *Registry) Count() int {
	return len(r.devices)
}

// Rejected returns the records dropped while loading.
func (r *Registry) Rejected() []Rejection {
	out := make([]Rejection, len(r.rejected))
	copy(out, r.rejected)
	return out
}
