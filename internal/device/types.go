package device

import "fmt"

// Device is one test endpoint of the fleet together with the ports of the
// automation server that fronts it.
//
// Devices are values: the Registry hands out copies and nothing mutates a
// Device after it has been loaded.
type Device struct {
	// UDID is the unique device identifier used to address the endpoint.
	UDID string `json:"udid"`

	// Name is the human label, used as the per-device report title.
	Name string `json:"name,omitempty"`

	// Type is a free-form classifier (phone, tablet, emulator, ...).
	Type string `json:"type,omitempty"`

	// OSVersion is informational only.
	OSVersion string `json:"os_version,omitempty"`

	// Port is the automation server listening port.
	Port int `json:"port"`

	// BootstrapPort is the automation server bootstrap port.
	BootstrapPort int `json:"bootstrap_port"`

	// ConfPath is the record file the device was read from. The runner
	// receives it verbatim as an argument file.
	ConfPath string `json:"conf_path"`
}

// ReportName is the title of the device in merged reports.
// It falls back to the UDID for records without a name.
func (d Device) ReportName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.UDID
}

// String implements fmt.Stringer for log output.
func (d Device) String() string {
	return fmt.Sprintf("%s (%s) port=%d bp=%d", d.ReportName(), d.UDID, d.Port, d.BootstrapPort)
}
