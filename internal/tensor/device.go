package tensor

import "fmt"

// DeviceKind identifies a compute device class.
type DeviceKind string

const (
	// DeviceCPU is the host CPU backend.
	DeviceCPU DeviceKind = "cpu"

	// DeviceCUDA names an accelerator slot. The pure-Go backend executes
	// on the host either way; the kind is carried so placement decisions
	// stay explicit and observable in logs.
	DeviceCUDA DeviceKind = "cuda"
)

// Device is an explicit compute placement, passed into the trainer rather
// than discovered through process-global state.
type Device struct {
	Kind  DeviceKind
	Index int
}

// CPU returns the host device.
func CPU() Device {
	return Device{Kind: DeviceCPU}
}

// ParseDevice builds a Device from its config representation.
func ParseDevice(kind string, index int) Device {
	if kind == string(DeviceCUDA) {
		return Device{Kind: DeviceCUDA, Index: index}
	}
	return CPU()
}

func (d Device) String() string {
	if d.Kind == DeviceCPU {
		return "cpu"
	}
	return fmt.Sprintf("%s:%d", d.Kind, d.Index)
}
