package midi

// DeviceEventType says what changed on the MIDI side
type DeviceEventType int

const (
	OutputConnected DeviceEventType = iota
	OutputDisconnected
	InputConnected
	InputDisconnected
	DriverUnavailable
)

func (t DeviceEventType) String() string {
	switch t {
	case OutputConnected:
		return "output connected"
	case OutputDisconnected:
		return "output disconnected"
	case InputConnected:
		return "input connected"
	case InputDisconnected:
		return "input disconnected"
	case DriverUnavailable:
		return "driver unavailable"
	}
	return "unknown"
}

// DeviceEvent is emitted when ports come and go
type DeviceEvent struct {
	Type DeviceEventType
	Name string
}
