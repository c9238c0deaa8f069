package hostlink

// DefaultBaudRate matches the monitoring host's default.
const DefaultBaudRate = 115200

// SerialConfig configures the serial port to the host.
type SerialConfig struct {
	// Device path (e.g., /dev/ttyACM0, /dev/serial0)
	Device   string
	BaudRate int
}
