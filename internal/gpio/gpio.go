// Package gpio provides single-line GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Input reads one logical input line.
type Input interface {
	// Read returns the logical state of the line. Active-low lines are
	// already inverted, so true always means "asserted".
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives one logical output line.
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(high bool) error

	// Close releases the line.
	Close() error
}

// DefaultChip is the GPIO character device the lines live on.
const DefaultChip = "gpiochip0"

// Line offsets (BCM numbering).
const (
	DefaultPinTick  = 17 // Lavet coil, tick side
	DefaultPinTock  = 27 // Lavet coil, tock side
	DefaultPinA     = 5  // ULN2003 IN1
	DefaultPinB     = 6  // ULN2003 IN2
	DefaultPinC     = 13 // ULN2003 IN3
	DefaultPinD     = 19 // ULN2003 IN4
	DefaultPinLimit = 26 // Hall-effect limit sensor, active low
	DefaultPinPower = 16 // USB "power present", active high
)
