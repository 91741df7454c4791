package ddc

import "context"

// Capability reports how a display's brightness register is reached.
type Capability string

const (
	CapabilityDDC       Capability = "ddc"
	CapabilityBacklight Capability = "backlight"
)

// Display is a physical display discovered by a transport.
type Display struct {
	ID         string
	Name       string
	Capability Capability
}

// Transport is the low-level brightness protocol for one class of
// hardware. Implementations are stateless; percent values are 0-100.
type Transport interface {
	Detect(ctx context.Context) ([]Display, error)
	GetBrightness(ctx context.Context, id string) (int, error)
	SetBrightness(ctx context.Context, id string, percent int) error
}
