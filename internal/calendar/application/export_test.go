package application

import "time"

// SetProviderClockForTest overrides the provider's clock from external test
// packages.
func SetProviderClockForTest(p *AvailabilityProvider, clock func() time.Time) {
	p.clock = clock
}
