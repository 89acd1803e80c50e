package gatekeeper

import "time"

const (
	DefaultRiskThreshold = 70
	DefaultMaxRequests   = 100
	DefaultWindow        = 15 * time.Minute
	DefaultForbiddenPage = "/403.html"
)

// Config is supplied by the caller for one invocation. Zero fields take the
// defaults above. A RiskThreshold of 0 therefore means 70, not "block every
// scored address"; use a small positive value such as 0.01 for that.
type Config struct {
	// RiskThreshold is the inclusive average risk at which a visitor is
	// redirected.
	RiskThreshold float64
	// MaxRequests page loads are admitted per Window.
	MaxRequests int
	Window      time.Duration
	// IP, when set, is used as the visitor's address and skips detection.
	IP string
	// ForbiddenPage is the same-origin path visitors are redirected to.
	ForbiddenPage string
}

func DefaultConfig() Config {
	return Config{
		RiskThreshold: DefaultRiskThreshold,
		MaxRequests:   DefaultMaxRequests,
		Window:        DefaultWindow,
		ForbiddenPage: DefaultForbiddenPage,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RiskThreshold == 0 {
		c.RiskThreshold = d.RiskThreshold
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Window == 0 {
		c.Window = d.Window
	}
	if c.ForbiddenPage == "" {
		c.ForbiddenPage = d.ForbiddenPage
	}
	return c
}
