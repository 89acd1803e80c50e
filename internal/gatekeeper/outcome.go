package gatekeeper

// Outcome records how one invocation ended.
type Outcome int

const (
	OnForbiddenPage       Outcome = iota // already on the forbidden page; nothing done
	RateLimited                          // request budget exhausted; redirected
	AddressUnavailable                   // no address could be resolved; allowed
	NoData                               // reputation service has no record; allowed
	ReputationUnavailable                // reputation lookup failed; allowed
	KnownBot                             // classified bot; allowed regardless of risk
	HighRisk                             // risk at or above threshold; redirected
	Allowed                              // risk below threshold
)

var outcomeNames = [...]string{
	OnForbiddenPage:       "on_forbidden_page",
	RateLimited:           "rate_limited",
	AddressUnavailable:    "address_unavailable",
	NoData:                "no_data",
	ReputationUnavailable: "reputation_unavailable",
	KnownBot:              "known_bot",
	HighRisk:              "high_risk",
	Allowed:               "allowed",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Redirected reports whether the outcome sent the visitor to the forbidden page.
func (o Outcome) Redirected() bool {
	return o == RateLimited || o == HighRisk
}
