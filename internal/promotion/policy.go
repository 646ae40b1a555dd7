package promotion

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes the two listing promotion mechanics.
type Kind string

const (
	// KindBoost raises a listing in search ranking until boosted_until.
	KindBoost Kind = "boost"
	// KindSponsor marks a listing as sponsored placement until sponsored_until.
	KindSponsor Kind = "sponsor"
)

// Grant describes the promotion effect a product purchase unlocks.
type Grant struct {
	Kind     Kind
	Duration time.Duration
}

// Policy maps product codes to promotion grants.
type Policy map[string]Grant

// DefaultPolicy returns the built-in product-to-promotion mapping.
func DefaultPolicy() Policy {
	return Policy{
		"BOOST_24H":   {Kind: KindBoost, Duration: 24 * time.Hour},
		"BOOST_7D":    {Kind: KindBoost, Duration: 7 * 24 * time.Hour},
		"BOOST_30D":   {Kind: KindBoost, Duration: 30 * 24 * time.Hour},
		"SPONSOR_30D": {Kind: KindSponsor, Duration: 30 * 24 * time.Hour},
	}
}

// Grant looks up the promotion effect for a product code.
func (p Policy) Grant(productCode string) (Grant, bool) {
	g, ok := p[strings.ToUpper(strings.TrimSpace(productCode))]
	return g, ok
}

// ParsePolicy reads a policy from its textual form, e.g.
// "BOOST_24H=boost:24h,SPONSOR_30D=sponsor:720h". An empty spec yields
// the default policy.
func ParsePolicy(spec string) (Policy, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return DefaultPolicy(), nil
	}
	policy := Policy{}
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, rule, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("promotion: malformed policy entry %q", entry)
		}
		kindText, durText, ok := strings.Cut(rule, ":")
		if !ok {
			return nil, fmt.Errorf("promotion: malformed policy rule %q", rule)
		}
		kind := Kind(strings.ToLower(strings.TrimSpace(kindText)))
		if kind != KindBoost && kind != KindSponsor {
			return nil, fmt.Errorf("promotion: unknown promotion kind %q", kindText)
		}
		duration, err := time.ParseDuration(strings.TrimSpace(durText))
		if err != nil {
			return nil, fmt.Errorf("promotion: invalid duration in %q: %w", entry, err)
		}
		if duration <= 0 {
			return nil, fmt.Errorf("promotion: non-positive duration in %q", entry)
		}
		policy[strings.ToUpper(strings.TrimSpace(code))] = Grant{Kind: kind, Duration: duration}
	}
	if len(policy) == 0 {
		return nil, fmt.Errorf("promotion: empty policy spec %q", spec)
	}
	return policy, nil
}
