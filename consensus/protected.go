package consensus

// ProtectedPolicy is a consensus rule, not a higher-layer concern: it
// restricts which tx_type a pre-mine reserve address may originate as
// sender. The rule lives in the validator so every node enforces it
// identically regardless of deployment.
type ProtectedPolicy struct {
	allowed map[Address]map[TxType]struct{}
}

// NewProtectedPolicy builds a policy from an address -> allowed tx_types map.
func NewProtectedPolicy(allowed map[Address][]TxType) *ProtectedPolicy {
	p := &ProtectedPolicy{allowed: make(map[Address]map[TxType]struct{}, len(allowed))}
	for addr, types := range allowed {
		set := make(map[TxType]struct{}, len(types))
		for _, t := range types {
			set[t] = struct{}{}
		}
		p.allowed[addr] = set
	}
	return p
}

// IsProtected reports whether addr is a registered protected address.
func (p *ProtectedPolicy) IsProtected(addr Address) bool {
	_, ok := p.allowed[addr]
	return ok
}

// Authorized reports whether a protected sender is permitted to originate
// txType. Unregistered addresses are never protected, so this is only
// meaningful after IsProtected confirms membership.
func (p *ProtectedPolicy) Authorized(sender Address, txType TxType) bool {
	set, ok := p.allowed[sender]
	if !ok {
		return true
	}
	_, allowed := set[txType]
	return allowed
}
