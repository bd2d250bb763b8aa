package fees

import "math/big"

// Fee rates applied by the platform, expressed in basis points. Settlement of
// a session or review bounty retains PlatformFeeBps of the gross amount; tips
// retain TipFeeBps.
const (
	// PlatformFeeBps is the 5% platform cut on sessions and review bounties.
	PlatformFeeBps uint32 = 500
	// TipFeeBps is the 2% platform cut on tips.
	TipFeeBps uint32 = 200

	bpsDenominator = 10_000
)

// PlatformFee computes the platform cut retained when a session payment or
// review bounty settles. The result rounds down.
func PlatformFee(amount *big.Int) *big.Int {
	return apply(amount, PlatformFeeBps)
}

// TipFee computes the platform cut skimmed from a tip. The result rounds
// down.
func TipFee(amount *big.Int) *big.Int {
	return apply(amount, TipFeeBps)
}

// Net returns amount minus fee. Callers pass the matching fee for the amount;
// the function performs no validation beyond nil handling.
func Net(amount, fee *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if fee == nil {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Sub(amount, fee)
}

func apply(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, big.NewInt(bpsDenominator))
}
