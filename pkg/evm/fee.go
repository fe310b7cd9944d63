package evm

import "math/big"

// DynamicFee returns maxFee = 2*baseFee + priority, never below priority.
func DynamicFee(baseFee, priority *big.Int) *big.Int {
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, priority)
	if maxFee.Cmp(priority) < 0 {
		return new(big.Int).Set(priority)
	}
	return maxFee
}

// Fees are the fee fields chosen for a transaction.
type Fees struct {
	GasPrice       *big.Int // legacy
	MaxPriorityFee *big.Int
	MaxFee         *big.Int
}

// ChooseFees selects EIP-1559 fees when the latest block reports a base fee
// and legacy gas pricing otherwise. A nil priority falls back to gasPrice.
func ChooseFees(baseFee, priority, gasPrice *big.Int) Fees {
	if baseFee == nil {
		return Fees{GasPrice: gasPrice}
	}
	if priority == nil {
		priority = gasPrice
	}
	return Fees{MaxPriorityFee: priority, MaxFee: DynamicFee(baseFee, priority)}
}

// Apply copies the fees into tx.
func (f Fees) Apply(tx *Tx) {
	tx.GasPrice = f.GasPrice
	tx.MaxPriorityFee = f.MaxPriorityFee
	tx.MaxFee = f.MaxFee
}
