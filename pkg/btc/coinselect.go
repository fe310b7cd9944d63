package btc

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient BTC funds (including fee)")
	ErrNoUTXOs           = errors.New("no BTC UTXOs available")
	ErrZeroFeeRate       = errors.New("BTC fee rate must be at least 1 sat/vB")
)

// SpendPlan is the outcome of coin selection.
type SpendPlan struct {
	Inputs  []UTXO
	Outputs []TxOut
	Fee     uint64
	FeeRate uint64
}

// Change returns the change output value, or 0 when the plan has none.
func (p *SpendPlan) Change() uint64 {
	if len(p.Outputs) < 2 {
		return 0
	}
	return p.Outputs[1].Value
}

// SelectCoins is first-fit over UTXOs sorted ascending by value. After each
// added input it checks whether amount plus the no-change fee is covered; if
// the with-change fee is also covered and the change is at least MinChange,
// a change output paying changeScript is added, otherwise the surplus goes
// to fee and Fee reports it. The result is not fee-optimal. feeRate is in
// sat/vB and must be positive.
func SelectCoins(utxos []UTXO, amount uint64, toScript, changeScript []byte, feeRate uint64) (*SpendPlan, error) {
	if len(utxos) == 0 {
		return nil, ErrNoUTXOs
	}
	if amount == 0 {
		return nil, fmt.Errorf("amount must be > 0")
	}
	if feeRate == 0 {
		return nil, ErrZeroFeeRate
	}

	sorted := make([]UTXO, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value < sorted[j].Value
	})

	pay := TxOut{Value: amount, ScriptPubKey: toScript}
	oneOut := []TxOut{pay}
	twoOut := []TxOut{pay, {ScriptPubKey: changeScript}}

	var total uint64
	for i, u := range sorted {
		if total > math.MaxUint64-u.Value {
			return nil, fmt.Errorf("BTC input sum overflow")
		}
		total += u.Value
		n := i + 1

		feeNoChange := EstimateVBytes(n, oneOut) * feeRate
		if amount > math.MaxUint64-feeNoChange {
			return nil, fmt.Errorf("BTC amount overflow")
		}
		if total < amount+feeNoChange {
			continue
		}

		inputs := sorted[:n:n]
		feeWithChange := EstimateVBytes(n, twoOut) * feeRate
		if total >= amount+feeWithChange {
			if change := total - amount - feeWithChange; change >= MinChange {
				return &SpendPlan{
					Inputs:  inputs,
					Outputs: []TxOut{pay, {Value: change, ScriptPubKey: changeScript}},
					Fee:     feeWithChange,
					FeeRate: feeRate,
				}, nil
			}
		}
		return &SpendPlan{
			Inputs:  inputs,
			Outputs: oneOut,
			Fee:     total - amount,
			FeeRate: feeRate,
		}, nil
	}
	return nil, fmt.Errorf("%w: have %d, need more than %d", ErrInsufficientFunds, total, amount)
}
