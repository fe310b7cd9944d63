package wallet

import (
	"errors"
	"math/big"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/pkg/units"
)

// RequireTo returns the trimmed destination.
func RequireTo(req *TransferRequest) (string, error) {
	to := strings.TrimSpace(req.To)
	if to == "" {
		return "", InvalidInput("to is required")
	}
	return to, nil
}

// RequireAccount returns the trimmed balance account.
func RequireAccount(req *BalanceRequest) (string, error) {
	a := strings.TrimSpace(req.Account)
	if a == "" {
		return "", InvalidInput("account is required")
	}
	return a, nil
}

// ParseAmount converts req.Amount to minor units and rejects zero.
func ParseAmount(req *TransferRequest, decimals int) (*big.Int, error) {
	if strings.TrimSpace(req.Amount) == "" {
		return nil, InvalidInput("amount is required")
	}
	v, err := units.Parse(req.Amount, decimals)
	if err != nil {
		return nil, AmountError(err)
	}
	if v.Sign() == 0 {
		return nil, InvalidInput("amount must be > 0")
	}
	return v, nil
}

// ParseAmountUint64 is ParseAmount for chains with 64-bit amounts.
func ParseAmountUint64(req *TransferRequest, decimals int) (uint64, error) {
	v, err := ParseAmount(req, decimals)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, InvalidInput("amount is too large")
	}
	return v.Uint64(), nil
}

// AmountError classifies a units parse failure as InvalidInput.
func AmountError(err error) error {
	var ae *units.AmountError
	if errors.As(err, &ae) {
		return InvalidInput("%s", ae.Msg)
	}
	return InvalidInput("invalid amount: %v", err)
}

// CheckFrom rejects a non-empty from that differs from the managed address
// after normalize. A nil normalize compares trimmed text.
func CheckFrom(from, managed, chain string, normalize func(string) (string, error)) error {
	f := strings.TrimSpace(from)
	if f == "" {
		return nil
	}
	if normalize != nil {
		n, err := normalize(f)
		if err != nil {
			return InvalidInput("invalid from address: %v", err)
		}
		f = n
	}
	if f != managed {
		return InvalidInput("from does not match managed %s address", chain)
	}
	return nil
}

// RejectToken fails when a native-only operation receives a token.
func RejectToken(token, operation string) error {
	if strings.TrimSpace(token) != "" {
		return InvalidInput("%s does not accept token parameter", operation)
	}
	return nil
}
