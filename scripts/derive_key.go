// derive_key.go prints the managed address of a caller on every catalog
// network, derived offline from a mnemonic file.
// Usage: go run scripts/derive_key.go <mnemonic-file> [caller]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <mnemonic-file> [caller]")
		os.Exit(1)
	}
	mnemonic, err := signer.ReadMnemonicFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	caller := wallet.Anonymous
	if len(os.Args) > 2 {
		caller = os.Args[2]
	}
	oracle, err := signer.NewLocal(mnemonic, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	reg := chains.NewRegistry(wallet.Deps{Signer: oracle})
	for _, nw := range config.Networks() {
		a, ok := reg.Lookup(nw.ID)
		if !ok {
			continue
		}
		acct, err := wallet.NewAccount(nw.ID, nw.SharedAddressGroup, caller, nil, "")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		resp, err := a.DeriveAddress(context.Background(), acct)
		if err != nil {
			fmt.Printf("%-12s error=%v\n", nw.ID, err)
			continue
		}
		fmt.Printf("%-12s address=%s pubkey=%s\n", nw.ID, resp.Address, resp.PublicKeyHex)
	}
}
