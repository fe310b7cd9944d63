// wallet-cli is a command-line client for interacting with a walletd daemon.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpc"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// callTimeout bounds one RPC round trip; transfers wait on several
// upstream calls inside the daemon.
const callTimeout = 5 * time.Minute

// client wraps the JSON-RPC client with a per-call timeout.
type client struct {
	rpc *rpcclient.Client
}

func (c *client) Call(method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.rpc.Call(ctx, method, params, result)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := "http://127.0.0.1:8765"
	dataDir := config.DefaultDataDir()
	network := "mainnet"
	caller := ""
	token := os.Getenv("WALLET_RPC_TOKEN")

	// Scan for global flags before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--caller" && len(args) > 1:
			caller = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--caller="):
			caller = args[0][len("--caller="):]
			args = args[1:]
		case args[0] == "--token" && len(args) > 1:
			token = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--token="):
			token = args[0][len("--token="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	opts := []rpcclient.Option{rpcclient.WithLabel("walletd"), rpcclient.WithID(1)}
	if caller != "" {
		opts = append(opts, rpcclient.WithHeader(rpc.CallerHeader, caller))
	}
	if token != "" {
		opts = append(opts, rpcclient.WithHeader("Authorization", "Bearer "+token))
	}
	c := &client{rpc: rpcclient.New(rpcURL, transport.NewHTTP(callTimeout, 0), opts...)}
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "info":
		cmdInfo(c)
	case "networks":
		cmdNetworks(c)
	case "supported":
		cmdSupported(c)
	case "address":
		cmdAddress(c, cmdArgs)
	case "balance":
		cmdBalance(c, cmdArgs)
	case "transfer":
		cmdTransfer(c, cmdArgs)
	case "token":
		cmdToken(c, cmdArgs)
	case "rpc":
		cmdRPC(c, cmdArgs)
	case "explorer":
		cmdExplorer(c, cmdArgs)
	case "admin":
		cmdAdmin(c, cmdArgs)
	case "keystore":
		cmdKeystore(cmdArgs, dataDir, network)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: wallet-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         walletd endpoint (default: http://127.0.0.1:8765)
  --caller <id>       Caller identity sent as %s (default: the token's caller)
  --token <secret>    Bearer token for the caller (default: $WALLET_RPC_TOKEN)
  --datadir <path>    Data directory (default: ~/.klingnet-wallet)
  --network <net>     mainnet (default) or testnet, for keystore commands

Commands:
  info                            Show service info for the caller
  networks                        List catalog networks
  supported                       Show per-network balance/transfer readiness
  address --network <n> [--index <i>] [--tag <t>]
                                  Show the caller's managed address
  balance --network <n> --account <a> [--token <t>]
                                  Show an account balance
  transfer --network <n> --to <addr> --amount <amt> [--token <t>]
           [--from <a>] [--memo <m>] [--nonce <n>] [--meta k=v ...]
           [--index <i>] [--tag <t>]
                                  Sign and broadcast a transfer

  token list --network <n>        List tokens
  token add --network <n> --address <a>
                                  Discover and store a custom token
  token remove --network <n> --address <a>
                                  Hide a token

  rpc list                        List effective chain RPC endpoints
  rpc set --network <n> --url <u> Override a chain RPC endpoint
  rpc remove --network <n>        Drop an endpoint override

  explorer <network>              Show block explorer URL templates

  admin pause | unpause           Pause or resume wallet operations
  admin rotate-owner --new-owner <id>
                                  Hand ownership over (or claim it)
  admin snapshot [--out <file>]   Export admin state
  admin restore --in <file>       Replace admin state

  keystore create [--mnemonic-file <f>]
                                  Create the encrypted signer keystore
`, rpc.CallerHeader)
}

// ── queries ─────────────────────────────────────────────────────────────

func cmdInfo(c *client) {
	var info wallet.ServiceInfo
	if err := c.Call("service_info", nil, &info); err != nil {
		fatal("service_info: %v", err)
	}
	fmt.Printf("Version: %s\n", info.Version)
	fmt.Printf("Caller:  %s\n", info.Caller)
	owner := info.Owner
	if owner == "" {
		owner = "(none)"
	}
	fmt.Printf("Owner:   %s\n", owner)
	fmt.Printf("Paused:  %v\n", info.Paused)
}

func cmdNetworks(c *client) {
	var nets []wallet.NetworkInfo
	if err := c.Call("wallet_networks", nil, &nets); err != nil {
		fatal("wallet_networks: %v", err)
	}
	fmt.Printf("%-18s %-8s %-8s %-6s %s\n", "NETWORK", "SYMBOL", "FAMILY", "SEND", "RPC")
	for _, n := range nets {
		fmt.Printf("%-18s %-8s %-8s %-6v %s\n", n.ID, n.PrimarySymbol, n.AddressFamily, n.SupportsSend, n.DefaultRPCURL)
	}
}

func cmdSupported(c *client) {
	var status []wallet.NetworkStatus
	if err := c.Call("supported_networks", nil, &status); err != nil {
		fatal("supported_networks: %v", err)
	}
	for _, s := range status {
		line := fmt.Sprintf("%-18s balance=%-5v transfer=%-5v", s.Network, s.BalanceReady, s.TransferReady)
		if s.Note != "" {
			line += "  " + s.Note
		}
		fmt.Println(line)
	}
}

func cmdAddress(c *client, args []string) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	network := fs.String("network", "", "Network id or alias")
	index := fs.Int64("index", -1, "Address index")
	tag := fs.String("tag", "", "Account tag")
	fs.Parse(args)
	if *network == "" {
		fatal("Usage: wallet-cli address --network <n> [--index <i>] [--tag <t>]")
	}

	p := rpc.AddressParam{Network: *network}
	p.AccountTag = *tag
	p.Index = indexPtr(*index)

	var resp wallet.AddressResponse
	if err := c.Call("wallet_requestAddress", p, &resp); err != nil {
		fatal("wallet_requestAddress: %v", err)
	}
	fmt.Printf("Network:    %s\n", resp.Network)
	fmt.Printf("Address:    %s\n", resp.Address)
	fmt.Printf("Public key: %s\n", resp.PublicKeyHex)
	fmt.Printf("Key:        %s (index %d)\n", resp.KeyName, resp.Index)
	if resp.Message != "" {
		fmt.Printf("Note:       %s\n", resp.Message)
	}
}

func cmdBalance(c *client, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	network := fs.String("network", "", "Network id or alias")
	account := fs.String("account", "", "Account address")
	token := fs.String("token", "", "Token address (omit for the native asset)")
	fs.Parse(args)
	if *network == "" || *account == "" {
		fatal("Usage: wallet-cli balance --network <n> --account <a> [--token <t>]")
	}

	p := rpc.BalanceParam{Network: *network}
	p.Account = *account
	p.Token = *token

	var resp wallet.BalanceResponse
	if err := c.Call("wallet_getBalance", p, &resp); err != nil {
		fatal("wallet_getBalance: %v", err)
	}
	asset := "native"
	if resp.Token != "" {
		asset = resp.Token
	}
	fmt.Printf("Account: %s\n", resp.Account)
	fmt.Printf("Asset:   %s\n", asset)
	fmt.Printf("Amount:  %s (decimals %d)\n", resp.Amount, resp.Decimals)
	if resp.Pending {
		fmt.Println("Pending: yes")
	}
	if resp.BlockRef != "" {
		fmt.Printf("Block:   %s\n", resp.BlockRef)
	}
}

// metaFlags collects repeated --meta key=value flags.
type metaFlags []wallet.MetadataEntry

func (m *metaFlags) String() string { return fmt.Sprint(*m) }

func (m *metaFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("metadata must be key=value")
	}
	*m = append(*m, wallet.MetadataEntry{Key: strings.TrimSpace(k), Value: val})
	return nil
}

func cmdTransfer(c *client, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	network := fs.String("network", "", "Network id or alias")
	to := fs.String("to", "", "Recipient address")
	amount := fs.String("amount", "", "Amount in display units")
	token := fs.String("token", "", "Token address (omit for the native asset)")
	from := fs.String("from", "", "Expected managed sender address")
	memo := fs.String("memo", "", "Memo / comment")
	nonce := fs.String("nonce", "", "Nonce override")
	index := fs.Int64("index", -1, "Address index")
	tag := fs.String("tag", "", "Account tag")
	var meta metaFlags
	fs.Var(&meta, "meta", "Chain-specific option key=value (repeatable)")
	fs.Parse(args)
	if *network == "" || *to == "" || *amount == "" {
		fatal("Usage: wallet-cli transfer --network <n> --to <addr> --amount <amt> [flags]")
	}

	p := rpc.TransferParam{Network: *network}
	p.To = *to
	p.Amount = *amount
	p.Token = *token
	p.From = *from
	p.Memo = *memo
	p.Nonce = *nonce
	p.Metadata = meta
	p.AccountTag = *tag
	p.Index = indexPtr(*index)

	var resp wallet.TransferResponse
	if err := c.Call("wallet_transfer", p, &resp); err != nil {
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeBroadcastUnknown {
			var data rpc.BroadcastUnknownData
			_ = json.Unmarshal(rpcErr.Data, &data)
			fmt.Fprintf(os.Stderr, "Broadcast outcome unknown: %s\n", rpcErr.Message)
			fmt.Fprintf(os.Stderr, "  Tx ID:     %s\n", data.TxID)
			fmt.Fprintf(os.Stderr, "  Signed tx: %s\n", data.SignedTx)
			fmt.Fprintln(os.Stderr, "Check the chain for this transaction before retrying.")
			os.Exit(2)
		}
		fatal("wallet_transfer: %v", err)
	}
	fmt.Printf("Accepted: %v\n", resp.Accepted)
	fmt.Printf("Tx ID:    %s\n", resp.TxID)
	if resp.Message != "" {
		fmt.Printf("Message:  %s\n", resp.Message)
	}
}

func indexPtr(v int64) *uint32 {
	if v < 0 {
		return nil
	}
	if v > int64(^uint32(0)) {
		fatal("index must fit in 32 bits")
	}
	i := uint32(v)
	return &i
}

// ── token ───────────────────────────────────────────────────────────────

func cmdToken(c *client, args []string) {
	if len(args) < 1 {
		fatal("Usage: wallet-cli token <list|add|remove> [flags]")
	}
	fs := flag.NewFlagSet("token "+args[0], flag.ExitOnError)
	network := fs.String("network", "", "Network id or alias")
	address := fs.String("address", "", "Token address")
	fs.Parse(args[1:])
	if *network == "" {
		fatal("--network is required")
	}

	switch args[0] {
	case "list":
		var tokens []config.Token
		if err := c.Call("token_list", rpc.NetworkParam{Network: *network}, &tokens); err != nil {
			fatal("token_list: %v", err)
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens.")
			return
		}
		for _, t := range tokens {
			fmt.Printf("%-8s %-3d %s  %s\n", t.Symbol, t.Decimals, t.Address, t.Name)
		}
	case "add":
		if *address == "" {
			fatal("--address is required")
		}
		var tok json.RawMessage
		if err := c.Call("token_add", rpc.TokenParam{Network: *network, Address: *address}, &tok); err != nil {
			fatal("token_add: %v", err)
		}
		printJSON(tok)
	case "remove":
		if *address == "" {
			fatal("--address is required")
		}
		var res rpc.RemovedResult
		if err := c.Call("token_remove", rpc.TokenParam{Network: *network, Address: *address}, &res); err != nil {
			fatal("token_remove: %v", err)
		}
		fmt.Printf("Removed: %v\n", res.Removed)
	default:
		fatal("Unknown token command: %s", args[0])
	}
}

// ── rpc ─────────────────────────────────────────────────────────────────

func cmdRPC(c *client, args []string) {
	if len(args) < 1 {
		fatal("Usage: wallet-cli rpc <list|set|remove> [flags]")
	}
	fs := flag.NewFlagSet("rpc "+args[0], flag.ExitOnError)
	network := fs.String("network", "", "Network id or alias")
	url := fs.String("url", "", "RPC URL")
	fs.Parse(args[1:])

	switch args[0] {
	case "list":
		var entries []wallet.RPCEntry
		if err := c.Call("rpc_list", nil, &entries); err != nil {
			fatal("rpc_list: %v", err)
		}
		for _, e := range entries {
			fmt.Printf("%-18s %s\n", e.Network, e.RPCURL)
		}
	case "set":
		if *network == "" || *url == "" {
			fatal("Usage: wallet-cli rpc set --network <n> --url <u>")
		}
		var e wallet.RPCEntry
		if err := c.Call("rpc_set", rpc.RPCSetParam{Network: *network, RPCURL: *url}, &e); err != nil {
			fatal("rpc_set: %v", err)
		}
		fmt.Printf("%s -> %s\n", e.Network, e.RPCURL)
	case "remove":
		if *network == "" {
			fatal("Usage: wallet-cli rpc remove --network <n>")
		}
		var res rpc.RemovedResult
		if err := c.Call("rpc_remove", rpc.NetworkParam{Network: *network}, &res); err != nil {
			fatal("rpc_remove: %v", err)
		}
		fmt.Printf("Removed: %v\n", res.Removed)
	default:
		fatal("Unknown rpc command: %s", args[0])
	}
}

func cmdExplorer(c *client, args []string) {
	if len(args) < 1 {
		fatal("Usage: wallet-cli explorer <network>")
	}
	var e config.Explorer
	if err := c.Call("explorer_get", rpc.NetworkParam{Network: args[0]}, &e); err != nil {
		fatal("explorer_get: %v", err)
	}
	fmt.Printf("Address: %s\n", e.AddressURL)
	if e.TokenURL != "" {
		fmt.Printf("Token:   %s\n", e.TokenURL)
	}
}

// ── admin ───────────────────────────────────────────────────────────────

func cmdAdmin(c *client, args []string) {
	if len(args) < 1 {
		fatal("Usage: wallet-cli admin <pause|unpause|rotate-owner|snapshot|restore> [flags]")
	}
	fs := flag.NewFlagSet("admin "+args[0], flag.ExitOnError)
	newOwner := fs.String("new-owner", "", "New owner identity")
	out := fs.String("out", "", "Write the snapshot to a file")
	in := fs.String("in", "", "Snapshot file to restore")
	fs.Parse(args[1:])

	switch args[0] {
	case "pause", "unpause":
		var res rpc.PauseResult
		if err := c.Call("admin_"+args[0], nil, &res); err != nil {
			fatal("admin_%s: %v", args[0], err)
		}
		fmt.Printf("Paused: %v\n", res.Paused)
	case "rotate-owner":
		if *newOwner == "" {
			fatal("Usage: wallet-cli admin rotate-owner --new-owner <id>")
		}
		var res rpc.RotateOwnerResult
		if err := c.Call("admin_rotateOwner", rpc.RotateOwnerParam{NewOwner: *newOwner}, &res); err != nil {
			fatal("admin_rotateOwner: %v", err)
		}
		fmt.Printf("Owner:    %s\n", res.Owner)
		if res.PreviousOwner != "" {
			fmt.Printf("Previous: %s\n", res.PreviousOwner)
		}
	case "snapshot":
		var snap json.RawMessage
		if err := c.Call("admin_snapshot", nil, &snap); err != nil {
			fatal("admin_snapshot: %v", err)
		}
		if *out == "" {
			printJSON(snap)
			return
		}
		if err := os.WriteFile(*out, snap, 0600); err != nil {
			fatal("write snapshot: %v", err)
		}
		fmt.Printf("Snapshot written to %s\n", *out)
	case "restore":
		if *in == "" {
			fatal("Usage: wallet-cli admin restore --in <file>")
		}
		data, err := os.ReadFile(*in)
		if err != nil {
			fatal("read snapshot: %v", err)
		}
		var snap state.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			fatal("parse snapshot: %v", err)
		}
		var res rpc.RestoreResult
		if err := c.Call("admin_restore", rpc.RestoreParam{Snapshot: &snap}, &res); err != nil {
			fatal("admin_restore: %v", err)
		}
		fmt.Printf("Restored: %v\n", res.Restored)
	default:
		fatal("Unknown admin command: %s", args[0])
	}
}

// ── keystore ────────────────────────────────────────────────────────────

func cmdKeystore(args []string, dataDir, network string) {
	if len(args) < 1 || args[0] != "create" {
		fatal("Usage: wallet-cli keystore create [--mnemonic-file <f>]")
	}
	fs := flag.NewFlagSet("keystore create", flag.ExitOnError)
	mnemonicFile := fs.String("mnemonic-file", "", "Import this mnemonic instead of generating one")
	fs.Parse(args[1:])

	cfg := config.Default(config.NetworkType(network))
	cfg.DataDir = dataDir
	path := cfg.KeystorePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fatal("create keystore dir: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		fatal("keystore already exists: %s", path)
	}

	var mnemonic string
	generated := *mnemonicFile == ""
	if generated {
		m, err := signer.GenerateMnemonic()
		if err != nil {
			fatal("%v", err)
		}
		mnemonic = m
	} else {
		m, err := signer.ReadMnemonicFile(*mnemonicFile)
		if err != nil {
			fatal("%v", err)
		}
		mnemonic = m
	}

	password, err := readPassword("Keystore password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if !bytes.Equal(password, confirm) {
		fatal("passwords do not match")
	}
	if len(password) == 0 {
		fatal("password must not be empty")
	}

	if err := signer.CreateKeystore(path, mnemonic, password, signer.DefaultSealParams()); err != nil {
		fatal("%v", err)
	}
	clear(password)
	clear(confirm)

	fmt.Printf("Keystore written to %s\n", path)
	if generated {
		fmt.Println("\nRecovery mnemonic (write it down, it is not shown again):")
		fmt.Printf("  %s\n", mnemonic)
	}
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Output helpers ──────────────────────────────────────────────────────

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
