// Package node provides the wallet daemon as a reusable component that can
// be embedded in any binary.
package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/chains"
	klog "github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpc"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// statePrefix namespaces admin state inside the state database.
var statePrefix = []byte("wallet/")

// PasswordFunc supplies the keystore password when no password file is set.
type PasswordFunc func() ([]byte, error)

// Node is a fully-initialized wallet daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db      storage.DB
	state   *state.State
	service *wallet.Service

	rpcServer *rpc.Server
}

// New creates and initializes a Node: logger, storage, state, signer,
// transport, adapter registry and RPC server. It does not listen; call
// Start for that. password may be nil.
func New(cfg *config.Config, password PasswordFunc) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "walletd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("version", config.Version).
		Msg("Starting wallet daemon")

	// ── 2. Signing oracle ───────────────────────────────────────────
	oracle, err := loadSigner(cfg, password)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}
	logger.Info().Str("mode", string(cfg.Signer.Mode)).Msg("Signer ready")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.StateDir(), err)
	}
	logger.Info().Str("path", cfg.StateDir()).Msg("Database opened")

	// ── 4. Admin state ──────────────────────────────────────────────
	st, err := state.New(storage.NewPrefixDB(db, statePrefix))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	if err := st.InitOwner(cfg.Owner); err != nil {
		db.Close()
		return nil, fmt.Errorf("init owner: %w", err)
	}
	if err := st.SeedRPCs(cfg.ChainRPC); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed rpc endpoints: %w", err)
	}
	logger.Info().
		Bool("owner_set", st.Owner() != "").
		Bool("paused", st.Paused()).
		Int("rpc_overrides", len(st.RPCs())).
		Msg("State loaded")

	// ── 5. Adapters and service ─────────────────────────────────────
	deps := wallet.Deps{
		Signer:    oracle,
		HTTP:      transport.NewHTTP(cfg.HTTP.Timeout, cfg.HTTP.MaxResponse),
		Endpoints: wallet.StateEndpoints(st),
	}
	svc := wallet.NewService(st, chains.NewRegistry(deps))

	n := &Node{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		state:   st,
		service: svc,
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(rpcAddr, svc, cfg.RPC)
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// Start binds the RPC listener.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start RPC at %s: %w", n.rpcServer.Addr(), err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}
	n.logger.Info().Msg("Wallet daemon started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Service returns the wallet service.
func (n *Node) Service() *wallet.Service {
	return n.service
}

func loadSigner(cfg *config.Config, password PasswordFunc) (signer.Oracle, error) {
	mnemonic, err := loadMnemonic(cfg, password)
	if err != nil {
		return nil, err
	}
	local, err := signer.NewLocal(mnemonic, "", signer.WithKeyNames(cfg.Signer.ECDSAKey, cfg.Signer.SchnorrKey))
	if err != nil {
		return nil, err
	}
	return local, nil
}
