package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// walletError maps a wallet error onto a JSON-RPC error.
func walletError(err error) *Error {
	var we *wallet.Error
	if !errors.As(err, &we) {
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
	e := &Error{Message: we.Error()}
	switch we.Kind {
	case wallet.KindInvalidInput:
		e.Code = CodeInvalidParams
	case wallet.KindForbidden:
		e.Code = CodeForbidden
	case wallet.KindPaused:
		e.Code = CodePaused
	case wallet.KindUnimplemented:
		e.Code = CodeMethodNotFound
		e.Data = UnimplementedData{Network: we.Network, Operation: we.Operation}
	case wallet.KindBroadcastUnknown:
		e.Code = CodeBroadcastUnknown
		e.Data = BroadcastUnknownData{Network: we.Network, TxID: we.TxID, SignedTx: we.SignedTx}
	default:
		e.Code = CodeInternalError
	}
	return e
}

func (s *Server) handleRequestAddress(c *call) (any, *Error) {
	var p AddressParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	resp, err := s.wallet.RequestAddress(c.ctx, c.caller, p.Network, p.AddressRequest)
	if err != nil {
		return nil, walletError(err)
	}
	return resp, nil
}

func (s *Server) handleGetBalance(c *call) (any, *Error) {
	var p BalanceParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	resp, err := s.wallet.GetBalance(c.ctx, p.Network, p.BalanceRequest)
	if err != nil {
		return nil, walletError(err)
	}
	return resp, nil
}

func (s *Server) handleTransfer(c *call) (any, *Error) {
	var p TransferParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	resp, err := s.wallet.Transfer(c.ctx, c.caller, p.Network, p.TransferRequest)
	if err != nil {
		return nil, walletError(err)
	}
	return resp, nil
}

func (s *Server) handleTokenList(c *call) (any, *Error) {
	var p NetworkParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	return s.wallet.ListTokens(p.Network), nil
}

func (s *Server) handleTokenAdd(c *call) (any, *Error) {
	var p TokenParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	tok, err := s.wallet.AddToken(c.ctx, c.caller, p.Network, p.Address)
	if err != nil {
		return nil, walletError(err)
	}
	return tok, nil
}

func (s *Server) handleTokenRemove(c *call) (any, *Error) {
	var p TokenParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	removed, err := s.wallet.RemoveToken(c.caller, p.Network, p.Address)
	if err != nil {
		return nil, walletError(err)
	}
	return RemovedResult{Removed: removed}, nil
}

func (s *Server) handleRPCSet(c *call) (any, *Error) {
	var p RPCSetParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	entry, err := s.wallet.SetRPC(c.caller, p.Network, p.RPCURL)
	if err != nil {
		return nil, walletError(err)
	}
	return entry, nil
}

func (s *Server) handleRPCRemove(c *call) (any, *Error) {
	var p NetworkParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	removed, err := s.wallet.RemoveRPC(c.caller, p.Network)
	if err != nil {
		return nil, walletError(err)
	}
	return RemovedResult{Removed: removed}, nil
}

func (s *Server) handleExplorerGet(c *call) (any, *Error) {
	var p NetworkParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	e, ok := s.wallet.Explorer(p.Network)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no explorer for network %q", config.NormalizeNetwork(p.Network))}
	}
	return e, nil
}

func (s *Server) handlePause(c *call, paused bool) (any, *Error) {
	var err error
	if paused {
		err = s.wallet.Pause(c.caller)
	} else {
		err = s.wallet.Unpause(c.caller)
	}
	if err != nil {
		return nil, walletError(err)
	}
	return PauseResult{Paused: paused}, nil
}

func (s *Server) handleRotateOwner(c *call) (any, *Error) {
	var p RotateOwnerParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	prev, err := s.wallet.RotateOwner(c.caller, p.NewOwner)
	if err != nil {
		return nil, walletError(err)
	}
	return RotateOwnerResult{Owner: s.wallet.Info(c.caller).Owner, PreviousOwner: prev}, nil
}

func (s *Server) handleSnapshot(c *call) (any, *Error) {
	snap, err := s.wallet.Snapshot(c.caller)
	if err != nil {
		return nil, walletError(err)
	}
	return snap, nil
}

func (s *Server) handleRestore(c *call) (any, *Error) {
	var p RestoreParam
	if err := parseParams(c.req, &p); err != nil {
		return nil, err
	}
	if err := s.wallet.Restore(c.caller, p.Snapshot); err != nil {
		return nil, walletError(err)
	}
	return RestoreResult{Restored: true}, nil
}
