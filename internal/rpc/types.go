package rpc

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/state"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Wallet error codes.
const (
	CodeForbidden        = -32001
	CodePaused           = -32002
	CodeBroadcastUnknown = -32003
	CodeUnauthorized     = -32004
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      any    `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// NetworkParam is used by endpoints that take only a network.
type NetworkParam struct {
	Network string `json:"network"`
}

// AddressParam is used by wallet_requestAddress.
type AddressParam struct {
	Network string `json:"network"`
	wallet.AddressRequest
}

// BalanceParam is used by wallet_getBalance.
type BalanceParam struct {
	Network string `json:"network"`
	wallet.BalanceRequest
}

// TransferParam is used by wallet_transfer.
type TransferParam struct {
	Network string `json:"network"`
	wallet.TransferRequest
}

// TokenParam is used by token_add and token_remove.
type TokenParam struct {
	Network string `json:"network"`
	Address string `json:"token_address"`
}

// RPCSetParam is used by rpc_set.
type RPCSetParam struct {
	Network string `json:"network"`
	RPCURL  string `json:"rpc_url"`
}

// RotateOwnerParam is used by admin_rotateOwner.
type RotateOwnerParam struct {
	NewOwner string `json:"new_owner"`
}

// RestoreParam is used by admin_restore.
type RestoreParam struct {
	Snapshot *state.Snapshot `json:"snapshot"`
}

// ── Result types ────────────────────────────────────────────────────────

// RemovedResult reports whether a remove call changed anything.
type RemovedResult struct {
	Removed bool `json:"removed"`
}

// PauseResult is returned by admin_pause and admin_unpause.
type PauseResult struct {
	Paused bool `json:"paused"`
}

// RotateOwnerResult is returned by admin_rotateOwner.
type RotateOwnerResult struct {
	Owner         string `json:"owner"`
	PreviousOwner string `json:"previous_owner,omitempty"`
}

// RestoreResult is returned by admin_restore.
type RestoreResult struct {
	Restored bool `json:"restored"`
}

// BroadcastUnknownData is the error data of CodeBroadcastUnknown.
type BroadcastUnknownData struct {
	Network  string `json:"network,omitempty"`
	TxID     string `json:"tx_id,omitempty"`
	SignedTx string `json:"signed_tx,omitempty"`
}

// UnimplementedData is the error data of CodeMethodNotFound for a
// network operation that is not wired up.
type UnimplementedData struct {
	Network   string `json:"network"`
	Operation string `json:"operation"`
}
