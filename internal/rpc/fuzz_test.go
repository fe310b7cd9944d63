package rpc

import (
	"encoding/json"
	"testing"
)

// FuzzRPCRequestUnmarshal tests that arbitrary JSON does not panic
// when parsed as a JSON-RPC 2.0 request and its params are decoded.
func FuzzRPCRequestUnmarshal(f *testing.F) {
	f.Add([]byte(`{"jsonrpc":"2.0","method":"service_info","params":null,"id":1}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"wallet_transfer","params":{"network":"eth","to":"0x1","amount":"1","metadata":[{"key":"gas_limit","value":"1"}]},"id":"test"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"method":"","params":[]}`))
	f.Add([]byte(`{"jsonrpc":"2.0","method":"wallet_getBalance","params":[1,2,3],"id":999}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		var p TransferParam
		_ = parseParams(&req, &p)
		_ = req.Method
		_ = req.ID
	})
}
