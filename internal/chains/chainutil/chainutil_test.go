package chainutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

func TestBroadcastFailure(t *testing.T) {
	status := func(code int) error {
		return &transport.StatusError{Label: "evm rpc", Status: code, Snippet: "body"}
	}
	tests := []struct {
		name string
		err  error
		kind wallet.Kind
	}{
		{"rpc error", &rpcclient.RPCError{Code: -32000, Message: "nonce too low"}, wallet.KindInternal},
		{"wrapped rpc error", fmt.Errorf("send: %w", &rpcclient.RPCError{Code: -32003}), wallet.KindInternal},
		{"400", status(400), wallet.KindInternal},
		{"422", status(422), wallet.KindInternal},
		{"500", status(500), wallet.KindBroadcastUnknown},
		{"502", status(502), wallet.KindBroadcastUnknown},
		{"503", status(503), wallet.KindBroadcastUnknown},
		{"504", status(504), wallet.KindBroadcastUnknown},
		{"eof", io.ErrUnexpectedEOF, wallet.KindBroadcastUnknown},
		{"deadline", context.DeadlineExceeded, wallet.KindBroadcastUnknown},
		{"decode", fmt.Errorf("%w: result", rpcclient.ErrDecode), wallet.KindBroadcastUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BroadcastFailure("eth", "0xabc", "0xf86b", tt.err)
			if !wallet.IsKind(err, tt.kind) {
				t.Fatalf("BroadcastFailure(%v) = %v, want kind %s", tt.err, err, tt.kind)
			}
			if !errors.Is(err, tt.err) && tt.kind == wallet.KindInternal {
				t.Fatalf("rejection %v does not wrap %v", err, tt.err)
			}
			if tt.kind != wallet.KindBroadcastUnknown {
				return
			}
			var we *wallet.Error
			if !errors.As(err, &we) || we.TxID != "0xabc" || we.SignedTx != "0xf86b" {
				t.Fatalf("unknown outcome lost its payload: %+v", we)
			}
		})
	}
}
