// Package chainutil holds the plumbing shared by chain adapters: key
// lookup through the signing oracle, upstream response decoding and the
// classification of broadcast failures.
package chainutil

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transport"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// PublicKey fetches the key for acct and checks its length.
func PublicKey(ctx context.Context, o signer.Oracle, acct wallet.Account, algo signer.Algorithm, size int) (*signer.PublicKey, error) {
	pk, err := o.PublicKey(ctx, acct.Path, algo)
	if err != nil {
		return nil, wallet.Internal("%s public key failed: %v", algo, err)
	}
	if len(pk.Key) != size {
		return nil, wallet.Internal("unexpected %s public key length: %d", algo, len(pk.Key))
	}
	return pk, nil
}

// Sign asks the oracle for a signature and checks its length.
func Sign(ctx context.Context, o signer.Oracle, req signer.SignRequest) ([]byte, error) {
	sig, err := o.Sign(ctx, req)
	if err != nil {
		return nil, wallet.Internal("sign with %s failed: %v", req.Algorithm, err)
	}
	if len(sig) != signer.SignatureSize {
		return nil, wallet.Internal("unexpected %s signature length: %d", req.Algorithm, len(sig))
	}
	return sig, nil
}

// Get issues a GET and decodes a 2xx JSON body into v. Any failure is
// Internal, labelled e.g. "btc rpc".
func Get(ctx context.Context, d transport.Doer, label, url string, maxBytes int64, v any) error {
	resp, err := transport.GetJSON(ctx, d, url, maxBytes)
	if err != nil {
		return wallet.Internal("%s request failed: %v", label, err)
	}
	return Decode(label, resp, v)
}

// Post issues a JSON POST and decodes a 2xx JSON body into v.
func Post(ctx context.Context, d transport.Doer, label, url string, body any, maxBytes int64, v any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return wallet.Internal("%s encode request failed: %v", label, err)
	}
	resp, err := transport.PostJSON(ctx, d, url, raw, maxBytes)
	if err != nil {
		return wallet.Internal("%s request failed: %v", label, err)
	}
	return Decode(label, resp, v)
}

// Decode checks the status of resp and unmarshals its body into v.
func Decode(label string, resp *transport.Response, v any) error {
	if !resp.OK() {
		return wallet.Internal("%s", transport.NewStatusError(label, resp, transport.SnippetLen).Error())
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return wallet.Internal("%s parse response failed: %v", label, err)
	}
	return nil
}

// Upstream classifies a failed read-only JSON-RPC call as Internal.
func Upstream(label, method string, err error) error {
	return wallet.Wrap(err, "%s %s failed", label, method)
}

// BroadcastFailure classifies a failed broadcast of a signed transaction.
// Rejections by the node are Internal; everything else leaves the outcome
// unknown.
func BroadcastFailure(network, txID, signedTx string, err error) error {
	if rpcclient.IsRejection(err) {
		return wallet.Wrap(err, "%s broadcast rejected", network)
	}
	return wallet.BroadcastUnknown(network, txID, signedTx, err)
}

// TrimSlash strips trailing slashes from a base URL.
func TrimSlash(u string) string { return strings.TrimRight(strings.TrimSpace(u), "/") }

// Accepted builds the response for a broadcast transaction.
func Accepted(network, txID, signedTx, message string) *wallet.TransferResponse {
	return &wallet.TransferResponse{
		Network:  network,
		Accepted: true,
		TxID:     txID,
		SignedTx: signedTx,
		Message:  message,
	}
}
