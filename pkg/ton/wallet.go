package ton

import (
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
)

const (
	// BasechainID is the workchain managed wallets live on.
	BasechainID int8 = 0
	// WalletV4R2ID is the default subwallet id of wallet v4r2.
	WalletV4R2ID uint32 = 698983191
	// JettonOpTransfer is the TEP-74 transfer opcode.
	JettonOpTransfer uint32 = 0x0f8a7ea5
	// SendModeDefault pays fees separately and ignores action errors.
	SendModeDefault uint8 = 3
	// Decimals of the native coin.
	Decimals = 9
)

// Compiled wallet v4r2 code cell, representation hash
// feb5ff6820e2ff0d9483e7e0d62c817d846789fb4ae580c878866d959dabd5c0.
const walletV4R2CodeHex = "b5ee9c72010214010002d4000114ff00f4a413f4bcf2c80b010201200203020148040504f8f28308d71820d31fd31fd31f02f823bbf264ed44d0d31fd31fd3fff404d15143baf2a15151baf2a205f901541064f910f2a3f80024a4c8cb1f5240cb1f5230cbff5210f400c9ed54f80f01d30721c0009f6c519320d74a96d307d402fb00e830e021c001e30021c002e30001c0039130e30d03a4c8cb1f12cb1fcbff1011121302e6d001d0d3032171b0925f04e022d749c120925f04e002d31f218210706c7567bd22821064737472bdb0925f05e003fa403020fa4401c8ca07cbffc9d0ed44d0810140d721f404305c810108f40a6fa131b3925f07e005d33fc8258210706c7567ba923830e30d03821064737472ba925f06e30d06070201200809007801fa00f40430f8276f2230500aa121bef2e0508210706c7567831eb17080185004cb0526cf1658fa0219f400cb6917cb1f5260cb3f20c98040fb0006008a5004810108f45930ed44d0810140d720c801cf16f400c9ed540172b08e23821064737472831eb17080185005cb055003cf1623fa0213cb6acb1fcb3fc98040fb00925f03e20201200a0b0059bd242b6f6a2684080a06b90fa0218470d4080847a4937d29910ce6903e9ff9837812801b7810148987159f31840201580c0d0011b8c97ed44d0d70b1f8003db29dfb513420405035c87d010c00b23281f2fff274006040423d029be84c600201200e0f0019adce76a26840206b90eb85ffc00019af1df6a26840106b90eb858fc0006ed207fa00d4d422f90005c8ca0715cbffc9d077748018c8cb05cb0222cf165005fa0214cb6b12ccccc973fb00c84014810108f451f2a7020070810108d718fa00d33fc8542047810108f451f2a782106e6f746570748018c8cb05cb025006cf165004fa0214cb6a12cb1fcb3fc973fb0002006c810108d718fa00d33f305224810108f459f2a782106473747270748018c8cb05cb025005cf165003fa0213cb6acb1f12cb3fc973fb00000af400c9ed54"

var ErrSignatureLength = errors.New("TON wallet signature must be 64 bytes")

var (
	codeOnce sync.Once
	codeCell *Cell
	codeErr  error
)

// WalletV4R2Code returns the parsed wallet v4r2 code cell.
func WalletV4R2Code() (*Cell, error) {
	codeOnce.Do(func() {
		raw, err := hex.DecodeString(walletV4R2CodeHex)
		if err != nil {
			codeErr = err
			return
		}
		codeCell, codeErr = ParseBOC(raw)
	})
	return codeCell, codeErr
}

// WalletV4R2Data is the initial data cell: seqno 0, wallet id, public
// key and an empty plugin dictionary.
func WalletV4R2Data(pub [32]byte, walletID uint32) (*Cell, error) {
	return BeginCell().
		StoreUint32(0).
		StoreUint32(walletID).
		StoreBytes(pub[:]).
		StoreBit(false).
		EndCell()
}

// StateInit builds a StateInit with code and data refs and no library.
func StateInit(code, data *Cell) (*Cell, error) {
	return BeginCell().
		StoreBit(false). // split_depth
		StoreBit(false). // special
		StoreMaybeRef(code).
		StoreMaybeRef(data).
		StoreBit(false). // library
		EndCell()
}

// Wallet is a wallet v4r2 contract owned by an ed25519 key.
type Wallet struct {
	Address   Address
	StateInit *Cell
	WalletID  uint32
}

// NewWalletV4R2 derives the wallet contract for pub on the basechain.
func NewWalletV4R2(pub [32]byte) (*Wallet, error) {
	code, err := WalletV4R2Code()
	if err != nil {
		return nil, err
	}
	data, err := WalletV4R2Data(pub, WalletV4R2ID)
	if err != nil {
		return nil, err
	}
	si, err := StateInit(code, data)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		Address:   Address{Workchain: BasechainID, Hash: si.Hash()},
		StateInit: si,
		WalletID:  WalletV4R2ID,
	}, nil
}

// SigningBody is the unsigned wallet payload carrying one outgoing message.
func (w *Wallet) SigningBody(validUntil, seqno uint32, mode uint8, out *Cell) (*Cell, error) {
	return BeginCell().
		StoreUint32(w.WalletID).
		StoreUint32(validUntil).
		StoreUint32(seqno).
		StoreUint32(0). // simple send
		StoreUint8(mode).
		StoreRef(out).
		EndCell()
}

// SignedBody prefixes the signing body with its signature.
func SignedBody(sig []byte, signing *Cell) (*Cell, error) {
	if len(sig) != 64 {
		return nil, ErrSignatureLength
	}
	return BeginCell().StoreBytes(sig).StoreSlice(signing).EndCell()
}

// ExternalMessage wraps a signed body addressed to the wallet, attaching
// stateInit when the contract is not deployed yet.
func ExternalMessage(dest Address, body, stateInit *Cell) (*Cell, error) {
	b := BeginCell().
		StoreUint(0b10, 2). // ext_in_msg_info
		StoreAddress(nil).
		StoreAddress(&dest).
		StoreCoins(nil) // import_fee
	if stateInit != nil {
		b.StoreBit(true).StoreBit(true).StoreRef(stateInit)
	} else {
		b.StoreBit(false)
	}
	return b.StoreBit(true).StoreRef(body).EndCell()
}

// InternalMessage builds an int_msg_info carrying amount nanotons and an
// optional body ref.
func InternalMessage(dest Address, amount *big.Int, bounce bool, body *Cell) (*Cell, error) {
	b := BeginCell().
		StoreBit(false). // int_msg_info
		StoreBit(true).  // ihr_disabled
		StoreBit(bounce).
		StoreBit(false). // bounced
		StoreAddress(nil).
		StoreAddress(&dest).
		StoreCoins(amount).
		StoreBit(false). // extra currencies
		StoreCoins(nil). // ihr_fee
		StoreCoins(nil). // fwd_fee
		StoreUint64(0).  // created_lt
		StoreUint32(0).  // created_at
		StoreBit(false)  // init
	if body == nil {
		b.StoreBit(false)
	} else {
		b.StoreBit(true).StoreRef(body)
	}
	return b.EndCell()
}

// CommentBody is a text comment: op 0 followed by the UTF-8 text. Text
// that does not fit one cell continues in a chain of refs.
func CommentBody(text string) (*Cell, error) {
	return snake(BeginCell().StoreUint32(0), []byte(text))
}

func snake(b *Builder, rest []byte) (*Cell, error) {
	room := (MaxCellBits - b.bits) / 8
	if len(rest) <= room {
		return b.StoreBytes(rest).EndCell()
	}
	tail, err := snake(BeginCell(), rest[room:])
	if err != nil {
		return nil, err
	}
	return b.StoreBytes(rest[:room]).StoreRef(tail).EndCell()
}

// JettonTransfer describes a TEP-74 transfer body.
type JettonTransfer struct {
	Amount              *big.Int
	Destination         Address
	ResponseDestination Address
	ForwardTonAmount    *big.Int
	Memo                string
}

// Body encodes the transfer; the forward payload is a comment cell when a
// memo is set, otherwise an empty cell.
func (j *JettonTransfer) Body() (*Cell, error) {
	var fwd *Cell
	var err error
	if j.Memo != "" {
		fwd, err = CommentBody(j.Memo)
	} else {
		fwd, err = BeginCell().EndCell()
	}
	if err != nil {
		return nil, err
	}
	return BeginCell().
		StoreUint32(JettonOpTransfer).
		StoreUint64(0). // query_id
		StoreCoins(j.Amount).
		StoreAddress(&j.Destination).
		StoreAddress(&j.ResponseDestination).
		StoreBit(false). // custom_payload
		StoreCoins(j.ForwardTonAmount).
		StoreBit(true).
		StoreRef(fwd).
		EndCell()
}
