package solana

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Header counts signers and read-only accounts in AccountKeys.
type Header struct {
	NumRequiredSignatures       byte
	NumReadonlySignedAccounts   byte
	NumReadonlyUnsignedAccounts byte
}

// Instruction references accounts by index into AccountKeys.
type Instruction struct {
	ProgramIDIndex byte
	Accounts       []byte
	Data           []byte
}

// Message is a legacy (unversioned) transaction message.
type Message struct {
	Header          Header
	AccountKeys     []PublicKey
	RecentBlockhash PublicKey
	Instructions    []Instruction
}

// Serialize encodes the message wire format that is signed.
func (m *Message) Serialize() []byte {
	buf := make([]byte, 0, 3+1+32*len(m.AccountKeys)+32+64)
	buf = append(buf, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)
	buf = AppendShortvec(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = AppendShortvec(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = AppendShortvec(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = AppendShortvec(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// ParseMessage decodes a serialized legacy message.
func ParseMessage(b []byte) (*Message, error) {
	r := &reader{buf: b}
	m := &Message{}
	hdr := r.next(3)
	if r.err != nil {
		return nil, r.err
	}
	m.Header = Header{hdr[0], hdr[1], hdr[2]}
	if hdr[0]&0x80 != 0 {
		return nil, fmt.Errorf("solana: versioned messages are not supported")
	}
	n := r.shortvec()
	for i := 0; i < n && r.err == nil; i++ {
		var k PublicKey
		copy(k[:], r.next(32))
		m.AccountKeys = append(m.AccountKeys, k)
	}
	copy(m.RecentBlockhash[:], r.next(32))
	n = r.shortvec()
	for i := 0; i < n && r.err == nil; i++ {
		var ix Instruction
		ix.ProgramIDIndex = r.next(1)[0]
		ix.Accounts = append([]byte{}, r.next(r.shortvec())...)
		ix.Data = append([]byte{}, r.next(r.shortvec())...)
		m.Instructions = append(m.Instructions, ix)
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("solana: %d trailing message bytes", len(r.buf))
	}
	return m, nil
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("solana: message truncated")
		return make([]byte, n)
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) shortvec() int {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeShortvec(r.buf)
	if err != nil {
		r.err = err
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// SystemTransferData is u32 LE 2 || u64 LE lamports.
func SystemTransferData(lamports uint64) []byte {
	data := binary.LittleEndian.AppendUint32(make([]byte, 0, 12), 2)
	return binary.LittleEndian.AppendUint64(data, lamports)
}

// TransferCheckedData is u8 12 || u64 LE amount || u8 decimals.
func TransferCheckedData(amount uint64, decimals byte) []byte {
	data := binary.LittleEndian.AppendUint64([]byte{12}, amount)
	return append(data, decimals)
}

// AccountMeta is a candidate account key with its access flags.
type AccountMeta struct {
	Key      PublicKey
	Signer   bool
	Writable bool
}

func (m AccountMeta) class() int {
	switch {
	case m.Signer && m.Writable:
		return 0
	case m.Signer:
		return 1
	case m.Writable:
		return 2
	}
	return 3
}

// Compile builds a message whose instructions index into metas. A key
// listed more than once is merged into its first position with the union
// of its flags, then keys are ordered writable signers, read-only signers,
// writable, read-only. metas[0] is the fee payer.
func Compile(blockhash PublicKey, metas []AccountMeta, ixs []Instruction) (*Message, error) {
	var uniq []AccountMeta
	slot := make([]int, len(metas))
	seen := make(map[PublicKey]int, len(metas))
	for i, m := range metas {
		if j, ok := seen[m.Key]; ok {
			uniq[j].Signer = uniq[j].Signer || m.Signer
			uniq[j].Writable = uniq[j].Writable || m.Writable
			slot[i] = j
			continue
		}
		seen[m.Key] = len(uniq)
		slot[i] = len(uniq)
		uniq = append(uniq, m)
	}
	if len(uniq) > 256 {
		return nil, fmt.Errorf("solana: %d account keys, max 256", len(uniq))
	}
	order := make([]int, len(uniq))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return uniq[order[a]].class() < uniq[order[b]].class() })
	final := make([]byte, len(uniq))
	msg := &Message{RecentBlockhash: blockhash, AccountKeys: make([]PublicKey, len(uniq))}
	for pos, u := range order {
		final[u] = byte(pos)
		msg.AccountKeys[pos] = uniq[u].Key
		switch uniq[u].class() {
		case 0:
			msg.Header.NumRequiredSignatures++
		case 1:
			msg.Header.NumRequiredSignatures++
			msg.Header.NumReadonlySignedAccounts++
		case 3:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}
	if len(metas) > 0 && final[slot[0]] != 0 {
		return nil, fmt.Errorf("solana: fee payer must be a writable signer")
	}
	for _, ix := range ixs {
		if int(ix.ProgramIDIndex) >= len(metas) {
			return nil, fmt.Errorf("solana: program index %d out of range", ix.ProgramIDIndex)
		}
		out := Instruction{ProgramIDIndex: final[slot[ix.ProgramIDIndex]], Data: ix.Data}
		for _, a := range ix.Accounts {
			if int(a) >= len(metas) {
				return nil, fmt.Errorf("solana: account index %d out of range", a)
			}
			out.Accounts = append(out.Accounts, final[slot[a]])
		}
		msg.Instructions = append(msg.Instructions, out)
	}
	return msg, nil
}

func mustCompile(blockhash PublicKey, metas []AccountMeta, ixs []Instruction) *Message {
	msg, err := Compile(blockhash, metas, ixs)
	if err != nil {
		panic(err)
	}
	return msg
}

// NewSystemTransfer builds a one-instruction SOL transfer from a fee-paying
// sender. Keys: [from, to, system], or [from, system] when to is from.
func NewSystemTransfer(from, to, blockhash PublicKey, lamports uint64) *Message {
	return mustCompile(blockhash, []AccountMeta{
		{Key: from, Signer: true, Writable: true},
		{Key: to, Writable: true},
		{Key: SystemProgramID},
	}, []Instruction{{
		ProgramIDIndex: 2,
		Accounts:       []byte{0, 1},
		Data:           SystemTransferData(lamports),
	}})
}

// TokenTransfer describes an SPL TransferChecked from the owner's token
// account. When CreateDestination is set, an associated-token-account
// create instruction funded by the owner precedes the transfer.
type TokenTransfer struct {
	Owner             PublicKey
	Source            PublicKey
	Destination       PublicKey
	DestinationOwner  PublicKey
	Mint              PublicKey
	Blockhash         PublicKey
	Amount            uint64
	Decimals          byte
	CreateDestination bool
}

// NewTokenTransfer compiles t into a legacy message.
//
// Without create, keys are [owner, src, dst, mint, token] and TransferChecked
// takes accounts [1,3,2,0]. With create, keys are [owner, src, dst, mint,
// destOwner, system, token, ata]; the create instruction (data [1], the
// idempotent variant) takes [0,2,4,3,5,6]. Repeated keys, as in a transfer
// to the sender's own token account, are merged.
func NewTokenTransfer(t TokenTransfer) *Message {
	metas := []AccountMeta{
		{Key: t.Owner, Signer: true, Writable: true},
		{Key: t.Source, Writable: true},
		{Key: t.Destination, Writable: true},
		{Key: t.Mint},
	}
	transfer := Instruction{
		ProgramIDIndex: 4,
		Accounts:       []byte{1, 3, 2, 0},
		Data:           TransferCheckedData(t.Amount, t.Decimals),
	}
	if !t.CreateDestination {
		metas = append(metas, AccountMeta{Key: TokenProgramID})
		return mustCompile(t.Blockhash, metas, []Instruction{transfer})
	}
	metas = append(metas,
		AccountMeta{Key: t.DestinationOwner},
		AccountMeta{Key: SystemProgramID},
		AccountMeta{Key: TokenProgramID},
		AccountMeta{Key: AssociatedTokenProgramID},
	)
	transfer.ProgramIDIndex = 6
	create := Instruction{
		ProgramIDIndex: 7,
		Accounts:       []byte{0, 2, 4, 3, 5, 6},
		Data:           []byte{1},
	}
	return mustCompile(t.Blockhash, metas, []Instruction{create, transfer})
}

// EncodeTransaction prefixes message with the signature list.
func EncodeTransaction(message []byte, signatures ...[]byte) ([]byte, error) {
	out := AppendShortvec(nil, len(signatures))
	for _, sig := range signatures {
		if len(sig) != 64 {
			return nil, fmt.Errorf("unexpected ed25519 signature length: %d", len(sig))
		}
		out = append(out, sig...)
	}
	return append(out, message...), nil
}
