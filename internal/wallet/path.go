package wallet

import (
	"encoding/binary"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/internal/signer"
)

// Anonymous is the caller identity of unauthenticated requests.
const Anonymous = "anonymous"

// MaxAccountTagLen bounds account tags, in bytes of UTF-8.
const MaxAccountTagLen = 64

const pathDomain = "rustwalletforagent"

// Account identifies one managed key: the derivation inputs and the path
// built from them.
type Account struct {
	Network    string
	Caller     string
	Index      uint32
	AccountTag string
	Path       signer.Path
}

// NormalizeAccountTag trims tag and enforces its length bound.
func NormalizeAccountTag(tag string) (string, error) {
	t := strings.TrimSpace(tag)
	if len(t) > MaxAccountTagLen {
		return "", InvalidInput("account_tag is too long (max %d chars)", MaxAccountTagLen)
	}
	return t, nil
}

// NewAccount builds the derivation path
//
//	[domain, "network", group, "caller", caller, "index", u32be(index)]
//
// followed by ["account_tag", tag] when the trimmed tag is non-empty.
// group is the network's shared address group, so networks in one group
// resolve to the same key. index defaults to 0.
func NewAccount(network, group, caller string, index *uint32, tag string) (Account, error) {
	t, err := NormalizeAccountTag(tag)
	if err != nil {
		return Account{}, err
	}
	if caller == "" {
		caller = Anonymous
	}
	var idx uint32
	if index != nil {
		idx = *index
	}
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], idx)

	path := signer.Path{
		[]byte(pathDomain),
		[]byte("network"), []byte(group),
		[]byte("caller"), []byte(caller),
		[]byte("index"), be[:],
	}
	if t != "" {
		path = append(path, []byte("account_tag"), []byte(t))
	}
	return Account{Network: network, Caller: caller, Index: idx, AccountTag: t, Path: path}, nil
}
