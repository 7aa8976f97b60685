package address

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrInvalidPrefix is returned when an address string lacks the 0x prefix.
	ErrInvalidPrefix = errors.New("address must start with 0x")
	// ErrInvalidLength is returned when encountering an address of invalid length.
	ErrInvalidLength = errors.New("invalid address length")
	// ErrInvalidPayload is returned when an address holds non-hex characters.
	ErrInvalidPayload = errors.New("invalid address payload")
	// ErrInvalidChecksum is returned when a mixed-case address fails EIP-55.
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

const (
	Prefix = "0x"

	// HexLength is the number of hex characters after the prefix.
	HexLength = 2 * common.AddressLength
)

// Zero is the all-zero address, used to denote the native currency.
var Zero = common.Address{}

// Parse validates s by prefix, length and character set before turning it
// into a chain address. Mixed-case input must carry a valid EIP-55 checksum.
func Parse(s string) (common.Address, error) {
	if !strings.HasPrefix(s, Prefix) && !strings.HasPrefix(s, "0X") {
		return common.Address{}, ErrInvalidPrefix
	}

	raw := s[len(Prefix):]
	if len(raw) != HexLength {
		return common.Address{}, ErrInvalidLength
	}

	if _, err := hex.DecodeString(raw); err != nil {
		return common.Address{}, ErrInvalidPayload
	}

	addr := common.HexToAddress(raw)
	if raw != strings.ToLower(raw) && raw != strings.ToUpper(raw) {
		if addr.Hex()[len(Prefix):] != raw {
			return common.Address{}, ErrInvalidChecksum
		}
	}

	return addr, nil
}

// Valid reports whether s passes Parse.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// ParseOptional is like Parse but maps the empty string to Zero.
func ParseOptional(s string) (common.Address, error) {
	if s == "" {
		return Zero, nil
	}
	return Parse(s)
}

// ToEthAddress returns an address using the SECP256K1 protocol.
// pubkey is 65 bytes
func ToEthAddress(pubkey []byte) (common.Address, error) {
	if len(pubkey) != 65 {
		return common.Address{}, ErrInvalidLength
	}

	d := sha3.NewLegacyKeccak256()
	d.Write(pubkey[1:])
	payload := d.Sum(nil)
	return common.BytesToAddress(payload[12:]), nil
}
