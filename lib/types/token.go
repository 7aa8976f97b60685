package types

import (
	"encoding/json"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// TokenID is assigned by the chain on a confirmed mint. The zero value is
// undefined: no token exists yet.
type TokenID struct {
	n *big.Int
}

func NewTokenID(n *big.Int) TokenID {
	if n == nil {
		return TokenID{}
	}
	return TokenID{n: new(big.Int).Set(n)}
}

func (t TokenID) Defined() bool {
	return t.n != nil
}

// Big returns a copy, nil when undefined.
func (t TokenID) Big() *big.Int {
	if t.n == nil {
		return nil
	}
	return new(big.Int).Set(t.n)
}

func (t TokenID) String() string {
	if t.n == nil {
		return "<undef>"
	}
	return t.n.String()
}

func (t TokenID) MarshalJSON() ([]byte, error) {
	if t.n == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.n.String())
}

func (t *TokenID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.n = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return xerrors.Errorf("invalid token id %q", s)
	}
	t.n = n
	return nil
}

// MarshalCBOR stores the id as a decimal string, nil when undefined.
func (t TokenID) MarshalCBOR() ([]byte, error) {
	if t.n == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(t.n.String())
}

func (t *TokenID) UnmarshalCBOR(b []byte) error {
	var s *string
	if err := cbor.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		t.n = nil
		return nil
	}
	n, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return xerrors.Errorf("invalid token id %q", *s)
	}
	t.n = n
	return nil
}

// RoyaltyTerms attach to an existing token.
type RoyaltyTerms struct {
	TokenID     TokenID
	BasisPoints uint16
}

func NewRoyaltyTerms(id TokenID, bps uint16) (RoyaltyTerms, error) {
	if !id.Defined() {
		return RoyaltyTerms{}, required("tokenID")
	}
	if err := ValidateBasisPoints(bps); err != nil {
		return RoyaltyTerms{}, err
	}
	return RoyaltyTerms{TokenID: id, BasisPoints: bps}, nil
}
