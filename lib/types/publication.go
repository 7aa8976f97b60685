package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

var recordEnc, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

// Step names one unit of work of a publication or a market call.
type Step uint8

const (
	StepNone Step = iota
	StepUpload
	StepMint
	StepSetRoyalty
	StepList
	StepBuy
)

var stepNames = map[Step]string{
	StepNone:       "none",
	StepUpload:     "upload",
	StepMint:       "mint",
	StepSetRoyalty: "setRoyalty",
	StepList:       "list",
	StepBuy:        "buy",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	for k, v := range stepNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return xerrors.Errorf("unknown step %q", b)
}

// State of a publication. Listed is the only successful terminal state.
type State uint8

const (
	StateNotStarted State = iota
	StateMetadataUploaded
	StateMinted
	StateRoyaltySet
	StateListed
	StateFailed
)

var stateNames = map[State]string{
	StateNotStarted:       "NotStarted",
	StateMetadataUploaded: "MetadataUploaded",
	StateMinted:           "Minted",
	StateRoyaltySet:       "RoyaltySet",
	StateListed:           "Listed",
	StateFailed:           "Failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for k, v := range stateNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return xerrors.Errorf("unknown state %q", b)
}

// Reached is the state entered once step completes.
func (s Step) Reached() State {
	switch s {
	case StepUpload:
		return StateMetadataUploaded
	case StepMint:
		return StateMinted
	case StepSetRoyalty:
		return StateRoyaltySet
	case StepList:
		return StateListed
	default:
		return StateNotStarted
	}
}

// TxStatus is what became of a sent transaction. The zero value is a
// confirmed transaction.
type TxStatus uint8

const (
	TxConfirmed TxStatus = iota
	// sent, no receipt yet
	TxPending
	// mined with a failed status
	TxReverted
	// never seen by the node
	TxDropped
)

var txStatusNames = map[TxStatus]string{
	TxConfirmed: "confirmed",
	TxPending:   "pending",
	TxReverted:  "reverted",
	TxDropped:   "dropped",
}

func (s TxStatus) String() string {
	if n, ok := txStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s TxStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TxStatus) UnmarshalText(b []byte) error {
	for k, v := range txStatusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return xerrors.Errorf("unknown tx status %q", b)
}

// TxRecord is an on-chain transaction produced by a step.
type TxRecord struct {
	Step   Step        `json:"step"`
	Hash   common.Hash `json:"hash"`
	Status TxStatus    `json:"status,omitempty"`
}

// TxOutcome is the settled state of a transaction sent earlier, with the
// identifier its receipt carries for mint and list.
type TxOutcome struct {
	Status    TxStatus
	TokenID   TokenID
	ListingID *big.Int
}

// PublicationResult is the durable record of a publication. It doubles as
// the resumable state: Completed is the last state reached and every
// identifier produced so far is kept.
type PublicationResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	State      State  `json:"state"`
	Completed  State  `json:"completed"`
	FailedStep Step   `json:"failedStep,omitempty"`
	Failure    string `json:"failure,omitempty"`

	MetadataRef  MetadataReference `json:"metadataRef,omitempty"`
	TokenID      TokenID           `json:"tokenId"`
	ListingID    *big.Int          `json:"listingId,omitempty"`
	Transactions []TxRecord        `json:"transactions"`
	// sent by the failed step, outcome not known yet
	Pending *TxRecord `json:"pending,omitempty"`

	BasisPoints uint16         `json:"basisPoints"`
	Price       *big.Int       `json:"price"`
	Currency    common.Address `json:"currency"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Hash returns the confirmed transaction hash recorded for step.
func (r *PublicationResult) Hash(step Step) (common.Hash, bool) {
	for _, tx := range r.Transactions {
		if tx.Step == step && tx.Status == TxConfirmed {
			return tx.Hash, true
		}
	}
	return common.Hash{}, false
}

func (r *PublicationResult) Done() bool {
	return r.Completed == StateListed
}

func (r *PublicationResult) Serialize() ([]byte, error) {
	return recordEnc.Marshal(r)
}

func (r *PublicationResult) Deserialize(b []byte) error {
	return cbor.Unmarshal(b, r)
}

// Listing offers a token for sale. A zero Currency means the native coin.
type Listing struct {
	TokenID             TokenID
	PriceInSmallestUnit *big.Int
	Currency            common.Address
}

func NewListing(id TokenID, price *big.Int, currency common.Address) (Listing, error) {
	if !id.Defined() {
		return Listing{}, required("tokenID")
	}
	if price == nil {
		return Listing{}, required("price")
	}
	if price.Sign() < 0 {
		return Listing{}, outOfRange("price", price)
	}
	return Listing{
		TokenID:             id,
		PriceInSmallestUnit: new(big.Int).Set(price),
		Currency:            currency,
	}, nil
}
