package types

import (
	"errors"

	"github.com/holiman/uint256"
)

// Transaction type identifiers. Only the subset the creation core needs is
// modeled; blob and legacy variants exist to exercise the TXCREATE type gate.
const (
	LegacyTxType    = 0x00
	DynamicFeeTx    = 0x02
	BlobTxType      = 0x03
	InitcodesTxType = 0x06
)

// Limits for the initcodes transaction type (EIP-7873).
const (
	MaxInitcodeCount = 256
	MaxInitcodeSize  = 0xC000 // 49152 bytes per initcode
)

// Transaction-admission errors for the initcodes transaction type. These
// surface before any execution; gas is refunded as if the transaction never
// ran past intrinsic validation.
var (
	ErrInitCodeCountZero          = errors.New("tx: initcode list is empty")
	ErrInitCodeEmpty              = errors.New("tx: initcode element is empty")
	ErrInitCodeSizeLimitExceeded  = errors.New("tx: initcode exceeds maximum size")
	ErrInitCodeCountLimitExceeded = errors.New("tx: too many initcodes")
	ErrTxTypeNotSupported         = errors.New("tx: transaction type not supported")
	ErrEOFCreationTransaction     = errors.New("tx: creation transaction with EOF initcode")
)

// InitcodesTx is a creation-carrier transaction: it transports a list of
// EOF initcode containers that TXCREATE resolves by keccak256 hash during
// execution. The transaction itself always has a non-nil destination.
type InitcodesTx struct {
	To        Address
	Data      []byte
	Gas       uint64
	Value     *uint256.Int
	Initcodes [][]byte
}

// TxType returns the transaction type identifier.
func (tx *InitcodesTx) TxType() byte { return InitcodesTxType }

// ValidateInitcodes checks the transaction's initcode list against the
// EIP-7873 admission rules. The order of checks matches the error priority
// observed at transaction validation: count bounds first, then per-element
// checks in list order.
func (tx *InitcodesTx) ValidateInitcodes() error {
	if len(tx.Initcodes) == 0 {
		return ErrInitCodeCountZero
	}
	if len(tx.Initcodes) > MaxInitcodeCount {
		return ErrInitCodeCountLimitExceeded
	}
	for _, ic := range tx.Initcodes {
		if len(ic) == 0 {
			return ErrInitCodeEmpty
		}
		if len(ic) > MaxInitcodeSize {
			return ErrInitCodeSizeLimitExceeded
		}
	}
	return nil
}
