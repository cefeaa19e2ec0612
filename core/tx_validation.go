// Package core ties transaction admission to the EVM creation machinery:
// it validates initcodes-type transactions before any execution and builds
// the per-transaction context the EVM consumes.
package core

import (
	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/core/vm"
)

// ValidateInitcodesTx checks an initcodes-type transaction at admission
// time. A failure here prevents execution entirely: gas is refunded as if
// the transaction never ran past intrinsic validation.
func ValidateInitcodesTx(rules vm.ForkRules, tx *types.InitcodesTx) error {
	if !rules.IsPrague {
		return types.ErrTxTypeNotSupported
	}
	return tx.ValidateInitcodes()
}

// ValidateCreationTxData enforces the creation-transaction rule for
// transactions with a nil destination: initcode beginning with the EOF magic
// is rejected at entry, EOF contracts deploy only through EOFCREATE and
// TXCREATE.
func ValidateCreationTxData(rules vm.ForkRules, data []byte) error {
	if rules.IsPrague && vm.HasEOFMagic(data) {
		return types.ErrEOFCreationTransaction
	}
	if len(data) > vm.MaxInitCodeSize {
		return vm.ErrMaxInitCodeSizeExceeded
	}
	return nil
}

// NewInitcodesTxContext builds the EVM transaction context for an
// initcodes-type transaction, indexing its initcode list for TXCREATE. The
// transaction must already have passed ValidateInitcodesTx.
func NewInitcodesTxContext(origin types.Address, tx *types.InitcodesTx) vm.TxContext {
	return vm.TxContext{
		Origin:    origin,
		TxType:    types.InitcodesTxType,
		Initcodes: vm.NewInitcodeRegistry(tx.Initcodes),
	}
}
