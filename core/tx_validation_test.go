package core

import (
	"errors"
	"testing"

	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/core/vm"
	"github.com/globe-project/globe-evmone/crypto"
)

var prague = vm.ForkRules{IsPrague: true}

func TestValidateInitcodesTx(t *testing.T) {
	tx := &types.InitcodesTx{Initcodes: [][]byte{{0xEF, 0x00, 0x01}}}

	if err := ValidateInitcodesTx(prague, tx); err != nil {
		t.Errorf("valid tx rejected: %v", err)
	}

	// Before Prague the transaction type itself is unsupported, regardless
	// of payload.
	if err := ValidateInitcodesTx(vm.ForkRules{IsCancun: true}, tx); !errors.Is(err, types.ErrTxTypeNotSupported) {
		t.Errorf("pre-Prague error = %v, want %v", err, types.ErrTxTypeNotSupported)
	}

	empty := &types.InitcodesTx{}
	if err := ValidateInitcodesTx(prague, empty); !errors.Is(err, types.ErrInitCodeCountZero) {
		t.Errorf("zero-count error = %v, want %v", err, types.ErrInitCodeCountZero)
	}
}

func TestValidateCreationTxData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"legacy initcode", []byte{0x60, 0x00}, nil},
		{"empty data", nil, nil},
		{"eof initcode", []byte{0xEF, 0x00, 0x01}, types.ErrEOFCreationTransaction},
		{"eof magic only", []byte{0xEF, 0x00}, types.ErrEOFCreationTransaction},
		{"ef without magic", []byte{0xEF, 0x01}, nil},
		{"oversized initcode", make([]byte, vm.MaxInitCodeSize+1), vm.ErrMaxInitCodeSizeExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreationTxData(prague, tt.data)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	// The rejection is Prague-gated: earlier revisions treat the bytes as
	// ordinary (doomed) initcode.
	if err := ValidateCreationTxData(vm.ForkRules{IsCancun: true}, []byte{0xEF, 0x00, 0x01}); err != nil {
		t.Errorf("pre-Prague EOF data rejected: %v", err)
	}
}

func TestNewInitcodesTxContext(t *testing.T) {
	ic := []byte{0xEF, 0x00, 0x01, 0x01}
	tx := &types.InitcodesTx{Initcodes: [][]byte{ic}}
	origin := types.HexToAddress("0x0000000000000000000000000000000000000123")

	txCtx := NewInitcodesTxContext(origin, tx)
	if txCtx.TxType != types.InitcodesTxType {
		t.Errorf("tx type = %d, want %d", txCtx.TxType, types.InitcodesTxType)
	}
	if txCtx.Origin != origin {
		t.Errorf("origin = %s", txCtx.Origin)
	}
	if got, ok := txCtx.Initcodes.Get(crypto.Keccak256Hash(ic)); !ok || len(got) != len(ic) {
		t.Error("registry lookup failed")
	}
}
