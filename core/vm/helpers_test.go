package vm

import (
	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/state"
	"github.com/globe-project/globe-evmone/core/types"
)

func types32(b byte) types.Hash {
	var h types.Hash
	h[types.HashLength-1] = b
	return h
}

func zeroHash() types.Hash {
	return types.Hash{}
}

// newTestEVM builds an EVM at Prague over a fresh in-memory state.
func newTestEVM() (*EVM, *state.MemoryStateDB) {
	statedb := state.NewMemoryStateDB()
	evm := NewEVM(BlockContext{}, TxContext{}, statedb, ForkRules{IsPrague: true}, Config{})
	return evm, statedb
}

// deployContainer builds a minimal runtime container wrapping INVALID with
// the given data section.
func deployContainer(data []byte) []byte {
	return NewContainerBuilder().
		AddCode([]byte{byte(INVALID)}, 0, 0x80, 0).
		SetData(data).
		Build()
}

// initcodeReturning builds an initcode container that immediately returns
// sub-container 0 with no aux data.
func initcodeReturning(deploy []byte) []byte {
	return NewContainerBuilder().
		AddCode([]byte{byte(PUSH0), byte(PUSH0), byte(RETURNCONTRACT), 0x00}, 0, 0x80, 2).
		AddContainer(deploy).
		Build()
}

// initcodeReturningCalldata builds an initcode container that returns
// sub-container 0 with the full calldata appended as aux data.
func initcodeReturningCalldata(deploy []byte) []byte {
	// aux_size = CALLDATASIZE, aux_offset = 0: calldata is copied to memory
	// first so the aux bytes come from the initcode frame's memory.
	code := []byte{
		byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(CALLDATACOPY), // memory[0:] = calldata
		byte(CALLDATASIZE), byte(PUSH0), // aux_size, aux_offset
		byte(RETURNCONTRACT), 0x00,
	}
	return NewContainerBuilder().
		AddCode(code, 0, 0x80, 3).
		AddContainer(deploy).
		Build()
}

// initcodeReverting builds an initcode container that reverts with a
// zero-filled payload of the given size.
func initcodeReverting(size byte) []byte {
	code := []byte{byte(PUSH1), size, byte(PUSH0), byte(REVERT)}
	return NewContainerBuilder().
		AddCode(code, 0, 0x80, 2).
		Build()
}

// factoryCreating builds a runtime container whose entry code performs one
// EOFCREATE of sub-container 0 (zero value, zero salt, empty input), stores
// the result in storage slot 0, and stops.
func factoryCreating(initcode []byte) []byte {
	code := []byte{
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0), // input_size, input_offset, salt, value
		byte(EOFCREATE), 0x00,
		byte(PUSH0), byte(SSTORE),
		byte(STOP),
	}
	return NewContainerBuilder().
		AddCode(code, 0, 0x80, 4).
		AddContainer(initcode).
		Build()
}

// runFactory deploys the factory container at a fixed address, funds the
// caller, and calls it with the given input. It returns the factory address
// and the call's output, remaining gas and error.
func runFactory(evm *EVM, statedb *state.MemoryStateDB, factory []byte, input []byte, gas uint64) (types.Address, []byte, uint64, error) {
	caller := types.HexToAddress("0x000000000000000000000000000000000000c0de")
	factoryAddr := types.HexToAddress("0x00000000000000000000000000000000000fac70")
	statedb.CreateAccount(caller)
	statedb.AddBalance(caller, uint256.NewInt(1_000_000_000))
	statedb.CreateAccount(factoryAddr)
	statedb.SetCode(factoryAddr, factory)
	ret, gasLeft, err := evm.Call(caller, factoryAddr, input, gas, new(uint256.Int))
	return factoryAddr, ret, gasLeft, err
}

// slot reads storage slot n of addr as a hash.
func slot(statedb *state.MemoryStateDB, addr types.Address, n byte) types.Hash {
	return statedb.GetState(addr, types32(n))
}

// addressFromSlot converts a storage word to an address.
func addressFromSlot(h types.Hash) types.Address {
	return types.BytesToAddress(h[12:])
}
