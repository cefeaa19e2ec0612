package vm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/log"
)

// BlockContext provides the EVM with block-level information.
type BlockContext struct {
	Coinbase    types.Address
	BlockNumber uint64
	Time        uint64
	GasLimit    uint64
	BaseFee     *uint256.Int
	PrevRandao  types.Hash
}

// TxContext provides the EVM with transaction-level information. Initcodes
// is non-nil only for initcodes-type transactions; it is the read-only
// registry TXCREATE resolves initcode hashes against.
type TxContext struct {
	Origin    types.Address
	GasPrice  *uint256.Int
	TxType    byte
	Initcodes *InitcodeRegistry
}

// StateDB is the host world-state interface the EVM pulls from. It is
// passed by reference into every frame; the EVM holds no global state.
type StateDB interface {
	CreateAccount(addr types.Address)
	Exist(addr types.Address) bool
	Empty(addr types.Address) bool

	GetBalance(addr types.Address) *uint256.Int
	AddBalance(addr types.Address, amount *uint256.Int)
	SubBalance(addr types.Address, amount *uint256.Int)
	// Transfer moves value between accounts. The caller checks the balance
	// first; Transfer must succeed whenever balance(from) >= value.
	Transfer(from, to types.Address, amount *uint256.Int)

	GetNonce(addr types.Address) uint64
	SetNonce(addr types.Address, nonce uint64)

	GetCode(addr types.Address) []byte
	SetCode(addr types.Address, code []byte)
	GetCodeHash(addr types.Address) types.Hash
	GetCodeSize(addr types.Address) int

	GetState(addr types.Address, key types.Hash) types.Hash
	SetState(addr types.Address, key types.Hash, value types.Hash)

	Snapshot() int
	RevertToSnapshot(id int)

	AddAddressToAccessList(addr types.Address)
	AddressInAccessList(addr types.Address) bool
	AddSlotToAccessList(addr types.Address, slot types.Hash)
	SlotInAccessList(addr types.Address, slot types.Hash) (addressOk, slotOk bool)
}

// ForkRules mirrors the chain-configuration flags the EVM core needs. The
// caller converts its chain config into this struct; only Prague and later
// enable EOF analysis, EOF opcodes, and the initcodes transaction type.
type ForkRules struct {
	IsPrague   bool
	IsCancun   bool
	IsShanghai bool
}

// Config holds EVM configuration options.
type Config struct {
	MaxCallDepth int
}

// EVM is the execution environment: one synchronous frame at a time, nested
// calls suspend the parent on the Go stack.
type EVM struct {
	Context   BlockContext
	TxContext TxContext
	Config    Config
	StateDB   StateDB

	rules       ForkRules
	depth       int
	readOnly    bool
	legacyTable JumpTable
	eofTable    JumpTable
	returnData  []byte
	analyses    *AnalysisCache
	logger      *log.Logger

	// returnedContract is set by RETURNCONTRACT and consumed by the
	// creating parent to distinguish a contract-returning halt from plain
	// STOP (which hard-fails an initcode frame).
	returnedContract bool
}

// NewEVM creates a new EVM instance for the given fork rules.
func NewEVM(blockCtx BlockContext, txCtx TxContext, stateDB StateDB, rules ForkRules, config Config) *EVM {
	if config.MaxCallDepth == 0 {
		config.MaxCallDepth = 1024
	}
	return &EVM{
		Context:     blockCtx,
		TxContext:   txCtx,
		Config:      config,
		StateDB:     stateDB,
		rules:       rules,
		legacyTable: newLegacyInstructionSet(),
		eofTable:    newEOFInstructionSet(),
		analyses:    NewAnalysisCache(),
		logger:      log.Default().Module("evm"),
	}
}

// Rules returns the active fork rules.
func (evm *EVM) Rules() ForkRules { return evm.rules }

// Depth returns the current call depth.
func (evm *EVM) Depth() int { return evm.depth }

// ReturnData returns the current returndata buffer.
func (evm *EVM) ReturnData() []byte { return evm.returnData }

// accountAccessGas applies the EIP-2929 warm/cold rule: a cold address is
// warmed and charged the cold surcharge, warm accesses cost nothing beyond
// the constant WarmStorageReadCost charged by the jump table.
func (evm *EVM) accountAccessGas(addr types.Address) uint64 {
	if evm.StateDB.AddressInAccessList(addr) {
		return 0
	}
	evm.StateDB.AddAddressToAccessList(addr)
	return ColdAccountAccessCost - WarmStorageReadCost
}

// Run executes the contract frame until it halts. Gas charging order per
// step: stack bounds, constant gas, memory-size calculation, dynamic gas
// (including memory expansion), memory resize, execute.
func (evm *EVM) Run(contract *Contract, input []byte) ([]byte, error) {
	contract.Input = input

	table := &evm.legacyTable
	if contract.IsEOF() {
		table = &evm.eofTable
	}

	var (
		pc    uint64
		stack = NewStack()
		mem   = NewMemory()
	)

	for {
		op := contract.GetOp(pc)
		operation := table[op]
		if operation == nil || operation.execute == nil {
			return nil, ErrInvalidOpCode
		}

		sLen := stack.Len()
		if sLen < operation.minStack {
			return nil, ErrStackUnderflow
		}
		if sLen > operation.maxStack {
			return nil, ErrStackOverflow
		}
		if operation.writes && evm.readOnly {
			return nil, ErrWriteProtection
		}

		if operation.constantGas > 0 {
			if !contract.UseGas(operation.constantGas) {
				return nil, ErrOutOfGas
			}
		}

		var memorySize uint64
		if operation.memorySize != nil {
			memSize, overflow := operation.memorySize(stack)
			if overflow {
				return nil, ErrGasUintOverflow
			}
			if memSize > 0 {
				memorySize = toWordSize(memSize) * 32
			}
		}

		if operation.dynamicGas != nil {
			cost, err := operation.dynamicGas(evm, contract, stack, mem, memorySize)
			if err != nil {
				return nil, ErrOutOfGas
			}
			if !contract.UseGas(cost) {
				return nil, ErrOutOfGas
			}
		}

		if memorySize > 0 && uint64(mem.Len()) < memorySize {
			mem.Resize(memorySize)
		}

		ret, err := operation.execute(&pc, evm, contract, mem, stack)
		if err != nil {
			if errors.Is(err, ErrExecutionReverted) {
				return ret, err
			}
			return nil, err
		}
		if operation.halts {
			return ret, nil
		}
		if operation.jumps {
			continue
		}
		pc++
	}
}

// Call executes a message call to the given address. Frames entered through
// Call consume the target's cached code analysis.
func (evm *EVM) Call(caller, addr types.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	transfersValue := value != nil && !value.IsZero()
	if transfersValue {
		if evm.readOnly {
			return nil, gas, ErrWriteProtection
		}
		if evm.StateDB.GetBalance(caller).Lt(value) {
			return nil, gas, ErrInsufficientBalance
		}
	}

	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(addr) {
		if !transfersValue {
			// No account creation for zero-value calls to empty accounts.
			return nil, gas, nil
		}
		evm.StateDB.CreateAccount(addr)
	}
	if transfersValue {
		evm.StateDB.Transfer(caller, addr, value)
	}

	code := evm.StateDB.GetCode(addr)
	if len(code) == 0 {
		return nil, gas, nil
	}

	analysis, err := evm.analyses.Analyze(evm.rules, evm.StateDB.GetCodeHash(addr), code)
	if err != nil {
		// Deployed code that no longer parses is treated as an exceptional
		// halt of the frame.
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}

	contract := NewContract(caller, addr, value, gas)
	contract.CodeHash = evm.StateDB.GetCodeHash(addr)
	contract.SetAnalysis(analysis)

	evm.depth++
	ret, err := evm.Run(contract, input)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// DelegateCall runs the code at codeAddr in the context of selfAddr,
// preserving the original caller and value.
func (evm *EVM) DelegateCall(origCaller, selfAddr, codeAddr types.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	snapshot := evm.StateDB.Snapshot()

	code := evm.StateDB.GetCode(codeAddr)
	if len(code) == 0 {
		return nil, gas, nil
	}

	analysis, err := evm.analyses.Analyze(evm.rules, evm.StateDB.GetCodeHash(codeAddr), code)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}

	contract := NewContract(origCaller, selfAddr, value, gas)
	contract.CodeHash = evm.StateDB.GetCodeHash(codeAddr)
	contract.SetAnalysis(analysis)

	evm.depth++
	ret, err := evm.Run(contract, input)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// StaticCall executes a read-only message call. State modifications inside
// the callee are exceptional halts.
func (evm *EVM) StaticCall(caller, addr types.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	prevReadOnly := evm.readOnly
	evm.readOnly = true
	defer func() { evm.readOnly = prevReadOnly }()

	snapshot := evm.StateDB.Snapshot()

	code := evm.StateDB.GetCode(addr)
	if len(code) == 0 {
		return nil, gas, nil
	}

	analysis, err := evm.analyses.Analyze(evm.rules, evm.StateDB.GetCodeHash(addr), code)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}

	contract := NewContract(caller, addr, new(uint256.Int), gas)
	contract.CodeHash = evm.StateDB.GetCodeHash(addr)
	contract.SetAnalysis(analysis)

	evm.depth++
	ret, err := evm.Run(contract, input)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}
