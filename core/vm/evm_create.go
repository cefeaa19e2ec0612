package vm

// Contract creation: the legacy CREATE/CREATE2 path and the EOF creation
// state machine (EOFCREATE, TXCREATE, RETURNCONTRACT). A creation attempt
// moves through PreCheck -> Validate -> Charge -> SpawnChild -> Executing ->
// Terminate. The caller-nonce bump happens at Charge and survives REVERT and
// hard failure; only pre-Charge light failures leave it untouched.

import (
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/crypto"
)

// CreationOutcomeKind classifies how a creation attempt ended.
type CreationOutcomeKind uint8

const (
	// CreationSuccess deployed code and pushed the new address.
	CreationSuccess CreationOutcomeKind = iota
	// CreationLightFailure failed a pre-Charge check: the caller keeps its
	// gas and nonce, the child never ran.
	CreationLightFailure
	// CreationHardFailure consumed the gas allotted to the child.
	CreationHardFailure
	// CreationRevert is an initcode REVERT: unused child gas is returned
	// and the revert payload becomes the caller's returndata.
	CreationRevert
)

// CreationOutcome is the result of one EOF creation attempt.
type CreationOutcome struct {
	Kind         CreationOutcomeKind
	Address      types.Address
	DeployedSize int
}

// maxNonce is the largest nonce a creation may still bump to (EIP-2681). A
// caller whose nonce is already above it (2^64-1) light-fails creation
// opcodes.
const maxNonce = ^uint64(0) - 1

// createAddress computes the CREATE address: keccak256(rlp([sender, nonce]))[12:].
func createAddress(caller types.Address, nonce uint64) types.Address {
	addrEnc := encodeRLPBytes(caller[:])
	nonceEnc := encodeRLPUint(nonce)
	payload := append(addrEnc, nonceEnc...)
	hash := crypto.Keccak256(wrapRLPList(payload))
	return types.BytesToAddress(hash[12:])
}

// create2Address computes keccak256(0xff ++ caller ++ salt ++ initCodeHash)[12:],
// the derivation shared by CREATE2 and the EOF creation opcodes.
func create2Address(caller types.Address, salt *uint256.Int, initCodeHash []byte) types.Address {
	saltBytes := salt.Bytes32()
	data := make([]byte, 0, 85)
	data = append(data, 0xff)
	data = append(data, caller[:]...)
	data = append(data, saltBytes[:]...)
	data = append(data, initCodeHash...)
	hash := crypto.Keccak256(data)
	return types.BytesToAddress(hash[12:])
}

// CreateEOFAddress derives the deployment address for EOFCREATE/TXCREATE:
// keccak256(0xFF ++ caller ++ salt ++ keccak256(initcode))[12:].
func CreateEOFAddress(caller types.Address, salt *uint256.Int, initcode []byte) types.Address {
	return create2Address(caller, salt, crypto.Keccak256(initcode))
}

// encodeRLPBytes encodes a byte slice as an RLP string.
func encodeRLPBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		return append([]byte{byte(0x80 + len(b))}, b...)
	}
	lenBytes := uintToMinBytes(uint64(len(b)))
	header := append([]byte{byte(0xb7 + len(lenBytes))}, lenBytes...)
	return append(header, b...)
}

// encodeRLPUint encodes a uint64 as an RLP integer.
func encodeRLPUint(v uint64) []byte {
	if v == 0 {
		return []byte{0x80}
	}
	if v < 128 {
		return []byte{byte(v)}
	}
	b := uintToMinBytes(v)
	return append([]byte{byte(0x80 + len(b))}, b...)
}

// wrapRLPList wraps payload bytes in an RLP list header.
func wrapRLPList(payload []byte) []byte {
	if len(payload) < 56 {
		return append([]byte{byte(0xc0 + len(payload))}, payload...)
	}
	lenBytes := uintToMinBytes(uint64(len(payload)))
	header := append([]byte{byte(0xf7 + len(lenBytes))}, lenBytes...)
	return append(header, payload...)
}

// uintToMinBytes encodes a uint64 as big-endian bytes with no leading zeros.
func uintToMinBytes(v uint64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// --- Legacy CREATE / CREATE2 ---

// Create creates a contract with CREATE address derivation.
func (evm *EVM) Create(caller types.Address, code []byte, gas uint64, value *uint256.Int) ([]byte, types.Address, uint64, error) {
	nonce := evm.StateDB.GetNonce(caller)
	if nonce > maxNonce {
		return nil, types.Address{}, gas, ErrNonceOverflow
	}
	evm.StateDB.SetNonce(caller, nonce+1)
	contractAddr := createAddress(caller, nonce)
	return evm.create(caller, code, gas, value, contractAddr)
}

// Create2 creates a contract with the deterministic CREATE2 derivation. The
// caller nonce is bumped all the same.
func (evm *EVM) Create2(caller types.Address, code []byte, gas uint64, value *uint256.Int, salt *uint256.Int) ([]byte, types.Address, uint64, error) {
	nonce := evm.StateDB.GetNonce(caller)
	if nonce > maxNonce {
		return nil, types.Address{}, gas, ErrNonceOverflow
	}
	evm.StateDB.SetNonce(caller, nonce+1)
	contractAddr := create2Address(caller, salt, crypto.Keccak256(code))
	return evm.create(caller, code, gas, value, contractAddr)
}

// create is the shared CREATE/CREATE2 implementation.
func (evm *EVM) create(caller types.Address, code []byte, gas uint64, value *uint256.Int, contractAddr types.Address) ([]byte, types.Address, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, types.Address{}, gas, ErrMaxCallDepthExceeded
	}
	if len(code) > MaxInitCodeSize {
		return nil, types.Address{}, gas, ErrMaxInitCodeSizeExceeded
	}

	// Collision: all gas is consumed.
	contractHash := evm.StateDB.GetCodeHash(contractAddr)
	if evm.StateDB.GetNonce(contractAddr) != 0 ||
		(!contractHash.IsZero() && contractHash != types.EmptyCodeHash) {
		return nil, types.Address{}, 0, ErrContractAddressCollision
	}

	// The access-list change survives a failed creation.
	evm.StateDB.AddAddressToAccessList(contractAddr)

	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(contractAddr) {
		evm.StateDB.CreateAccount(contractAddr)
	}
	evm.StateDB.SetNonce(contractAddr, 1)

	if value != nil && !value.IsZero() {
		if evm.StateDB.GetBalance(caller).Lt(value) {
			evm.StateDB.RevertToSnapshot(snapshot)
			return nil, types.Address{}, gas, ErrInsufficientBalance
		}
		evm.StateDB.Transfer(caller, contractAddr, value)
	}

	// 63/64 rule: retain 1/64 in the parent.
	callGas := gas - gas/CallGasFraction
	gas -= callGas

	analysis, err := Analyze(evm.rules, code)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, types.Address{}, gas, err
	}

	contract := NewContract(caller, contractAddr, value, callGas)
	contract.IsDeployment = true
	contract.SetAnalysis(analysis)

	evm.depth++
	ret, err := evm.Run(contract, nil)
	evm.depth--

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			// Exceptional abort: the child allotment is gone, only the
			// retained 1/64 comes back.
			return ret, types.Address{}, gas, err
		}
		gas += contract.Gas
		return ret, types.Address{}, gas, err
	}
	gas += contract.Gas

	if len(ret) > 0 {
		// EIP-3541: legacy creation may not deploy 0xEF-prefixed code. At
		// Prague, code carrying the EOF magic reports the contract-validation
		// failure instead.
		if ret[0] == 0xEF {
			evm.StateDB.RevertToSnapshot(snapshot)
			if evm.rules.IsPrague && HasEOFMagic(ret) {
				return nil, types.Address{}, 0, ErrContractValidation
			}
			return nil, types.Address{}, 0, ErrInvalidCode
		}
		if len(ret) > MaxCodeSize {
			evm.StateDB.RevertToSnapshot(snapshot)
			return nil, types.Address{}, 0, ErrMaxCodeSizeExceeded
		}
		depositCost := uint64(len(ret)) * CreateDataGas
		if gas < depositCost {
			evm.StateDB.RevertToSnapshot(snapshot)
			return nil, types.Address{}, 0, ErrOutOfGas
		}
		gas -= depositCost
		evm.StateDB.SetCode(contractAddr, ret)
	}

	return ret, contractAddr, gas, nil
}

// opCreate implements the CREATE opcode.
func opCreate(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	value := stack.Pop()
	offset := stack.Pop()
	size := stack.Pop()

	initCode := memory.GetCopy(offset.Uint64(), size.Uint64())
	evm.returnData = nil

	// EOF initcode cannot be run by legacy creation opcodes: the attempt
	// fails without bumping the caller nonce or spending child gas.
	if evm.rules.IsPrague && HasEOFMagic(initCode) {
		stack.Push(new(uint256.Int))
		return nil, nil
	}

	gas := contract.Gas - contract.Gas/CallGasFraction
	contract.Gas -= gas

	ret, addr, returnGas, err := evm.Create(contract.Address, initCode, gas, &value)
	contract.RefundGas(returnGas)

	if err != nil {
		if errors.Is(err, ErrExecutionReverted) {
			evm.returnData = ret
		}
		stack.Push(new(uint256.Int))
	} else {
		stack.Push(new(uint256.Int).SetBytes(addr.Bytes()))
	}
	return nil, nil
}

// opCreate2 implements the CREATE2 opcode.
func opCreate2(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	value := stack.Pop()
	offset := stack.Pop()
	size := stack.Pop()
	salt := stack.Pop()

	initCode := memory.GetCopy(offset.Uint64(), size.Uint64())
	evm.returnData = nil

	if evm.rules.IsPrague && HasEOFMagic(initCode) {
		stack.Push(new(uint256.Int))
		return nil, nil
	}

	gas := contract.Gas - contract.Gas/CallGasFraction
	contract.Gas -= gas

	ret, addr, returnGas, err := evm.Create2(contract.Address, initCode, gas, &value, &salt)
	contract.RefundGas(returnGas)

	if err != nil {
		if errors.Is(err, ErrExecutionReverted) {
			evm.returnData = ret
		}
		stack.Push(new(uint256.Int))
	} else {
		stack.Push(new(uint256.Int).SetBytes(addr.Bytes()))
	}
	return nil, nil
}

// opCall implements the legacy CALL opcode.
func opCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	gasReq := stack.Pop()
	addrVal := stack.Pop()
	value := stack.Pop()
	inOffset := stack.Pop()
	inSize := stack.Pop()
	retOffset := stack.Pop()
	retSize := stack.Pop()

	addr := types.BytesToAddress(addrVal.Bytes())
	args := memory.GetCopy(inOffset.Uint64(), inSize.Uint64())

	if !value.IsZero() && evm.readOnly {
		return nil, ErrWriteProtection
	}

	// Forward at most all-but-1/64 of the remaining gas.
	available := contract.Gas - contract.Gas/CallGasFraction
	callGas := available
	if req, overflow := gasReq.Uint64WithOverflow(); !overflow && req < callGas {
		callGas = req
	}
	contract.Gas -= callGas
	if !value.IsZero() {
		callGas += CallStipend
	}

	ret, returnGas, err := evm.Call(contract.Address, addr, args, callGas, &value)
	contract.RefundGas(returnGas)
	evm.returnData = ret

	if err == nil {
		stack.Push(new(uint256.Int).SetOne())
	} else {
		stack.Push(new(uint256.Int))
	}
	if len(ret) > 0 {
		n := retSize.Uint64()
		if uint64(len(ret)) < n {
			n = uint64(len(ret))
		}
		memory.Set(retOffset.Uint64(), n, ret)
	}
	return nil, nil
}

// --- EOF creation ---

// opEofcreate implements EOFCREATE: in-code creation from a sub-container
// referenced by a 1-byte immediate index.
func opEofcreate(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	idx := int(contract.Code[*pc+1])
	*pc += 1

	value := stack.Pop()
	salt := stack.Pop()
	inOffset := stack.Pop()
	inSize := stack.Pop()

	initcode := contract.SubContainer(idx)

	// Per-word initcode hashing charge. Shortfall is an exceptional halt of
	// this frame.
	if !contract.UseGas(safeMul(toWordSize(uint64(len(initcode))), GasKeccak256Word)) {
		return nil, ErrOutOfGas
	}

	input := memory.GetCopy(inOffset.Uint64(), inSize.Uint64())

	outcome := evm.eofCreate(contract, initcode, input, &salt, &value, false)
	pushCreationResult(stack, outcome)
	return nil, nil
}

// opTxcreate implements TXCREATE: creation from an initcode carried in the
// enclosing initcodes-type transaction, referenced by keccak256 hash.
func opTxcreate(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	value := stack.Pop()
	salt := stack.Pop()
	inOffset := stack.Pop()
	inSize := stack.Pop()
	hashVal := stack.Pop()

	evm.returnData = nil

	// TXCREATE is inert outside initcodes-type transactions.
	if evm.TxContext.TxType != types.InitcodesTxType {
		createLightFailCounter.Inc()
		stack.Push(new(uint256.Int))
		return nil, nil
	}

	initcodeHash := types.Hash(hashVal.Bytes32())
	initcode, ok := evm.TxContext.Initcodes.Get(initcodeHash)
	if !ok {
		createLightFailCounter.Inc()
		stack.Push(new(uint256.Int))
		return nil, nil
	}

	if !contract.UseGas(safeMul(toWordSize(uint64(len(initcode))), GasKeccak256Word)) {
		return nil, ErrOutOfGas
	}

	input := memory.GetCopy(inOffset.Uint64(), inSize.Uint64())

	outcome := evm.eofCreate(contract, initcode, input, &salt, &value, true)
	pushCreationResult(stack, outcome)
	return nil, nil
}

func pushCreationResult(stack *Stack, outcome CreationOutcome) {
	if outcome.Kind == CreationSuccess {
		stack.Push(new(uint256.Int).SetBytes(outcome.Address.Bytes()))
	} else {
		stack.Push(new(uint256.Int))
	}
}

// eofCreate drives the shared EOFCREATE/TXCREATE state machine once the
// initcode bytes are in hand. When validate is set (TXCREATE) the initcode
// is validated first; failure is a hard failure that precedes the Charge
// stage, so the caller nonce stays untouched.
func (evm *EVM) eofCreate(contract *Contract, initcode, input []byte, salt, value *uint256.Int, validate bool) CreationOutcome {
	evm.returnData = nil

	if validate {
		if _, err := ValidateContainer(initcode, ModeInitcode); err != nil {
			evm.logger.Debug("txcreate initcode rejected", "err", err)
			return evm.creationHardFailure(contract)
		}
	}

	// Light-failure checks: nothing is charged and the caller nonce is not
	// bumped.
	callerNonce := evm.StateDB.GetNonce(contract.Address)
	if evm.depth >= evm.Config.MaxCallDepth ||
		callerNonce > maxNonce ||
		(!value.IsZero() && evm.StateDB.GetBalance(contract.Address).Lt(value)) {
		createLightFailCounter.Inc()
		return CreationOutcome{Kind: CreationLightFailure}
	}

	// Charge stage: the caller nonce bump below survives every later
	// failure of this creation.
	evm.StateDB.SetNonce(contract.Address, callerNonce+1)

	addr := CreateEOFAddress(contract.Address, salt, initcode)
	evm.StateDB.AddAddressToAccessList(addr)

	// Address collision is a post-Charge failure: the child allotment is
	// consumed.
	if evm.StateDB.GetNonce(addr) != 0 || evm.StateDB.GetCodeSize(addr) != 0 {
		return evm.creationHardFailure(contract)
	}

	// Spawn the child with all-but-1/64 of the remaining gas.
	childGas := contract.Gas - contract.Gas/CallGasFraction
	contract.Gas -= childGas

	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(addr) {
		evm.StateDB.CreateAccount(addr)
	}
	evm.StateDB.SetNonce(addr, 1)
	if !value.IsZero() {
		evm.StateDB.Transfer(contract.Address, addr, value)
	}

	analysis, err := Analyze(evm.rules, initcode)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		createHardFailCounter.Inc()
		return CreationOutcome{Kind: CreationHardFailure}
	}

	child := NewContract(contract.Address, addr, value, childGas)
	child.IsDeployment = true
	child.SetAnalysis(analysis)

	evm.returnedContract = false
	evm.depth++
	ret, err := evm.Run(child, input)
	evm.depth--
	returnedContract := evm.returnedContract
	evm.returnedContract = false

	switch {
	case err == nil && returnedContract:
		// RETURNCONTRACT already assembled, size-checked, and re-declared
		// the deploy container's data section.
		evm.StateDB.SetCode(addr, ret)
		contract.RefundGas(child.Gas)
		evm.returnData = nil
		createSuccessCounter.Inc()
		evm.logger.Debug("eof contract deployed", "address", addr, "size", len(ret))
		return CreationOutcome{Kind: CreationSuccess, Address: addr, DeployedSize: len(ret)}

	case errors.Is(err, ErrExecutionReverted):
		evm.StateDB.RevertToSnapshot(snapshot)
		contract.RefundGas(child.Gas)
		evm.returnData = ret
		createRevertCounter.Inc()
		return CreationOutcome{Kind: CreationRevert}

	default:
		// STOP/INVALID halts and exceptional aborts: the child gas is gone.
		if err == nil {
			err = ErrInitcodeAborted
		}
		evm.logger.Debug("initcode frame failed", "address", addr, "err", err)
		evm.StateDB.RevertToSnapshot(snapshot)
		evm.returnData = nil
		createHardFailCounter.Inc()
		return CreationOutcome{Kind: CreationHardFailure}
	}
}

// creationHardFailure consumes the child allotment of the current frame and
// reports a hard failure.
func (evm *EVM) creationHardFailure(contract *Contract) CreationOutcome {
	childGas := contract.Gas - contract.Gas/CallGasFraction
	contract.Gas -= childGas
	createHardFailCounter.Inc()
	return CreationOutcome{Kind: CreationHardFailure}
}

// opReturncontract terminates an initcode frame, assembling the deploy
// container from the immediate-indexed sub-container plus aux data copied
// from memory.
func opReturncontract(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if !contract.IsDeployment {
		return nil, ErrInvalidOpCode
	}
	idx := int(contract.Code[*pc+1])
	*pc += 1

	auxOffset := stack.Pop()
	auxSize := stack.Pop()
	aux := memory.GetCopy(auxOffset.Uint64(), auxSize.Uint64())

	deploy := contract.SubContainer(idx)
	parsed, err := ParseEOF(deploy)
	if err != nil {
		return nil, ErrContractValidation
	}

	// The final data section is the sub-container's data plus the appended
	// aux bytes. The declared size may not exceed it, it must fit the
	// 16-bit size field, and the whole container must respect the deploy
	// size cap.
	newDataLen := len(parsed.Data()) + len(aux)
	if int(parsed.Header.DataSize) > newDataLen {
		return nil, ErrContractValidation
	}
	if newDataLen > 0xFFFF {
		return nil, ErrContractValidation
	}
	if len(deploy)+len(aux) > MaxCodeSize {
		return nil, ErrContractValidation
	}

	out := make([]byte, len(deploy)+len(aux))
	copy(out, deploy)
	copy(out[len(deploy):], aux)
	binary.BigEndian.PutUint16(out[parsed.Header.dataSizeOff:], uint16(newDataLen))

	evm.returnedContract = true
	return out, nil
}
