package vm

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/crypto"
)

// calcMemSize64 computes off+length with overflow detection, for memory-size
// functions. A zero length never requires memory.
func calcMemSize64(off, length *uint256.Int) (uint64, bool) {
	if length.IsZero() {
		return 0, false
	}
	offU, overflow := off.Uint64WithOverflow()
	if overflow {
		return 0, true
	}
	lenU, overflow := length.Uint64WithOverflow()
	if overflow {
		return 0, true
	}
	if offU+lenU < offU {
		return 0, true
	}
	return offU + lenU, false
}

// --- Arithmetic ---

func opStop(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, nil
}

func opAdd(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Add(&x, y)
	return nil, nil
}

func opMul(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Mul(&x, y)
	return nil, nil
}

func opSub(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Sub(&x, y)
	return nil, nil
}

func opDiv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Div(&x, y)
	return nil, nil
}

func opSdiv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.SDiv(&x, y)
	return nil, nil
}

func opMod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Mod(&x, y)
	return nil, nil
}

func opSmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.SMod(&x, y)
	return nil, nil
}

func opAddmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Pop()
	z := stack.Peek()
	z.AddMod(&x, &y, z)
	return nil, nil
}

func opMulmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Pop()
	z := stack.Peek()
	z.MulMod(&x, &y, z)
	return nil, nil
}

func opExp(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	base := stack.Pop()
	exponent := stack.Peek()
	exponent.Exp(&base, exponent)
	return nil, nil
}

func opSignExtend(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	back := stack.Pop()
	num := stack.Peek()
	num.ExtendSign(num, &back)
	return nil, nil
}

// --- Comparison and bitwise ---

func opLt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	if x.Lt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opGt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	if x.Gt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSlt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	if x.Slt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opSgt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	if x.Sgt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opEq(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	if x.Eq(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil, nil
}

func opIszero(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	if x.IsZero() {
		x.SetOne()
	} else {
		x.Clear()
	}
	return nil, nil
}

func opAnd(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.And(&x, y)
	return nil, nil
}

func opOr(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Or(&x, y)
	return nil, nil
}

func opXor(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Pop()
	y := stack.Peek()
	y.Xor(&x, y)
	return nil, nil
}

func opNot(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	x.Not(x)
	return nil, nil
}

func opByte(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	th := stack.Pop()
	val := stack.Peek()
	val.Byte(&th)
	return nil, nil
}

func opSHL(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift := stack.Pop()
	value := stack.Peek()
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opSHR(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift := stack.Pop()
	value := stack.Peek()
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return nil, nil
}

func opSAR(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift := stack.Pop()
	value := stack.Peek()
	if shift.GtUint64(256) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			value.SetAllOne()
		}
		return nil, nil
	}
	value.SRsh(value, uint(shift.Uint64()))
	return nil, nil
}

func opKeccak256(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Pop()
	size := stack.Peek()
	data := memory.GetCopy(offset.Uint64(), size.Uint64())
	size.SetBytes(crypto.Keccak256(data))
	return nil, nil
}

// --- Environment ---

func opAddress(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetBytes(contract.Address.Bytes()))
	return nil, nil
}

func opBalance(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	addr := types.BytesToAddress(slot.Bytes())
	slot.Set(evm.StateDB.GetBalance(addr))
	return nil, nil
}

func opOrigin(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetBytes(evm.TxContext.Origin.Bytes()))
	return nil, nil
}

func opCaller(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetBytes(contract.CallerAddress.Bytes()))
	return nil, nil
}

func opCallValue(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).Set(contract.Value))
	return nil, nil
}

func opCalldataLoad(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	if off, overflow := x.Uint64WithOverflow(); !overflow {
		x.SetBytes(getData(contract.Input, off, 32))
	} else {
		x.Clear()
	}
	return nil, nil
}

func opCalldataSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(uint64(len(contract.Input))))
	return nil, nil
}

func opCalldataCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	dataOffset := stack.Pop()
	length := stack.Pop()

	dataOff, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		dataOff = ^uint64(0)
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), getData(contract.Input, dataOff, length.Uint64()))
	return nil, nil
}

// opCodeSize reports the original, unpadded code size of a legacy frame.
func opCodeSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(uint64(contract.Analysis().CodeSize)))
	return nil, nil
}

func opCodeCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	codeOffset := stack.Pop()
	length := stack.Pop()

	codeOff, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		codeOff = ^uint64(0)
	}
	a := contract.Analysis()
	code := a.PaddedCode[:a.CodeSize]
	memory.Set(memOffset.Uint64(), length.Uint64(), getData(code, codeOff, length.Uint64()))
	return nil, nil
}

func opReturnDataSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(uint64(len(evm.returnData))))
	return nil, nil
}

func opReturnDataCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	dataOffset := stack.Pop()
	length := stack.Pop()

	offset64, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return nil, ErrReturnDataOutOfBounds
	}
	end := offset64 + length.Uint64()
	if end < offset64 || end > uint64(len(evm.returnData)) {
		return nil, ErrReturnDataOutOfBounds
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), evm.returnData[offset64:end])
	return nil, nil
}

// --- Stack, memory, storage ---

func opPop(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Pop()
	return nil, nil
}

func opMload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	v := stack.Peek()
	offset := v.Uint64()
	v.SetBytes32(memory.GetPtr(offset, 32))
	return nil, nil
}

func opMstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	mStart := stack.Pop()
	val := stack.Pop()
	memory.Set32(mStart.Uint64(), &val)
	return nil, nil
}

func opMstore8(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	off := stack.Pop()
	val := stack.Pop()
	memory.Set(off.Uint64(), 1, []byte{byte(val.Uint64())})
	return nil, nil
}

func opMsize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(uint64(memory.Len())))
	return nil, nil
}

func opMcopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dst := stack.Pop()
	src := stack.Pop()
	length := stack.Pop()
	if length.IsZero() {
		return nil, nil
	}
	memory.Set(dst.Uint64(), length.Uint64(), memory.GetCopy(src.Uint64(), length.Uint64()))
	return nil, nil
}

func opSload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	loc := stack.Peek()
	hash := types.Hash(loc.Bytes32())
	val := evm.StateDB.GetState(contract.Address, hash)
	loc.SetBytes32(val.Bytes())
	return nil, nil
}

func opSstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.readOnly {
		return nil, ErrWriteProtection
	}
	loc := stack.Pop()
	val := stack.Pop()
	evm.StateDB.SetState(contract.Address, types.Hash(loc.Bytes32()), types.Hash(val.Bytes32()))
	return nil, nil
}

// --- Legacy control flow ---

func opJump(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pos := stack.Pop()
	if !contract.ValidJumpdest(&pos) {
		return nil, ErrInvalidJump
	}
	*pc = pos.Uint64()
	return nil, nil
}

func opJumpi(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	pos := stack.Pop()
	cond := stack.Pop()
	if !cond.IsZero() {
		if !contract.ValidJumpdest(&pos) {
			return nil, ErrInvalidJump
		}
		*pc = pos.Uint64()
	} else {
		*pc++
	}
	return nil, nil
}

func opJumpdest(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, nil
}

func opPc(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(*pc))
	return nil, nil
}

func opGas(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(contract.Gas))
	return nil, nil
}

// --- Pushes, dups, swaps ---

func opPush0(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int))
	return nil, nil
}

// makePush builds the handler for PUSH1..PUSH32. Reads past the code end
// zero-pad: reachable for legacy code only through the STOP guard, never for
// validated EOF.
func makePush(size uint64) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		var v uint256.Int
		start := *pc + 1
		end := start + size
		if start >= uint64(len(contract.Code)) {
			stack.Push(&v)
		} else {
			if end > uint64(len(contract.Code)) {
				buf := make([]byte, size)
				copy(buf, contract.Code[start:])
				v.SetBytes(buf)
			} else {
				v.SetBytes(contract.Code[start:end])
			}
			stack.Push(&v)
		}
		*pc += size
		return nil, nil
	}
}

func makeDup(n int) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		stack.Dup(n)
		return nil, nil
	}
}

func makeSwap(n int) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		stack.Swap(n)
		return nil, nil
	}
}

// --- Halting ---

func opReturn(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Pop()
	size := stack.Pop()
	return memory.GetCopy(offset.Uint64(), size.Uint64()), nil
}

func opRevert(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Pop()
	size := stack.Pop()
	return memory.GetCopy(offset.Uint64(), size.Uint64()), ErrExecutionReverted
}

// --- EOF control flow ---

func opRjump(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	rel := int16(binary.BigEndian.Uint16(contract.Code[*pc+1 : *pc+3]))
	*pc = uint64(int64(*pc) + 3 + int64(rel))
	return nil, nil
}

func opRjumpi(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	cond := stack.Pop()
	if cond.IsZero() {
		*pc += 3
		return nil, nil
	}
	rel := int16(binary.BigEndian.Uint16(contract.Code[*pc+1 : *pc+3]))
	*pc = uint64(int64(*pc) + 3 + int64(rel))
	return nil, nil
}

func opRjumpv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	maxIndex := uint64(contract.Code[*pc+1])
	afterImm := int64(*pc) + 2 + int64(maxIndex+1)*2
	idx := stack.Pop()
	i, overflow := idx.Uint64WithOverflow()
	if overflow || i > maxIndex {
		*pc = uint64(afterImm)
		return nil, nil
	}
	off := *pc + 2 + i*2
	rel := int16(binary.BigEndian.Uint16(contract.Code[off : off+2]))
	*pc = uint64(afterImm + int64(rel))
	return nil, nil
}

func opCallf(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	target := int(binary.BigEndian.Uint16(contract.Code[*pc+1 : *pc+3]))
	ts := contract.Container().Header.Types[target]
	if stack.Len()+int(ts.MaxStack)-int(ts.Inputs) > StackLimit {
		return nil, ErrStackOverflow
	}
	contract.PushRetFrame(contract.Section(), *pc+3)
	contract.SetSection(target)
	*pc = 0
	return nil, nil
}

func opRetf(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	section, retPC, ok := contract.PopRetFrame()
	if !ok {
		return nil, ErrInvalidOpCode
	}
	contract.SetSection(section)
	*pc = retPC
	return nil, nil
}

func opJumpf(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	target := int(binary.BigEndian.Uint16(contract.Code[*pc+1 : *pc+3]))
	ts := contract.Container().Header.Types[target]
	if stack.Len()+int(ts.MaxStack)-int(ts.Inputs) > StackLimit {
		return nil, ErrStackOverflow
	}
	contract.SetSection(target)
	*pc = 0
	return nil, nil
}

// --- EOF data section access ---

func opDataload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Peek()
	off, overflow := offset.Uint64WithOverflow()
	if overflow {
		off = ^uint64(0)
	}
	offset.SetBytes(getData(contract.Data(), off, 32))
	return nil, nil
}

func opDataloadN(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	off := uint64(binary.BigEndian.Uint16(contract.Code[*pc+1 : *pc+3]))
	stack.Push(new(uint256.Int).SetBytes(getData(contract.Data(), off, 32)))
	*pc += 2
	return nil, nil
}

func opDatasize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(uint256.Int).SetUint64(uint64(len(contract.Data()))))
	return nil, nil
}

func opDatacopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	dataOffset := stack.Pop()
	length := stack.Pop()

	off, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		off = ^uint64(0)
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), getData(contract.Data(), off, length.Uint64()))
	return nil, nil
}

// --- EOF call family ---

func opReturnDataLoad(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Peek()
	off, overflow := offset.Uint64WithOverflow()
	if overflow {
		off = ^uint64(0)
	}
	offset.SetBytes(getData(evm.returnData, off, 32))
	return nil, nil
}

// EXTCALL status codes per EIP-7069.
const (
	extCallSuccess uint64 = 0
	extCallRevert  uint64 = 1
	extCallFailure uint64 = 2
)

// extCallGas computes the gas forwarded to an EXTCALL-family callee:
// available = remaining - max(remaining/64, MinRetainedGas).
func extCallGas(remaining uint64) uint64 {
	retained := remaining / CallGasFraction
	if retained < MinRetainedGas {
		retained = MinRetainedGas
	}
	if remaining <= retained {
		return 0
	}
	return remaining - retained
}

func opExtcall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	addrVal := stack.Pop()
	inOffset := stack.Pop()
	inSize := stack.Pop()
	value := stack.Pop()

	// The target must fit in 20 bytes; higher bits set is an exceptional halt.
	if addrVal.ByteLen() > types.AddressLength {
		return nil, ErrInvalidOpCode
	}
	addr := types.BytesToAddress(addrVal.Bytes())

	if !value.IsZero() && evm.readOnly {
		return nil, ErrWriteProtection
	}
	args := memory.GetCopy(inOffset.Uint64(), inSize.Uint64())

	callGas := extCallGas(contract.Gas)
	evm.returnData = nil

	// Light failures push the revert status without spending callee gas.
	if callGas < MinCalleeGas ||
		evm.depth >= evm.Config.MaxCallDepth ||
		(!value.IsZero() && evm.StateDB.GetBalance(contract.Address).Lt(&value)) {
		stack.Push(new(uint256.Int).SetUint64(extCallRevert))
		return nil, nil
	}

	contract.Gas -= callGas
	ret, returnGas, err := evm.Call(contract.Address, addr, args, callGas, &value)
	contract.RefundGas(returnGas)
	evm.returnData = ret

	status := extCallSuccess
	if err != nil {
		if err == ErrExecutionReverted {
			status = extCallRevert
		} else {
			status = extCallFailure
		}
	}
	stack.Push(new(uint256.Int).SetUint64(status))
	return nil, nil
}

func opExtdelegatecall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	addrVal := stack.Pop()
	inOffset := stack.Pop()
	inSize := stack.Pop()

	if addrVal.ByteLen() > types.AddressLength {
		return nil, ErrInvalidOpCode
	}
	addr := types.BytesToAddress(addrVal.Bytes())
	args := memory.GetCopy(inOffset.Uint64(), inSize.Uint64())

	callGas := extCallGas(contract.Gas)
	evm.returnData = nil

	if callGas < MinCalleeGas || evm.depth >= evm.Config.MaxCallDepth {
		stack.Push(new(uint256.Int).SetUint64(extCallRevert))
		return nil, nil
	}

	contract.Gas -= callGas
	ret, returnGas, err := evm.DelegateCall(contract.CallerAddress, contract.Address, addr, args, callGas, contract.Value)
	contract.RefundGas(returnGas)
	evm.returnData = ret

	status := extCallSuccess
	if err != nil {
		if err == ErrExecutionReverted {
			status = extCallRevert
		} else {
			status = extCallFailure
		}
	}
	stack.Push(new(uint256.Int).SetUint64(status))
	return nil, nil
}

func opExtstaticcall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	addrVal := stack.Pop()
	inOffset := stack.Pop()
	inSize := stack.Pop()

	if addrVal.ByteLen() > types.AddressLength {
		return nil, ErrInvalidOpCode
	}
	addr := types.BytesToAddress(addrVal.Bytes())
	args := memory.GetCopy(inOffset.Uint64(), inSize.Uint64())

	callGas := extCallGas(contract.Gas)
	evm.returnData = nil

	if callGas < MinCalleeGas || evm.depth >= evm.Config.MaxCallDepth {
		stack.Push(new(uint256.Int).SetUint64(extCallRevert))
		return nil, nil
	}

	contract.Gas -= callGas
	ret, returnGas, err := evm.StaticCall(contract.Address, addr, args, callGas)
	contract.RefundGas(returnGas)
	evm.returnData = ret

	status := extCallSuccess
	if err != nil {
		if err == ErrExecutionReverted {
			status = extCallRevert
		} else {
			status = extCallFailure
		}
	}
	stack.Push(new(uint256.Int).SetUint64(status))
	return nil, nil
}

// getData returns a length-sized slice of data starting at off, zero-padded
// past the end.
func getData(data []byte, off, length uint64) []byte {
	dataLen := uint64(len(data))
	if off > dataLen {
		off = dataLen
	}
	end := off + length
	if end > dataLen {
		end = dataLen
	}
	out := make([]byte, length)
	copy(out, data[off:end])
	return out
}

// --- Gas helpers ---

func gasExp(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	expByteLen := uint64((stack.Back(1).BitLen() + 7) / 8)
	return safeMul(expByteLen, GasExpByte), nil
}

func gasKeccak256(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	wordGas := safeMul(toWordSize(stack.Back(1).Uint64()), GasKeccak256Word)
	return safeAdd(memGas, wordGas), nil
}

// gasAccountAccess applies the EIP-2929 cold surcharge for account accesses
// whose target address is on top of the stack.
func gasAccountAccess(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := types.BytesToAddress(stack.Back(0).Bytes())
	return evm.accountAccessGas(addr), nil
}

// gasCopyToMem covers the copy-family opcodes: per-word copy cost plus
// memory expansion. The length is the third stack operand.
func gasCopyToMem(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	words := toWordSize(stack.Back(2).Uint64())
	return safeAdd(memGas, safeMul(words, GasCopy)), nil
}

func gasSLoad(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	slot := types.Hash(stack.Back(0).Bytes32())
	if _, warm := evm.StateDB.SlotInAccessList(contract.Address, slot); warm {
		return GasSloadWarm, nil
	}
	evm.StateDB.AddSlotToAccessList(contract.Address, slot)
	return GasSloadCold, nil
}

func gasSStore(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var (
		slot = types.Hash(stack.Back(0).Bytes32())
		cost = uint64(0)
	)
	if _, warm := evm.StateDB.SlotInAccessList(contract.Address, slot); !warm {
		evm.StateDB.AddSlotToAccessList(contract.Address, slot)
		cost = GasSloadCold - GasSloadWarm
	}
	current := evm.StateDB.GetState(contract.Address, slot)
	newVal := types.Hash(stack.Back(1).Bytes32())
	switch {
	case current == newVal:
		return cost + GasSloadWarm, nil
	case current.IsZero():
		return cost + GasSstoreSet, nil
	default:
		return cost + GasSstoreReset, nil
	}
}

func gasCreate(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	words := toWordSize(stack.Back(2).Uint64())
	return safeAdd(memGas, safeMul(words, InitCodeWordGas)), nil
}

func gasCreate2(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	words := toWordSize(stack.Back(2).Uint64())
	gas := safeAdd(safeMul(words, InitCodeWordGas), safeMul(words, GasKeccak256Word))
	return safeAdd(memGas, gas), nil
}

func gasCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(1).Bytes())
	gas := safeAdd(memGas, evm.accountAccessGas(addr))
	if !stack.Back(2).IsZero() {
		gas = safeAdd(gas, 9000)
		if !evm.StateDB.Exist(addr) {
			gas = safeAdd(gas, 25000)
		}
	}
	// Forwarded gas is resolved in the handler via the 63/64 rule.
	return gas, nil
}

func gasExtcall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(0).Bytes())
	gas := safeAdd(memGas, evm.accountAccessGas(addr))
	if !stack.Back(3).IsZero() {
		gas = safeAdd(gas, 9000)
		if !evm.StateDB.Exist(addr) {
			gas = safeAdd(gas, 25000)
		}
	}
	return gas, nil
}

func gasExtcallNoValue(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	memGas, err := memoryGasCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(0).Bytes())
	return safeAdd(memGas, evm.accountAccessGas(addr)), nil
}

// --- Memory size helpers ---

func memoryKeccak256(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}

func memoryMload(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), uint256.NewInt(32))
}

func memoryMstore(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), uint256.NewInt(32))
}

func memoryMstore8(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), uint256.NewInt(1))
}

func memoryMcopy(stack *Stack) (uint64, bool) {
	dst, overflow := calcMemSize64(stack.Back(0), stack.Back(2))
	if overflow {
		return 0, true
	}
	src, overflow := calcMemSize64(stack.Back(1), stack.Back(2))
	if overflow {
		return 0, true
	}
	if dst > src {
		return dst, false
	}
	return src, false
}

// memoryDataCopy covers CALLDATACOPY/CODECOPY/RETURNDATACOPY/DATACOPY:
// mem_offset and length are the first and third operands.
func memoryDataCopy(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(2))
}

func memoryCreate(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(2))
}

func memoryCreate2(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(2))
}

func memoryCall(stack *Stack) (uint64, bool) {
	in, overflow := calcMemSize64(stack.Back(3), stack.Back(4))
	if overflow {
		return 0, true
	}
	out, overflow := calcMemSize64(stack.Back(5), stack.Back(6))
	if overflow {
		return 0, true
	}
	if in > out {
		return in, false
	}
	return out, false
}

func memoryReturn(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}

func memoryExtcall(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(2))
}

func memoryExtcallNoValue(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(1), stack.Back(2))
}

func memoryEofcreate(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(2), stack.Back(3))
}

func memoryTxcreate(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(2), stack.Back(3))
}

func memoryReturncontract(stack *Stack) (uint64, bool) {
	return calcMemSize64(stack.Back(0), stack.Back(1))
}
