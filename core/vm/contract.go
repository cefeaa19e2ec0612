package vm

import (
	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/types"
)

// retFrame is one CALLF return position: the code section and pc to resume
// at after RETF.
type retFrame struct {
	section int
	pc      uint64
}

// Contract represents a code blob executing in a call frame. Its analysis is
// produced on call entry and owned by the frame until it returns.
type Contract struct {
	CallerAddress types.Address
	Address       types.Address
	Code          []byte // active executable bytes: padded legacy code or the active EOF code section
	CodeHash      types.Hash
	Input         []byte
	Gas           uint64
	Value         *uint256.Int

	// IsDeployment marks an initcode frame (CREATE-family or EOFCREATE/
	// TXCREATE child).
	IsDeployment bool

	analysis *CodeAnalysis
	section  int
	retStack []retFrame
}

// NewContract creates a new contract frame.
func NewContract(caller, addr types.Address, value *uint256.Int, gas uint64) *Contract {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Contract{
		CallerAddress: caller,
		Address:       addr,
		Value:         value,
		Gas:           gas,
	}
}

// SetAnalysis attaches the code analysis and selects the executable bytes:
// the padded buffer for legacy code, code section 0 for EOF.
func (c *Contract) SetAnalysis(a *CodeAnalysis) {
	c.analysis = a
	c.section = 0
	c.retStack = c.retStack[:0]
	if a.IsEOF() {
		c.Code = a.Container.CodeSection(0)
	} else {
		c.Code = a.PaddedCode
	}
}

// Analysis returns the frame's code analysis.
func (c *Contract) Analysis() *CodeAnalysis { return c.analysis }

// IsEOF reports whether the frame executes an EOF container.
func (c *Contract) IsEOF() bool {
	return c.analysis != nil && c.analysis.IsEOF()
}

// Container returns the EOF container backing this frame, or nil for legacy
// frames.
func (c *Contract) Container() *EOFContainer {
	if c.analysis == nil {
		return nil
	}
	return c.analysis.Container
}

// Section returns the index of the active EOF code section.
func (c *Contract) Section() int { return c.section }

// SetSection switches execution to the given EOF code section.
func (c *Contract) SetSection(i int) {
	c.section = i
	c.Code = c.analysis.Container.CodeSection(i)
}

// PushRetFrame records the CALLF return position.
func (c *Contract) PushRetFrame(section int, pc uint64) {
	c.retStack = append(c.retStack, retFrame{section: section, pc: pc})
}

// PopRetFrame removes and returns the most recent CALLF return position.
func (c *Contract) PopRetFrame() (int, uint64, bool) {
	if len(c.retStack) == 0 {
		return 0, 0, false
	}
	f := c.retStack[len(c.retStack)-1]
	c.retStack = c.retStack[:len(c.retStack)-1]
	return f.section, f.pc, true
}

// GetOp returns the opcode at position n in the active code. Reads past the
// end yield STOP; for legacy frames the padded buffer makes this reachable
// only beyond the guard, for validated EOF it never happens.
func (c *Contract) GetOp(n uint64) OpCode {
	if n < uint64(len(c.Code)) {
		return OpCode(c.Code[n])
	}
	return STOP
}

// UseGas attempts to consume the given gas. Returns false if insufficient.
func (c *Contract) UseGas(gas uint64) bool {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// RefundGas returns unused gas to the frame.
func (c *Contract) RefundGas(gas uint64) {
	c.Gas += gas
}

// ValidJumpdest checks whether dest is a valid JUMPDEST position in legacy
// code: in range of the original (unpadded) code and not inside a PUSH
// immediate.
func (c *Contract) ValidJumpdest(dest *uint256.Int) bool {
	udest, overflow := dest.Uint64WithOverflow()
	if overflow || c.analysis == nil {
		return false
	}
	return c.analysis.ValidJumpdest(udest)
}

// Data returns the EOF data section bytes actually present, nil for legacy
// frames.
func (c *Contract) Data() []byte {
	if !c.IsEOF() {
		return nil
	}
	return c.analysis.Container.Data()
}

// SubContainer returns the raw bytes of sub-container i of an EOF frame.
func (c *Contract) SubContainer(i int) []byte {
	return c.analysis.Container.SubContainer(i)
}
