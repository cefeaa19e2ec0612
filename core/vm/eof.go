package vm

// EOF (EVM Object Format) v1 container reading per EIP-3540. The header
// reader is strict: section kinds must appear in order, every declared
// byte range must lie inside the container, and the only tolerated body
// shortfall is a truncated data section (legal for initcode containers,
// rejected for runtime containers by the validator).

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EOF magic bytes and version per EIP-3540.
const (
	eofMagic0  byte = 0xEF
	eofMagic1  byte = 0x00
	eofVersion byte = 0x01
)

// EOF header section kind markers.
const (
	kindType       byte = 0x01
	kindCode       byte = 0x02
	kindContainer  byte = 0x03
	kindData       byte = 0x04
	kindTerminator byte = 0x00
)

// Structural limits.
const (
	maxCodeSections      = 1024
	maxContainerSections = 256
	typeEntrySize        = 4 // inputs, outputs, max_stack (u16), per code section

	// nonReturning marks a code section that never returns to its caller
	// (outputs sentinel per EIP-4750).
	nonReturning byte = 0x80

	// maxStackHeight is the absolute operand stack bound in EOF code.
	maxStackHeight = 1023
)

var (
	ErrEOFTooShort             = errors.New("eof: container too short")
	ErrEOFInvalidMagic         = errors.New("eof: invalid magic bytes")
	ErrEOFInvalidVersion       = errors.New("eof: invalid version")
	ErrEOFMissingTypeSection   = errors.New("eof: missing type section")
	ErrEOFMissingCodeSection   = errors.New("eof: missing code section")
	ErrEOFMissingDataSection   = errors.New("eof: missing data section")
	ErrEOFMissingTerminator    = errors.New("eof: missing header terminator")
	ErrEOFTypeSizeInvalid      = errors.New("eof: type section size not a nonzero multiple of 4")
	ErrEOFTypeSizeMismatch     = errors.New("eof: type section size does not match code section count")
	ErrEOFZeroCodeSections     = errors.New("eof: zero code sections")
	ErrEOFTooManyCodeSections  = errors.New("eof: too many code sections")
	ErrEOFZeroCodeSize         = errors.New("eof: code section size is zero")
	ErrEOFZeroContainerCount   = errors.New("eof: zero container sections")
	ErrEOFTooManyContainers    = errors.New("eof: too many container sections")
	ErrEOFZeroContainerSize    = errors.New("eof: container section size is zero")
	ErrEOFInvalidSectionKind   = errors.New("eof: unexpected section kind")
	ErrEOFBodyTruncated        = errors.New("eof: body truncated")
	ErrEOFTrailingBytes        = errors.New("eof: trailing bytes after declared sections")
	ErrEOFInvalidFirstType     = errors.New("eof: first code section must have 0 inputs and be non-returning")
	ErrEOFMaxStackTooLarge     = errors.New("eof: declared max_stack exceeds 1023")
)

// TypeSection is the declared signature of one code section.
type TypeSection struct {
	Inputs   uint8
	Outputs  uint8
	MaxStack uint16
}

// NonReturning reports whether the section never returns via RETF.
func (t TypeSection) NonReturning() bool {
	return t.Outputs == nonReturning
}

// EOFHeader is the parsed header of an EOF v1 container. Code and container
// offsets are absolute within the container bytes.
type EOFHeader struct {
	Version          byte
	Types            []TypeSection
	CodeOffsets      []uint32
	CodeSizes        []uint16
	ContainerOffsets []uint32
	ContainerSizes   []uint16
	DataOffset       uint32
	DataSize         uint16 // declared size; the body may hold fewer bytes

	// dataSizeOff is the byte offset of the data-size field inside the
	// header, needed when a deploy container's data section is extended
	// at RETURNCONTRACT time.
	dataSizeOff int
}

// EOFContainer couples the raw container bytes with the parsed header.
type EOFContainer struct {
	raw    []byte
	Header EOFHeader
}

// HasEOFMagic returns true if code starts with the EOF magic bytes 0xEF00.
func HasEOFMagic(code []byte) bool {
	return len(code) >= 2 && code[0] == eofMagic0 && code[1] == eofMagic1
}

// readEOFHeader parses and checks the header of an EOF v1 container.
func readEOFHeader(raw []byte) (EOFHeader, error) {
	var h EOFHeader
	if len(raw) < 3 {
		return h, ErrEOFTooShort
	}
	if raw[0] != eofMagic0 || raw[1] != eofMagic1 {
		return h, ErrEOFInvalidMagic
	}
	if raw[2] != eofVersion {
		return h, ErrEOFInvalidVersion
	}
	h.Version = raw[2]
	pos := 3

	readU16 := func() (uint16, error) {
		if pos+2 > len(raw) {
			return 0, ErrEOFTooShort
		}
		v := binary.BigEndian.Uint16(raw[pos : pos+2])
		pos += 2
		return v, nil
	}

	// Type section declaration.
	if pos >= len(raw) || raw[pos] != kindType {
		return h, ErrEOFMissingTypeSection
	}
	pos++
	typeSize, err := readU16()
	if err != nil {
		return h, err
	}
	if typeSize == 0 || typeSize%typeEntrySize != 0 {
		return h, ErrEOFTypeSizeInvalid
	}

	// Code section declaration.
	if pos >= len(raw) || raw[pos] != kindCode {
		return h, ErrEOFMissingCodeSection
	}
	pos++
	numCode, err := readU16()
	if err != nil {
		return h, err
	}
	if numCode == 0 {
		return h, ErrEOFZeroCodeSections
	}
	if numCode > maxCodeSections {
		return h, ErrEOFTooManyCodeSections
	}
	h.CodeSizes = make([]uint16, numCode)
	for i := range h.CodeSizes {
		size, err := readU16()
		if err != nil {
			return h, err
		}
		if size == 0 {
			return h, ErrEOFZeroCodeSize
		}
		h.CodeSizes[i] = size
	}
	if int(typeSize)/typeEntrySize != int(numCode) {
		return h, ErrEOFTypeSizeMismatch
	}

	// Optional container section declaration.
	if pos < len(raw) && raw[pos] == kindContainer {
		pos++
		numContainer, err := readU16()
		if err != nil {
			return h, err
		}
		if numContainer == 0 {
			return h, ErrEOFZeroContainerCount
		}
		if numContainer > maxContainerSections {
			return h, ErrEOFTooManyContainers
		}
		h.ContainerSizes = make([]uint16, numContainer)
		for i := range h.ContainerSizes {
			size, err := readU16()
			if err != nil {
				return h, err
			}
			if size == 0 {
				return h, ErrEOFZeroContainerSize
			}
			h.ContainerSizes[i] = size
		}
	}

	// Data section declaration. The declared size may be zero and, for
	// initcode containers, may exceed the bytes actually present.
	if pos >= len(raw) || raw[pos] != kindData {
		return h, ErrEOFMissingDataSection
	}
	pos++
	h.dataSizeOff = pos
	h.DataSize, err = readU16()
	if err != nil {
		return h, err
	}

	// Header terminator.
	if pos >= len(raw) {
		return h, ErrEOFMissingTerminator
	}
	if raw[pos] != kindTerminator {
		return h, fmt.Errorf("%w: 0x%02x", ErrEOFInvalidSectionKind, raw[pos])
	}
	pos++

	// Body layout: type entries, code sections, sub-containers, data.
	h.Types = make([]TypeSection, numCode)
	for i := range h.Types {
		if pos+typeEntrySize > len(raw) {
			return h, ErrEOFBodyTruncated
		}
		h.Types[i] = TypeSection{
			Inputs:   raw[pos],
			Outputs:  raw[pos+1],
			MaxStack: binary.BigEndian.Uint16(raw[pos+2 : pos+4]),
		}
		pos += typeEntrySize
	}
	if h.Types[0].Inputs != 0 || h.Types[0].Outputs != nonReturning {
		return h, ErrEOFInvalidFirstType
	}
	for _, t := range h.Types {
		if t.MaxStack > maxStackHeight {
			return h, ErrEOFMaxStackTooLarge
		}
	}

	h.CodeOffsets = make([]uint32, numCode)
	for i, size := range h.CodeSizes {
		if pos+int(size) > len(raw) {
			return h, ErrEOFBodyTruncated
		}
		h.CodeOffsets[i] = uint32(pos)
		pos += int(size)
	}

	h.ContainerOffsets = make([]uint32, len(h.ContainerSizes))
	for i, size := range h.ContainerSizes {
		if pos+int(size) > len(raw) {
			return h, ErrEOFBodyTruncated
		}
		h.ContainerOffsets[i] = uint32(pos)
		pos += int(size)
	}

	h.DataOffset = uint32(pos)
	remaining := len(raw) - pos
	if remaining > int(h.DataSize) {
		return h, ErrEOFTrailingBytes
	}
	return h, nil
}

// ParseEOF parses an EOF v1 container, returning the raw bytes coupled with
// the checked header. Instruction-level validation is a separate step (see
// ValidateContainer).
func ParseEOF(raw []byte) (*EOFContainer, error) {
	h, err := readEOFHeader(raw)
	if err != nil {
		return nil, err
	}
	return &EOFContainer{raw: raw, Header: h}, nil
}

// Raw returns the full container bytes.
func (c *EOFContainer) Raw() []byte { return c.raw }

// NumCodeSections returns the number of code sections.
func (c *EOFContainer) NumCodeSections() int { return len(c.Header.CodeSizes) }

// NumSubContainers returns the number of sub-container sections.
func (c *EOFContainer) NumSubContainers() int { return len(c.Header.ContainerSizes) }

// CodeSection returns the bytes of code section i.
func (c *EOFContainer) CodeSection(i int) []byte {
	off := c.Header.CodeOffsets[i]
	return c.raw[off : off+uint32(c.Header.CodeSizes[i])]
}

// SubContainer returns the raw bytes of sub-container i.
func (c *EOFContainer) SubContainer(i int) []byte {
	off := c.Header.ContainerOffsets[i]
	return c.raw[off : off+uint32(c.Header.ContainerSizes[i])]
}

// CodeBytes returns the contiguous bytes of all code sections, the slice the
// interpreter executes over.
func (c *EOFContainer) CodeBytes() []byte {
	first := c.Header.CodeOffsets[0]
	last := len(c.Header.CodeOffsets) - 1
	end := c.Header.CodeOffsets[last] + uint32(c.Header.CodeSizes[last])
	return c.raw[first:end]
}

// Data returns the data-section bytes actually present. For initcode
// containers this may be shorter than the declared size.
func (c *EOFContainer) Data() []byte {
	return c.raw[c.Header.DataOffset:]
}

// DataTruncated reports whether the declared data size exceeds the bytes
// actually present.
func (c *EOFContainer) DataTruncated() bool {
	return len(c.Data()) < int(c.Header.DataSize)
}

// ContainerBuilder assembles EOF v1 containers, mainly for tests and
// tooling. The declared data size defaults to the actual data length and
// can be overridden to build truncated (initcode-form) containers.
type ContainerBuilder struct {
	types        []TypeSection
	codes        [][]byte
	containers   [][]byte
	data         []byte
	declaredData int // -1 means "use len(data)"
}

// NewContainerBuilder returns an empty builder.
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{declaredData: -1}
}

// AddCode appends a code section with its type signature.
func (b *ContainerBuilder) AddCode(code []byte, inputs, outputs uint8, maxStack uint16) *ContainerBuilder {
	b.types = append(b.types, TypeSection{Inputs: inputs, Outputs: outputs, MaxStack: maxStack})
	b.codes = append(b.codes, code)
	return b
}

// AddContainer appends a sub-container section.
func (b *ContainerBuilder) AddContainer(raw []byte) *ContainerBuilder {
	b.containers = append(b.containers, raw)
	return b
}

// SetData sets the data section bytes.
func (b *ContainerBuilder) SetData(data []byte) *ContainerBuilder {
	b.data = data
	return b
}

// DeclareDataSize overrides the declared data size, allowing truncated-data
// containers.
func (b *ContainerBuilder) DeclareDataSize(size int) *ContainerBuilder {
	b.declaredData = size
	return b
}

// Build serializes the container.
func (b *ContainerBuilder) Build() []byte {
	numCode := len(b.codes)
	declared := b.declaredData
	if declared < 0 {
		declared = len(b.data)
	}

	buf := make([]byte, 0, 64)
	buf = append(buf, eofMagic0, eofMagic1, eofVersion)
	buf = append(buf, kindType)
	buf = binary.BigEndian.AppendUint16(buf, uint16(numCode*typeEntrySize))
	buf = append(buf, kindCode)
	buf = binary.BigEndian.AppendUint16(buf, uint16(numCode))
	for _, code := range b.codes {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(code)))
	}
	if len(b.containers) > 0 {
		buf = append(buf, kindContainer)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(b.containers)))
		for _, c := range b.containers {
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(c)))
		}
	}
	buf = append(buf, kindData)
	buf = binary.BigEndian.AppendUint16(buf, uint16(declared))
	buf = append(buf, kindTerminator)

	for _, t := range b.types {
		buf = append(buf, t.Inputs, t.Outputs)
		buf = binary.BigEndian.AppendUint16(buf, t.MaxStack)
	}
	for _, code := range b.codes {
		buf = append(buf, code...)
	}
	for _, c := range b.containers {
		buf = append(buf, c...)
	}
	buf = append(buf, b.data...)
	return buf
}
