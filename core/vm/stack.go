package vm

import "github.com/holiman/uint256"

// StackLimit is the maximum depth of the EVM operand stack.
const StackLimit = 1024

// Stack is the EVM operand stack of 256-bit words. Values are stored
// flat; Pop returns by value so no element ever aliases the backing array.
type Stack struct {
	data []uint256.Int
}

// NewStack returns a new empty stack with a small preallocated backing array.
func NewStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Push copies the value onto the stack.
func (st *Stack) Push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

// Pop removes and returns the top element.
func (st *Stack) Pop() uint256.Int {
	ret := st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return ret
}

// Peek returns a pointer to the top element without removing it.
func (st *Stack) Peek() *uint256.Int {
	return &st.data[len(st.data)-1]
}

// Back returns a pointer to the n'th element from the top (0 = top).
func (st *Stack) Back(n int) *uint256.Int {
	return &st.data[len(st.data)-1-n]
}

// Swap exchanges the top element with the n'th element from the top.
func (st *Stack) Swap(n int) {
	top := len(st.data) - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
}

// Dup duplicates the n'th element from the top (1 = top) onto the stack.
func (st *Stack) Dup(n int) {
	st.data = append(st.data, st.data[len(st.data)-n])
}

// Len returns the number of elements on the stack.
func (st *Stack) Len() int {
	return len(st.data)
}

// Data returns the backing slice, bottom first.
func (st *Stack) Data() []uint256.Int {
	return st.data
}
