// Package state provides a journaled in-memory implementation of the EVM
// host interface. Every mutation is recorded so nested creation and call
// frames can revert to a snapshot, matching the staged-commit semantics the
// creation state machine relies on.
package state

import (
	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/crypto"
)

// stateObject is one account's in-memory state.
type stateObject struct {
	nonce    uint64
	balance  *uint256.Int
	code     []byte
	codeHash types.Hash
	storage  map[types.Hash]types.Hash
}

func newStateObject() *stateObject {
	return &stateObject{
		balance:  new(uint256.Int),
		codeHash: types.EmptyCodeHash,
		storage:  make(map[types.Hash]types.Hash),
	}
}

// MemoryStateDB is an in-memory, journaled world state implementing
// vm.StateDB. It backs the test suites.
type MemoryStateDB struct {
	stateObjects map[types.Address]*stateObject
	journal      *journal

	accessAddrs map[types.Address]struct{}
	accessSlots map[types.Address]map[types.Hash]struct{}
}

// NewMemoryStateDB returns an empty world state.
func NewMemoryStateDB() *MemoryStateDB {
	return &MemoryStateDB{
		stateObjects: make(map[types.Address]*stateObject),
		journal:      newJournal(),
		accessAddrs:  make(map[types.Address]struct{}),
		accessSlots:  make(map[types.Address]map[types.Hash]struct{}),
	}
}

func (s *MemoryStateDB) getStateObject(addr types.Address) *stateObject {
	return s.stateObjects[addr]
}

// getOrNewStateObject fetches the account, creating (and journaling) it if
// absent.
func (s *MemoryStateDB) getOrNewStateObject(addr types.Address) *stateObject {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj
	}
	s.journal.append(createAccountChange{addr: addr, prev: nil})
	obj := newStateObject()
	s.stateObjects[addr] = obj
	return obj
}

// CreateAccount creates a fresh account at addr.
func (s *MemoryStateDB) CreateAccount(addr types.Address) {
	prev := s.stateObjects[addr]
	s.journal.append(createAccountChange{addr: addr, prev: prev})
	obj := newStateObject()
	if prev != nil {
		// Balance carries over on re-creation.
		obj.balance = new(uint256.Int).Set(prev.balance)
	}
	s.stateObjects[addr] = obj
}

// Exist reports whether an account is present in the state.
func (s *MemoryStateDB) Exist(addr types.Address) bool {
	return s.stateObjects[addr] != nil
}

// Empty reports whether the account is empty per EIP-161 (zero nonce, zero
// balance, no code).
func (s *MemoryStateDB) Empty(addr types.Address) bool {
	obj := s.stateObjects[addr]
	if obj == nil {
		return true
	}
	return obj.nonce == 0 && obj.balance.IsZero() && len(obj.code) == 0
}

// GetBalance returns a copy of the account balance.
func (s *MemoryStateDB) GetBalance(addr types.Address) *uint256.Int {
	if obj := s.stateObjects[addr]; obj != nil {
		return new(uint256.Int).Set(obj.balance)
	}
	return new(uint256.Int)
}

// AddBalance credits amount to addr.
func (s *MemoryStateDB) AddBalance(addr types.Address, amount *uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.balance)})
	obj.balance = new(uint256.Int).Add(obj.balance, amount)
}

// SubBalance debits amount from addr.
func (s *MemoryStateDB) SubBalance(addr types.Address, amount *uint256.Int) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.balance)})
	obj.balance = new(uint256.Int).Sub(obj.balance, amount)
}

// Transfer moves amount from one account to the other.
func (s *MemoryStateDB) Transfer(from, to types.Address, amount *uint256.Int) {
	s.SubBalance(from, amount)
	s.AddBalance(to, amount)
}

// GetNonce returns the account nonce.
func (s *MemoryStateDB) GetNonce(addr types.Address) uint64 {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj.nonce
	}
	return 0
}

// SetNonce sets the account nonce.
func (s *MemoryStateDB) SetNonce(addr types.Address, nonce uint64) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(nonceChange{addr: addr, prev: obj.nonce})
	obj.nonce = nonce
}

// GetCode returns the account code.
func (s *MemoryStateDB) GetCode(addr types.Address) []byte {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj.code
	}
	return nil
}

// SetCode stores code at addr and updates the code hash.
func (s *MemoryStateDB) SetCode(addr types.Address, code []byte) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(codeChange{addr: addr, prevCode: obj.code, prevHash: obj.codeHash})
	obj.code = code
	if len(code) > 0 {
		obj.codeHash = crypto.Keccak256Hash(code)
	} else {
		obj.codeHash = types.EmptyCodeHash
	}
}

// GetCodeHash returns the code hash, the zero hash for absent accounts.
func (s *MemoryStateDB) GetCodeHash(addr types.Address) types.Hash {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj.codeHash
	}
	return types.Hash{}
}

// GetCodeSize returns the deployed code length.
func (s *MemoryStateDB) GetCodeSize(addr types.Address) int {
	if obj := s.stateObjects[addr]; obj != nil {
		return len(obj.code)
	}
	return 0
}

// GetState returns the storage slot value.
func (s *MemoryStateDB) GetState(addr types.Address, key types.Hash) types.Hash {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj.storage[key]
	}
	return types.Hash{}
}

// SetState writes a storage slot.
func (s *MemoryStateDB) SetState(addr types.Address, key types.Hash, value types.Hash) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(storageChange{addr: addr, key: key, prev: obj.storage[key]})
	obj.storage[key] = value
}

// Snapshot marks the current journal position for a later revert.
func (s *MemoryStateDB) Snapshot() int {
	return s.journal.snapshot()
}

// RevertToSnapshot unwinds all changes recorded after the snapshot.
func (s *MemoryStateDB) RevertToSnapshot(id int) {
	s.journal.revertToSnapshot(id, s)
}

// AddAddressToAccessList warms an address (EIP-2929).
func (s *MemoryStateDB) AddAddressToAccessList(addr types.Address) {
	if _, ok := s.accessAddrs[addr]; ok {
		return
	}
	s.journal.append(accessListAddAccountChange{addr: addr})
	s.accessAddrs[addr] = struct{}{}
}

// AddressInAccessList reports whether an address is warm.
func (s *MemoryStateDB) AddressInAccessList(addr types.Address) bool {
	_, ok := s.accessAddrs[addr]
	return ok
}

// AddSlotToAccessList warms a storage slot.
func (s *MemoryStateDB) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	slots, ok := s.accessSlots[addr]
	if !ok {
		slots = make(map[types.Hash]struct{})
		s.accessSlots[addr] = slots
	}
	if _, ok := slots[slot]; ok {
		return
	}
	s.journal.append(accessListAddSlotChange{addr: addr, slot: slot})
	slots[slot] = struct{}{}
}

// SlotInAccessList reports warm status of an address and one of its slots.
func (s *MemoryStateDB) SlotInAccessList(addr types.Address, slot types.Hash) (bool, bool) {
	_, addrOk := s.accessAddrs[addr]
	slots, ok := s.accessSlots[addr]
	if !ok {
		return addrOk, false
	}
	_, slotOk := slots[slot]
	return addrOk, slotOk
}
