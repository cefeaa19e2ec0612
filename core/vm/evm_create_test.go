package vm

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"github.com/globe-project/globe-evmone/core/types"
	"github.com/globe-project/globe-evmone/crypto"
)

const testGas = 10_000_000

func TestCreateEOFAddress(t *testing.T) {
	caller := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	salt := uint256.NewInt(0x1234)
	initcode := []byte{0xEF, 0x00, 0x01}

	// keccak256(0xFF ++ caller ++ salt ++ keccak256(initcode))[12:]
	saltBytes := salt.Bytes32()
	preimage := append([]byte{0xFF}, caller.Bytes()...)
	preimage = append(preimage, saltBytes[:]...)
	preimage = append(preimage, crypto.Keccak256(initcode)...)
	want := types.BytesToAddress(crypto.Keccak256(preimage)[12:])

	if got := CreateEOFAddress(caller, salt, initcode); got != want {
		t.Errorf("address = %s, want %s", got, want)
	}
}

// TestEofcreateEmptyAux deploys a sub-container with no aux data: the new
// account's code is exactly the deploy container, its nonce is 1, and the
// factory nonce is bumped once.
func TestEofcreateEmptyAux(t *testing.T) {
	evm, statedb := newTestEVM()

	deploy := deployContainer([]byte("abcdef"))
	initcode := initcodeReturning(deploy)
	factory := factoryCreating(initcode)

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}

	created := addressFromSlot(slot(statedb, factoryAddr, 0))
	wantAddr := CreateEOFAddress(factoryAddr, new(uint256.Int), initcode)
	if created != wantAddr {
		t.Fatalf("created address = %s, want %s", created, wantAddr)
	}
	if !bytes.Equal(statedb.GetCode(created), deploy) {
		t.Errorf("deployed code = %x, want %x", statedb.GetCode(created), deploy)
	}
	if statedb.GetNonce(created) != 1 {
		t.Errorf("created nonce = %d, want 1", statedb.GetNonce(created))
	}
	if statedb.GetNonce(factoryAddr) != 1 {
		t.Errorf("factory nonce = %d, want 1", statedb.GetNonce(factoryAddr))
	}
	if len(evm.ReturnData()) != 0 {
		t.Errorf("returndata = %d bytes, want 0", len(evm.ReturnData()))
	}
}

// TestEofcreateWithAux appends calldata as aux data and checks the deployed
// container carries it with the data size re-declared.
func TestEofcreateWithAux(t *testing.T) {
	evm, statedb := newTestEVM()

	deployData := []byte{0xAA, 0xBB}
	deploy := deployContainer(deployData)
	initcode := initcodeReturningCalldata(deploy)

	// The factory forwards its own calldata as the initcode input.
	factoryCode := []byte{
		byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(CALLDATACOPY),
		byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(PUSH0), // input_size, input_offset=0, salt, value
		byte(EOFCREATE), 0x00,
		byte(PUSH0), byte(SSTORE),
		byte(STOP),
	}
	factory := NewContainerBuilder().
		AddCode(factoryCode, 0, 0x80, 4).
		AddContainer(initcode).
		Build()

	aux := []byte{0x01, 0x02, 0x03, 0x04}
	factoryAddr, _, _, err := runFactory(evm, statedb, factory, aux, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}

	created := addressFromSlot(slot(statedb, factoryAddr, 0))
	if created.IsZero() {
		t.Fatal("creation failed, slot 0 is zero")
	}
	code := statedb.GetCode(created)
	wantData := append(append([]byte{}, deployData...), aux...)
	if want := deployContainer(wantData); !bytes.Equal(code, want) {
		t.Fatalf("deployed code = %x, want %x", code, want)
	}

	parsed, err := ParseEOF(code)
	if err != nil {
		t.Fatalf("deployed code does not parse: %v", err)
	}
	if !bytes.Equal(parsed.Data(), wantData) {
		t.Errorf("deployed data = %x, want %x", parsed.Data(), wantData)
	}
	if int(parsed.Header.DataSize) != len(wantData) {
		t.Errorf("declared data size = %d, want %d", parsed.Header.DataSize, len(wantData))
	}
	if parsed.DataTruncated() {
		t.Error("deployed container still truncated")
	}
}

// TestEofcreateAuxShorterThanDeclared: the deploy container declares one
// byte more than deploy data + aux provide. The creation hard-fails after
// the Charge stage: slot 0 stays zero, the factory nonce is still bumped.
func TestEofcreateAuxShorterThanDeclared(t *testing.T) {
	evm, statedb := newTestEVM()

	deployData := []byte{0xAA, 0xBB}
	aux := []byte{0x01, 0x02, 0x03}
	deploy := NewContainerBuilder().
		AddCode([]byte{byte(INVALID)}, 0, 0x80, 0).
		SetData(deployData).
		DeclareDataSize(len(deployData) + len(aux) + 1).
		Build()
	initcode := initcodeReturningCalldata(deploy)
	factory := NewContainerBuilder().
		AddCode([]byte{
			byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(CALLDATACOPY),
			byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(PUSH0),
			byte(EOFCREATE), 0x00,
			byte(PUSH0), byte(SSTORE),
			byte(STOP),
		}, 0, 0x80, 4).
		AddContainer(initcode).
		Build()

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, aux, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 1 {
		t.Errorf("factory nonce = %d, want 1", statedb.GetNonce(factoryAddr))
	}
}

// TestEofcreateDeployTooLarge: a deploy container over 0x6000 bytes
// hard-fails; the factory nonce is still bumped.
func TestEofcreateDeployTooLarge(t *testing.T) {
	evm, statedb := newTestEVM()

	bigData := make([]byte, MaxCodeSize+1) // container size > 0x6000
	deploy := deployContainer(bigData)
	initcode := initcodeReturning(deploy)
	factory := factoryCreating(initcode)

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 1 {
		t.Errorf("factory nonce = %d, want 1", statedb.GetNonce(factoryAddr))
	}
}

// TestEofcreateAppendedDataOver64K: aux data pushing the data section to
// exactly 2^16 hard-fails that creation; an adjacent EOFCREATE without aux
// succeeds. The factory nonce is bumped twice.
func TestEofcreateAppendedDataOver64K(t *testing.T) {
	evm, statedb := newTestEVM()

	deployData := []byte{0xAA}
	deploy := deployContainer(deployData)
	initcodeAux := initcodeReturningCalldata(deploy)
	initcodePlain := initcodeReturning(deploy)

	// slot0 = EOFCREATE(0) with huge aux, slot1 = EOFCREATE(1) without.
	factoryCode := []byte{
		byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(CALLDATACOPY),
		byte(CALLDATASIZE), byte(PUSH0), byte(PUSH0), byte(PUSH0),
		byte(EOFCREATE), 0x00,
		byte(PUSH0), byte(SSTORE),
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0),
		byte(EOFCREATE), 0x01,
		byte(PUSH1), 0x01, byte(SSTORE),
		byte(STOP),
	}
	factory := NewContainerBuilder().
		AddCode(factoryCode, 0, 0x80, 4).
		AddContainer(initcodeAux).
		AddContainer(initcodePlain).
		Build()

	// 65535 aux bytes + 1 byte of deploy data = 65536 = 2^16: over the
	// 16-bit data size field.
	aux := make([]byte, 65535)
	factoryAddr, _, _, err := runFactory(evm, statedb, factory, aux, 100_000_000)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}

	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	created := addressFromSlot(slot(statedb, factoryAddr, 1))
	if created.IsZero() {
		t.Fatal("second creation failed")
	}
	if !bytes.Equal(statedb.GetCode(created), deploy) {
		t.Errorf("second deployed code mismatch")
	}
	if statedb.GetNonce(factoryAddr) != 2 {
		t.Errorf("factory nonce = %d, want 2", statedb.GetNonce(factoryAddr))
	}
}

// TestEofcreateRevert: initcode REVERT happens after the Charge stage: the
// nonce bump is kept, the revert payload becomes the caller's returndata,
// nothing is deployed.
func TestEofcreateRevert(t *testing.T) {
	for _, payloadSize := range []byte{0, 13} {
		evm, statedb := newTestEVM()

		initcode := initcodeReverting(payloadSize)
		// Factory stores the creation result at slot 0 and the returndata
		// size at slot 1.
		factoryCode := []byte{
			byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0),
			byte(EOFCREATE), 0x00,
			byte(PUSH0), byte(SSTORE),
			byte(RETURNDATASIZE), byte(PUSH1), 0x01, byte(SSTORE),
			byte(STOP),
		}
		factory := NewContainerBuilder().
			AddCode(factoryCode, 0, 0x80, 4).
			AddContainer(initcode).
			Build()

		factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
		if err != nil {
			t.Fatalf("factory call failed: %v", err)
		}
		if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
			t.Errorf("slot 0 = %s, want zero", got)
		}
		gotSize := slot(statedb, factoryAddr, 1)
		if gotSize != types32(payloadSize) {
			t.Errorf("returndata size = %s, want %d", gotSize, payloadSize)
		}
		if statedb.GetNonce(factoryAddr) != 1 {
			t.Errorf("factory nonce = %d, want 1 (bump survives revert)", statedb.GetNonce(factoryAddr))
		}
	}
}

// TestEofcreateInitcodeAborts: STOP and INVALID halts of the initcode frame
// are hard failures; the nonce bump is kept and nothing is deployed.
func TestEofcreateInitcodeAborts(t *testing.T) {
	aborts := map[string][]byte{
		"stop":    {byte(STOP)},
		"invalid": {byte(INVALID)},
	}
	for name, code := range aborts {
		t.Run(name, func(t *testing.T) {
			evm, statedb := newTestEVM()

			initcode := NewContainerBuilder().
				AddCode(code, 0, 0x80, 0).
				Build()
			factory := factoryCreating(initcode)

			factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
			if err != nil {
				t.Fatalf("factory call failed: %v", err)
			}
			if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
				t.Errorf("slot 0 = %s, want zero", got)
			}
			if statedb.GetNonce(factoryAddr) != 1 {
				t.Errorf("factory nonce = %d, want 1", statedb.GetNonce(factoryAddr))
			}
			if len(evm.ReturnData()) != 0 {
				t.Errorf("returndata not cleared on hard failure")
			}
		})
	}
}

// TestEofcreateBalanceTooLow: a value-bearing EOFCREATE with insufficient
// balance is a pre-Charge light failure: no nonce bump.
func TestEofcreateBalanceTooLow(t *testing.T) {
	evm, statedb := newTestEVM()

	initcode := initcodeReturning(deployContainer(nil))
	factoryCode := []byte{
		byte(PUSH0), byte(PUSH0), byte(PUSH0), // input_size, input_offset, salt
		byte(PUSH32),
	}
	// value = 2^255: far beyond the factory balance.
	value := make([]byte, 32)
	value[0] = 0x80
	factoryCode = append(factoryCode, value...)
	factoryCode = append(factoryCode,
		byte(EOFCREATE), 0x00,
		byte(PUSH0), byte(SSTORE),
		byte(STOP),
	)
	factory := NewContainerBuilder().
		AddCode(factoryCode, 0, 0x80, 4).
		AddContainer(initcode).
		Build()

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 0 {
		t.Errorf("factory nonce = %d, want 0 (light failure)", statedb.GetNonce(factoryAddr))
	}
}

// TestEofcreateCollision: creating twice with the same salt collides; the
// second attempt hard-fails after the Charge stage.
func TestEofcreateCollision(t *testing.T) {
	evm, statedb := newTestEVM()

	initcode := initcodeReturning(deployContainer(nil))
	factoryCode := []byte{
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0),
		byte(EOFCREATE), 0x00,
		byte(PUSH0), byte(SSTORE),
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0),
		byte(EOFCREATE), 0x00,
		byte(PUSH1), 0x01, byte(SSTORE),
		byte(STOP),
	}
	factory := NewContainerBuilder().
		AddCode(factoryCode, 0, 0x80, 4).
		AddContainer(initcode).
		Build()

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if slot(statedb, factoryAddr, 0).IsZero() {
		t.Fatal("first creation failed")
	}
	if !slot(statedb, factoryAddr, 1).IsZero() {
		t.Error("second creation with same salt succeeded")
	}
	if statedb.GetNonce(factoryAddr) != 2 {
		t.Errorf("factory nonce = %d, want 2", statedb.GetNonce(factoryAddr))
	}
}

// TestEofcreateNestedRevert: the outer initcode performs a nested EOFCREATE
// and then reverts. The factory nonce is bumped once, the outer slot stays
// zero, and neither level deploys code.
func TestEofcreateNestedRevert(t *testing.T) {
	evm, statedb := newTestEVM()

	innerDeploy := deployContainer([]byte{0x01})
	innerInit := initcodeReturning(innerDeploy)

	// Outer initcode: nested EOFCREATE, then REVERT(0, 0).
	outerCode := []byte{
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0),
		byte(EOFCREATE), 0x00,
		byte(POP),
		byte(PUSH0), byte(PUSH0), byte(REVERT),
	}
	outerInit := NewContainerBuilder().
		AddCode(outerCode, 0, 0x80, 4).
		AddContainer(innerInit).
		Build()
	factory := factoryCreating(outerInit)

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 1 {
		t.Errorf("factory nonce = %d, want 1", statedb.GetNonce(factoryAddr))
	}

	// The inner creation's deployment was reverted with the outer frame.
	outerAddr := CreateEOFAddress(factoryAddr, new(uint256.Int), outerInit)
	innerAddr := CreateEOFAddress(outerAddr, new(uint256.Int), innerInit)
	if len(statedb.GetCode(outerAddr)) != 0 || len(statedb.GetCode(innerAddr)) != 0 {
		t.Error("reverted creation left deployed code behind")
	}
}

// TestEofcreateClearsReturndata: the caller's returndata is cleared on
// entry to the creation opcode and stays empty on success.
func TestEofcreateClearsReturndata(t *testing.T) {
	evm, statedb := newTestEVM()

	initcode := initcodeReturning(deployContainer(nil))
	// Store RETURNDATASIZE after a successful creation at slot 1.
	factoryCode := []byte{
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0),
		byte(EOFCREATE), 0x00,
		byte(PUSH0), byte(SSTORE),
		byte(RETURNDATASIZE), byte(PUSH1), 0x01, byte(SSTORE),
		byte(STOP),
	}
	factory := NewContainerBuilder().
		AddCode(factoryCode, 0, 0x80, 4).
		AddContainer(initcode).
		Build()

	factoryAddr, _, _, err := runFactory(evm, statedb, factory, nil, testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if slot(statedb, factoryAddr, 0).IsZero() {
		t.Fatal("creation failed")
	}
	if got := slot(statedb, factoryAddr, 1); !got.IsZero() {
		t.Errorf("returndata size after success = %s, want zero", got)
	}
}

// TestEofcreateDepthLimit: at the depth cap the creation light-fails.
func TestEofcreateDepthLimit(t *testing.T) {
	evm, statedb := newTestEVM()
	evm.depth = evm.Config.MaxCallDepth

	caller := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	statedb.CreateAccount(caller)
	contract := NewContract(caller, caller, new(uint256.Int), testGas)

	outcome := evm.eofCreate(contract, initcodeReturning(deployContainer(nil)), nil,
		new(uint256.Int), new(uint256.Int), false)
	if outcome.Kind != CreationLightFailure {
		t.Errorf("outcome = %v, want light failure", outcome.Kind)
	}
	if statedb.GetNonce(caller) != 0 {
		t.Errorf("caller nonce bumped on light failure")
	}
	if contract.Gas != testGas {
		t.Errorf("light failure consumed gas: %d left of %d", contract.Gas, testGas)
	}
}

// TestEofcreateNonceAtMax: a caller at the EIP-2681 nonce ceiling
// light-fails.
func TestEofcreateNonceAtMax(t *testing.T) {
	evm, statedb := newTestEVM()

	caller := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	statedb.CreateAccount(caller)
	statedb.SetNonce(caller, ^uint64(0))
	contract := NewContract(caller, caller, new(uint256.Int), testGas)

	outcome := evm.eofCreate(contract, initcodeReturning(deployContainer(nil)), nil,
		new(uint256.Int), new(uint256.Int), false)
	if outcome.Kind != CreationLightFailure {
		t.Errorf("outcome = %v, want light failure", outcome.Kind)
	}
	if statedb.GetNonce(caller) != ^uint64(0) {
		t.Errorf("nonce changed on light failure")
	}
}

// --- TXCREATE ---

func txcreateFactory() []byte {
	// Calldata layout: initcode hash (32 bytes). slot0 = TXCREATE result.
	code := []byte{
		byte(PUSH0), byte(CALLDATALOAD), // initcode_hash
		byte(PUSH0), byte(PUSH0), byte(PUSH0), byte(PUSH0), // input_size, input_offset, salt, value
		byte(TXCREATE),
		byte(PUSH0), byte(SSTORE),
		byte(STOP),
	}
	return NewContainerBuilder().
		AddCode(code, 0, 0x80, 5).
		Build()
}

func TestTxcreateDeploys(t *testing.T) {
	evm, statedb := newTestEVM()

	deploy := deployContainer([]byte("txdata"))
	initcode := initcodeReturning(deploy)
	evm.TxContext.TxType = types.InitcodesTxType
	evm.TxContext.Initcodes = NewInitcodeRegistry([][]byte{initcode})

	hash := crypto.Keccak256Hash(initcode)
	factoryAddr, _, _, err := runFactory(evm, statedb, txcreateFactory(), hash.Bytes(), testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}

	created := addressFromSlot(slot(statedb, factoryAddr, 0))
	if created.IsZero() {
		t.Fatal("TXCREATE failed")
	}
	if !bytes.Equal(statedb.GetCode(created), deploy) {
		t.Errorf("deployed code mismatch")
	}
	if statedb.GetNonce(factoryAddr) != 1 {
		t.Errorf("factory nonce = %d, want 1", statedb.GetNonce(factoryAddr))
	}
}

// TestTxcreateWrongTxType: outside an initcodes transaction the opcode
// light-fails.
func TestTxcreateWrongTxType(t *testing.T) {
	for _, txType := range []byte{types.LegacyTxType, types.DynamicFeeTx, types.BlobTxType} {
		evm, statedb := newTestEVM()
		evm.TxContext.TxType = txType

		hash := crypto.Keccak256Hash([]byte{})
		factoryAddr, _, _, err := runFactory(evm, statedb, txcreateFactory(), hash.Bytes(), testGas)
		if err != nil {
			t.Fatalf("factory call failed: %v", err)
		}
		if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
			t.Errorf("tx type %d: slot 0 = %s, want zero", txType, got)
		}
		if statedb.GetNonce(factoryAddr) != 0 {
			t.Errorf("tx type %d: nonce bumped", txType)
		}
	}
}

// TestTxcreateMissingInitcode: an unknown hash light-fails.
func TestTxcreateMissingInitcode(t *testing.T) {
	evm, statedb := newTestEVM()
	evm.TxContext.TxType = types.InitcodesTxType
	evm.TxContext.Initcodes = NewInitcodeRegistry([][]byte{initcodeReturning(deployContainer(nil))})

	unknown := types32(0x99)
	factoryAddr, _, _, err := runFactory(evm, statedb, txcreateFactory(), unknown.Bytes(), testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 0 {
		t.Errorf("nonce bumped on missing initcode")
	}
}

// TestTxcreateInvalidInitcode: initcode that fails EOF validation at
// TXCREATE time hard-fails without bumping the caller nonce.
func TestTxcreateInvalidInitcode(t *testing.T) {
	evm, statedb := newTestEVM()

	// Declared max_stack of 123 is inconsistent with the actual height.
	bad := NewContainerBuilder().
		AddCode([]byte{byte(PUSH0), byte(PUSH0), byte(RETURNCONTRACT), 0x00}, 0, 0x80, 123).
		AddContainer(minimalContainer()).
		Build()
	evm.TxContext.TxType = types.InitcodesTxType
	evm.TxContext.Initcodes = NewInitcodeRegistry([][]byte{bad})

	hash := crypto.Keccak256Hash(bad)
	factoryAddr, _, gasLeft, err := runFactory(evm, statedb, txcreateFactory(), hash.Bytes(), testGas)
	if err != nil {
		t.Fatalf("factory call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 0 {
		t.Errorf("factory nonce = %d, want 0 (validation precedes Charge)", statedb.GetNonce(factoryAddr))
	}
	// Hard failure consumed the child allotment.
	if gasLeft > testGas/2 {
		t.Errorf("hard failure left %d of %d gas", gasLeft, uint64(testGas))
	}
}

// TestLegacyCreateRejectsEOFInitcode: CREATE/CREATE2 with EOF initcode at
// Prague push 0 without bumping the caller nonce.
func TestLegacyCreateRejectsEOFInitcode(t *testing.T) {
	evm, statedb := newTestEVM()

	initcode := minimalContainer()
	// Legacy factory: MSTORE a word starting with the EOF magic and attempt
	// CREATE over it.
	var code []byte
	code = append(code, byte(PUSH32))
	word := make([]byte, 32)
	copy(word, initcode) // starts with 0xEF 0x00
	code = append(code, word...)
	code = append(code,
		byte(PUSH0), byte(MSTORE),
		byte(PUSH1), 32, byte(PUSH0), byte(PUSH0), // size, offset, value
		byte(CREATE),
		byte(PUSH0), byte(SSTORE),
		byte(STOP),
	)

	caller := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	factoryAddr := types.HexToAddress("0x00000000000000000000000000000000000000fb")
	statedb.CreateAccount(caller)
	statedb.CreateAccount(factoryAddr)
	statedb.SetCode(factoryAddr, code)

	_, _, err := evm.Call(caller, factoryAddr, nil, testGas, new(uint256.Int))
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got := slot(statedb, factoryAddr, 0); !got.IsZero() {
		t.Errorf("slot 0 = %s, want zero", got)
	}
	if statedb.GetNonce(factoryAddr) != 0 {
		t.Errorf("factory nonce = %d, want 0", statedb.GetNonce(factoryAddr))
	}
}

// TestLegacyCreateRejectsEOFDeployment: legacy initcode returning an
// 0xEF-prefixed blob fails the deposit (EIP-3541) and consumes the child
// gas, with the caller nonce bumped.
func TestLegacyCreateRejectsEOFDeployment(t *testing.T) {
	evm, statedb := newTestEVM()

	// Legacy initcode: MSTORE8(0, 0xEF); RETURN(0, 1).
	initcode := []byte{
		byte(PUSH1), 0xEF, byte(PUSH0), byte(MSTORE8),
		byte(PUSH1), 0x01, byte(PUSH0), byte(RETURN),
	}

	caller := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	statedb.CreateAccount(caller)
	statedb.AddBalance(caller, uint256.NewInt(1))

	_, addr, _, err := evm.Create(caller, initcode, testGas, new(uint256.Int))
	if err != ErrInvalidCode {
		t.Fatalf("err = %v, want %v", err, ErrInvalidCode)
	}
	if len(statedb.GetCode(addr)) != 0 {
		t.Error("EF-prefixed code was deployed")
	}
	if statedb.GetNonce(caller) != 1 {
		t.Errorf("caller nonce = %d, want 1", statedb.GetNonce(caller))
	}
}

func TestInitcodeRegistry(t *testing.T) {
	a := []byte{0x01, 0x02}
	b := []byte{0x03}
	r := NewInitcodeRegistry([][]byte{a, b, a})

	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
	got, ok := r.Get(crypto.Keccak256Hash(a))
	if !ok || !bytes.Equal(got, a) {
		t.Error("lookup of first initcode failed")
	}
	got, ok = r.Get(crypto.Keccak256Hash(b))
	if !ok || !bytes.Equal(got, b) {
		t.Error("lookup of second initcode failed")
	}
	if _, ok := r.Get(types32(0x01)); ok {
		t.Error("unknown hash resolved")
	}
	if _, ok := (*InitcodeRegistry)(nil).Get(types32(0x01)); ok {
		t.Error("nil registry resolved a hash")
	}
}
