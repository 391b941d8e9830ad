// Copyright (c) 2025 The Helix developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helix-chain/helix/helix"
	"github.com/helix-chain/helix/tx"
)

type mockAccount struct {
	balance  *big.Int
	nonce    uint64
	code     []byte
	storage  map[helix.Bytes32]helix.Bytes32
	suicided bool
}

func (a *mockAccount) copy() *mockAccount {
	cpy := &mockAccount{
		balance:  new(big.Int).Set(a.balance),
		nonce:    a.nonce,
		code:     a.code,
		storage:  make(map[helix.Bytes32]helix.Bytes32, len(a.storage)),
		suicided: a.suicided,
	}
	for k, v := range a.storage {
		cpy.storage[k] = v
	}
	return cpy
}

// mockState is a map backed StateDB. Snapshots are whole-state copies,
// which is plenty for test sized worlds.
type mockState struct {
	accounts  map[helix.Address]*mockAccount
	committed map[helix.Address]map[helix.Bytes32]helix.Bytes32
	refund    uint64
	logs      []*tx.Log

	warmAddrs map[helix.Address]bool
	warmSlots map[helix.Address]map[helix.Bytes32]bool

	snapshots []map[helix.Address]*mockAccount
}

func newMockState() *mockState {
	return &mockState{
		accounts:  make(map[helix.Address]*mockAccount),
		committed: make(map[helix.Address]map[helix.Bytes32]helix.Bytes32),
		warmAddrs: make(map[helix.Address]bool),
		warmSlots: make(map[helix.Address]map[helix.Bytes32]bool),
	}
}

func (m *mockState) account(addr helix.Address) *mockAccount {
	if a, ok := m.accounts[addr]; ok {
		return a
	}
	a := &mockAccount{balance: new(big.Int), storage: make(map[helix.Bytes32]helix.Bytes32)}
	m.accounts[addr] = a
	return a
}

func (m *mockState) CreateAccount(addr helix.Address) { m.account(addr) }

func (m *mockState) GetBalance(addr helix.Address) *big.Int {
	if a, ok := m.accounts[addr]; ok {
		return new(big.Int).Set(a.balance)
	}
	return new(big.Int)
}
func (m *mockState) AddBalance(addr helix.Address, v *big.Int) {
	a := m.account(addr)
	a.balance.Add(a.balance, v)
}
func (m *mockState) SubBalance(addr helix.Address, v *big.Int) {
	a := m.account(addr)
	a.balance.Sub(a.balance, v)
}

func (m *mockState) GetNonce(addr helix.Address) uint64 {
	if a, ok := m.accounts[addr]; ok {
		return a.nonce
	}
	return 0
}
func (m *mockState) SetNonce(addr helix.Address, n uint64) { m.account(addr).nonce = n }

func (m *mockState) GetCode(addr helix.Address) []byte {
	if a, ok := m.accounts[addr]; ok {
		return a.code
	}
	return nil
}
func (m *mockState) GetCodeHash(addr helix.Address) helix.Bytes32 {
	a, ok := m.accounts[addr]
	if !ok {
		return helix.Bytes32{}
	}
	return helix.Keccak256(a.code)
}
func (m *mockState) GetCodeSize(addr helix.Address) int      { return len(m.GetCode(addr)) }
func (m *mockState) SetCode(addr helix.Address, code []byte) { m.account(addr).code = code }

func (m *mockState) GetState(addr helix.Address, key helix.Bytes32) helix.Bytes32 {
	if a, ok := m.accounts[addr]; ok {
		return a.storage[key]
	}
	return helix.Bytes32{}
}
func (m *mockState) GetCommittedState(addr helix.Address, key helix.Bytes32) helix.Bytes32 {
	return m.committed[addr][key]
}
func (m *mockState) SetState(addr helix.Address, key, val helix.Bytes32) {
	m.account(addr).storage[key] = val
}

func (m *mockState) Exist(addr helix.Address) bool {
	_, ok := m.accounts[addr]
	return ok
}
func (m *mockState) Empty(addr helix.Address) bool {
	a, ok := m.accounts[addr]
	if !ok {
		return true
	}
	return a.nonce == 0 && a.balance.Sign() == 0 && len(a.code) == 0
}

func (m *mockState) AddRefund(v uint64) { m.refund += v }
func (m *mockState) SubRefund(v uint64) { m.refund -= v }
func (m *mockState) GetRefund() uint64  { return m.refund }

func (m *mockState) Selfdestruct(addr helix.Address) { m.account(addr).suicided = true }
func (m *mockState) HasSelfdestructed(addr helix.Address) bool {
	if a, ok := m.accounts[addr]; ok {
		return a.suicided
	}
	return false
}

func (m *mockState) AddressInAccessList(addr helix.Address) bool { return m.warmAddrs[addr] }
func (m *mockState) SlotInAccessList(addr helix.Address, slot helix.Bytes32) (bool, bool) {
	return m.warmAddrs[addr], m.warmSlots[addr][slot]
}
func (m *mockState) AddAddressToAccessList(addr helix.Address) { m.warmAddrs[addr] = true }
func (m *mockState) AddSlotToAccessList(addr helix.Address, slot helix.Bytes32) {
	slots, ok := m.warmSlots[addr]
	if !ok {
		slots = make(map[helix.Bytes32]bool)
		m.warmSlots[addr] = slots
	}
	slots[slot] = true
}

func (m *mockState) AddLog(l *tx.Log) { m.logs = append(m.logs, l) }

func (m *mockState) Snapshot() int {
	cpy := make(map[helix.Address]*mockAccount, len(m.accounts))
	for k, v := range m.accounts {
		cpy[k] = v.copy()
	}
	m.snapshots = append(m.snapshots, cpy)
	return len(m.snapshots) - 1
}
func (m *mockState) RevertToSnapshot(id int) {
	m.accounts = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
}

func newTestEVM(state StateDB, fork helix.ForkConfig) *EVM {
	ctx := Context{
		CanTransfer: func(db StateDB, addr helix.Address, v *big.Int) bool {
			return db.GetBalance(addr).Cmp(v) >= 0
		},
		Transfer: func(db StateDB, from, to helix.Address, v *big.Int) {
			db.SubBalance(from, v)
			db.AddBalance(to, v)
		},
		GetHash:     func(n uint64) helix.Bytes32 { return helix.Keccak256([]byte{byte(n)}) },
		GasPrice:    big.NewInt(1),
		BlockNumber: 100,
		Time:        1700000000,
		GasLimit:    10_000_000,
		ChainID:     7,
		Difficulty:  new(big.Int),
		BaseFee:     big.NewInt(10),
	}
	return NewEVM(ctx, state, fork, Config{})
}

var testCaller = helix.BytesToAddress([]byte("caller"))

func deployCode(state *mockState, addr helix.Address, code []byte) {
	state.account(addr).code = code
}

func TestArithmeticProgram(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// 3 + 2, store at mem 0, return 32 bytes
	code := []byte{
		byte(PUSH1), 2, byte(PUSH1), 3, byte(ADD),
		byte(PUSH1), 0, byte(MSTORE),
		byte(PUSH1), 32, byte(PUSH1), 0, byte(RETURN),
	}
	contractAddr := helix.BytesToAddress([]byte("arith"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	ret, leftover, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.NoError(t, err)
	assert.Len(t, ret, 32)
	assert.Equal(t, byte(5), ret[31])
	assert.Less(t, leftover, uint64(100000))
}

func TestRevertKeepsGasAndDiscardsWrites(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// sstore(1, 0xff) then revert with empty data
	code := []byte{
		byte(PUSH1), 0xff, byte(PUSH1), 1, byte(SSTORE),
		byte(PUSH1), 0, byte(PUSH1), 0, byte(REVERT),
	}
	contractAddr := helix.BytesToAddress([]byte("reverter"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, leftover, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.Equal(t, ErrExecutionReverted, err)
	assert.Greater(t, leftover, uint64(0), "revert must refund remaining gas")

	slot := helix.BytesToBytes32([]byte{1})
	assert.True(t, state.GetState(contractAddr, slot).IsZero(), "reverted store must not persist")
}

func TestOutOfGasConsumesAll(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	code := []byte{
		byte(PUSH1), 0xff, byte(PUSH1), 1, byte(SSTORE),
		byte(STOP),
	}
	contractAddr := helix.BytesToAddress([]byte("hungry"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, leftover, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 30, new(big.Int))
	assert.Error(t, err)
	assert.NotEqual(t, ErrExecutionReverted, err)
	assert.Zero(t, leftover)
}

func TestInvalidJump(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// jump into the middle of a push payload
	code := []byte{byte(PUSH1), 2, byte(JUMP), byte(JUMPDEST), byte(STOP)}
	contractAddr := helix.BytesToAddress([]byte("jumper"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.Equal(t, ErrInvalidJump, err)
}

func TestStackUnderflow(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	code := []byte{byte(ADD)}
	contractAddr := helix.BytesToAddress([]byte("underflow"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.IsType(t, ErrStackUnderflow{}, err)
}

func TestStaticCallWriteProtection(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	code := []byte{byte(PUSH1), 1, byte(PUSH1), 1, byte(SSTORE), byte(STOP)}
	contractAddr := helix.BytesToAddress([]byte("writer"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.StaticCall(AccountRef(testCaller), contractAddr, nil, 100000)
	assert.Equal(t, ErrWriteProtection, err)
	assert.True(t, state.GetState(contractAddr, helix.BytesToBytes32([]byte{1})).IsZero())
}

func TestCreateAndCallBack(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// runtime code: return 32 bytes with 0x2a at the end
	runtime := []byte{
		byte(PUSH1), 0x2a, byte(PUSH1), 0, byte(MSTORE),
		byte(PUSH1), 32, byte(PUSH1), 0, byte(RETURN),
	}
	// init code: copy runtime to memory and return it
	init := []byte{
		byte(PUSH1), byte(len(runtime)), byte(PUSH1), 12, byte(PUSH1), 0, byte(CODECOPY),
		byte(PUSH1), byte(len(runtime)), byte(PUSH1), 0, byte(RETURN),
	}
	assert.Equal(t, 12, len(init), "codecopy offset must match init code length")
	init = append(init, runtime...)

	evm := newTestEVM(state, helix.AllForks)
	_, addr, _, err := evm.Create(AccountRef(testCaller), init, 200000, new(big.Int))
	assert.NoError(t, err)
	assert.Equal(t, runtime, state.GetCode(addr))
	assert.Equal(t, uint64(1), state.GetNonce(addr), "created contract starts at nonce 1")

	ret, _, err := evm.Call(AccountRef(testCaller), addr, nil, 100000, new(big.Int))
	assert.NoError(t, err)
	assert.Equal(t, byte(0x2a), ret[31])
}

func TestCallRevertRestoresBalance(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1000)

	// callee reverts unconditionally
	code := []byte{byte(PUSH1), 0, byte(PUSH1), 0, byte(REVERT)}
	callee := helix.BytesToAddress([]byte("callee"))
	deployCode(state, callee, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), callee, nil, 100000, big.NewInt(700))
	assert.Equal(t, ErrExecutionReverted, err)
	assert.Equal(t, big.NewInt(1000), state.GetBalance(testCaller), "value transfer must be rolled back")
	assert.Equal(t, new(big.Int), state.GetBalance(callee))
}

func TestWarmAccessCheaper(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// two identical SLOADs of the same slot
	code := []byte{
		byte(PUSH1), 5, byte(SLOAD), byte(POP),
		byte(PUSH1), 5, byte(SLOAD), byte(POP),
		byte(STOP),
	}
	contractAddr := helix.BytesToAddress([]byte("warm"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	const supplied = 100000
	_, leftover, err := evm.Call(AccountRef(testCaller), contractAddr, nil, supplied, new(big.Int))
	assert.NoError(t, err)

	used := uint64(supplied) - leftover
	// PUSH1*2 + POP*2 + cold sload + warm sload
	expected := 2*GasFastestStep + 2*GasQuickStep + ColdSloadCostEIP2929 + WarmStorageReadCostEIP2929
	assert.Equal(t, expected, used)
}

func TestSelfdestructSendsBalance(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	beneficiary := helix.BytesToAddress([]byte("sink"))
	code := append([]byte{byte(PUSH20)}, beneficiary[:]...)
	code = append(code, byte(SELFDESTRUCT))
	contractAddr := helix.BytesToAddress([]byte("doomed"))
	deployCode(state, contractAddr, code)
	state.account(contractAddr).balance = big.NewInt(555)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.NoError(t, err)
	assert.True(t, state.HasSelfdestructed(contractAddr))
	assert.Equal(t, big.NewInt(555), state.GetBalance(beneficiary))
}

func TestLogEmission(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// log1 with topic 0x07 over 32 bytes of memory
	code := []byte{
		byte(PUSH1), 0xaa, byte(PUSH1), 0, byte(MSTORE),
		byte(PUSH1), 7, byte(PUSH1), 32, byte(PUSH1), 0, byte(LOG1),
		byte(STOP),
	}
	contractAddr := helix.BytesToAddress([]byte("logger"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.NoError(t, err)
	assert.Len(t, state.logs, 1)
	assert.Equal(t, contractAddr, state.logs[0].Address)
	assert.Equal(t, helix.BytesToBytes32([]byte{7}), state.logs[0].Topics[0])
	assert.Equal(t, byte(0xaa), state.logs[0].Data[31])
}

func TestChainContextOpcodes(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// return CHAINID
	code := []byte{
		byte(CHAINID), byte(PUSH1), 0, byte(MSTORE),
		byte(PUSH1), 32, byte(PUSH1), 0, byte(RETURN),
	}
	contractAddr := helix.BytesToAddress([]byte("env"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	ret, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.NoError(t, err)
	assert.Equal(t, byte(7), ret[31])
}

func TestPush0PreShanghaiInvalid(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	code := []byte{byte(PUSH0), byte(POP), byte(STOP)}
	contractAddr := helix.BytesToAddress([]byte("push0"))
	deployCode(state, contractAddr, code)

	preShanghai := helix.ForkConfig{Shanghai: 1 << 30}
	evm := newTestEVM(state, preShanghai)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.IsType(t, ErrInvalidOpCode{}, err)

	evm = newTestEVM(state, helix.AllForks)
	_, _, err = evm.Call(AccountRef(testCaller), contractAddr, nil, 100000, new(big.Int))
	assert.NoError(t, err)
}

func TestCallDepthLimit(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	contractAddr := helix.BytesToAddress([]byte("recursive"))
	// call self with all remaining gas, then stop
	code := []byte{
		byte(PUSH1), 0, byte(PUSH1), 0, byte(PUSH1), 0, byte(PUSH1), 0, byte(PUSH1), 0,
		byte(PUSH20),
	}
	code = append(code, contractAddr[:]...)
	code = append(code, byte(GAS), byte(CALL), byte(POP), byte(STOP))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 10_000_000, new(big.Int))
	// the 63/64 rule runs gas down before the hard depth limit faults, so
	// the outermost call still succeeds
	assert.NoError(t, err)
}

func TestPrecompileIdentity(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	evm := newTestEVM(state, helix.AllForks)
	input := []byte("echo me")
	ret, _, err := evm.Call(AccountRef(testCaller), helix.BytesToAddress([]byte{4}), input, 100000, new(big.Int))
	assert.NoError(t, err)
	assert.Equal(t, input, ret)
}

func TestPrecompileSha256(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	evm := newTestEVM(state, helix.AllForks)
	ret, _, err := evm.Call(AccountRef(testCaller), helix.BytesToAddress([]byte{2}), []byte("abc"), 100000, new(big.Int))
	assert.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		hex.EncodeToString(ret))
}

func TestMemoryArenaReuse(t *testing.T) {
	state := newMockState()
	state.account(testCaller).balance = big.NewInt(1e18)

	// callee expands memory to 64 bytes and returns
	callee := helix.BytesToAddress([]byte("memuser"))
	deployCode(state, callee, []byte{
		byte(PUSH1), 1, byte(PUSH1), 63, byte(MSTORE8), byte(STOP),
	})

	// caller calls callee twice
	var code []byte
	for i := 0; i < 2; i++ {
		code = append(code,
			byte(PUSH1), 0, byte(PUSH1), 0, byte(PUSH1), 0, byte(PUSH1), 0, byte(PUSH1), 0,
			byte(PUSH20))
		code = append(code, callee[:]...)
		code = append(code, byte(GAS), byte(CALL), byte(POP))
	}
	code = append(code, byte(STOP))
	contractAddr := helix.BytesToAddress([]byte("memcaller"))
	deployCode(state, contractAddr, code)

	evm := newTestEVM(state, helix.AllForks)
	_, _, err := evm.Call(AccountRef(testCaller), contractAddr, nil, 1_000_000, new(big.Int))
	assert.NoError(t, err)
	// after the outer frame returned, the arena must be fully truncated
	assert.Zero(t, len(evm.arena.buf))
}
