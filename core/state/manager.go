package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"treasury/crypto"
	"treasury/storage"
)

// Manager reads and writes controller state on top of a key-value database.
// Keys are keccak256 hashes of a readable prefix and the record identity.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	liquidityPrefix  = []byte("liquidity:")
	makerPrefix      = []byte("maker:")
	balancePrefix    = []byte("balance:")
	controllerPrefix = []byte("controller:")
	controllerList   = ethcrypto.Keccak256([]byte("controller-list"))
)

func prefixedKey(prefix []byte, id string) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) put(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.put(kvKey(key), value)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// NativeBalance returns the native currency balance of addr in mutez.
func (m *Manager) NativeBalance(addr crypto.Address) (*uint256.Int, error) {
	data, err := m.get(prefixedKey(balancePrefix, addr.String()))
	if err != nil {
		return nil, err
	}
	out := new(uint256.Int)
	if len(data) == 0 {
		return out, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetNativeBalance overwrites the native balance of addr.
func (m *Manager) SetNativeBalance(addr crypto.Address, amount *uint256.Int) error {
	if addr.IsZero() {
		return fmt.Errorf("state: balance owner must be set")
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	return m.put(prefixedKey(balancePrefix, addr.String()), amount)
}

// CreditNative adds amount to the native balance of addr.
func (m *Manager) CreditNative(addr crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := m.NativeBalance(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("state: balance of %s overflows", addr)
	}
	return m.SetNativeBalance(addr, sum)
}

// ErrInsufficientBalance is returned when a debit exceeds the native balance.
var ErrInsufficientBalance = errors.New("state: insufficient native balance")

// DebitNative subtracts amount from the native balance of addr.
func (m *Manager) DebitNative(addr crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := m.NativeBalance(addr)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, addr, balance.Dec(), amount.Dec())
	}
	return m.SetNativeBalance(addr, new(uint256.Int).Sub(balance, amount))
}
