package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flightsurety/oracle/log"
)

// Wallet holds the fixed account pool derived from one mnemonic.
type Wallet struct {
	accounts []common.Address
	keys     map[common.Address]*ecdsa.PrivateKey
}

// New derives count accounts along hdPath, which carries a %d for the account index.
func New(mnemonic string, count int, hdPath string) (*Wallet, error) {
	if count <= 0 {
		return nil, fmt.Errorf("account count must be positive, got %d", count)
	}

	hd, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to open mnemonic: %w", err)
	}

	w := &Wallet{
		accounts: make([]common.Address, 0, count),
		keys:     make(map[common.Address]*ecdsa.PrivateKey, count),
	}

	for i := 0; i < count; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf(hdPath, i))
		if err != nil {
			return nil, fmt.Errorf("invalid derivation path %q: %w", hdPath, err)
		}

		account, err := hd.Derive(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to derive account %d: %w", i, err)
		}

		key, err := hd.PrivateKey(account)
		if err != nil {
			return nil, fmt.Errorf("failed to get private key of account %d: %w", i, err)
		}

		w.accounts = append(w.accounts, account.Address)
		w.keys[account.Address] = key
	}

	log.Debugf("derived %d accounts, first %s", count, w.accounts[0].Hex())

	return w, nil
}

// Accounts returns the pool in derivation order.
func (w *Wallet) Accounts() []common.Address {
	out := make([]common.Address, len(w.accounts))
	copy(out, w.accounts)
	return out
}

func (w *Wallet) Len() int {
	return len(w.accounts)
}

// Account returns the i-th derived address.
func (w *Wallet) Account(i int) (common.Address, error) {
	if i < 0 || i >= len(w.accounts) {
		return common.Address{}, fmt.Errorf("account %d outside pool of %d", i, len(w.accounts))
	}

	return w.accounts[i], nil
}

func (w *Wallet) Has(addr common.Address) bool {
	_, ok := w.keys[addr]
	return ok
}

// Transactor returns signing options for addr on the given chain.
func (w *Wallet) Transactor(addr common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	key, ok := w.keys[addr]
	if !ok {
		return nil, fmt.Errorf("account %s is not in the wallet", addr.Hex())
	}

	return bind.NewKeyedTransactorWithChainID(key, chainID)
}

// NewMnemonic generates a fresh 12-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	return bip39.NewMnemonic(entropy)
}

// DerivationPath formats hdPath for account i.
func DerivationPath(hdPath string, i int) accounts.DerivationPath {
	return hdwallet.MustParseDerivationPath(fmt.Sprintf(hdPath, i))
}
