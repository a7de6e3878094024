// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"
)

// ErrUnknownWallet is returned for a wallet name missing from the registry.
var ErrUnknownWallet = errors.New("unknown wallet")

// Wallet is a named Solana keypair.
type Wallet struct {
	Name       string
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet creates a wallet from a base58-encoded private key.
func NewWallet(name, privateKeyBase58 string) (*Wallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{
		Name:       name,
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Generate creates a wallet with a fresh random key.
func Generate(name string) (*Wallet, error) {
	privateKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Wallet{
		Name:       name,
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Sign signs payload with the wallet key.
func (w *Wallet) Sign(payload []byte) (solana.Signature, error) {
	return w.PrivateKey.Sign(payload)
}

// String returns the wallet's public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}

// fileConfig is the layout of the wallets YAML file.
type fileConfig struct {
	Wallets []struct {
		Name       string `yaml:"name"`
		PrivateKey string `yaml:"private_key"`
	} `yaml:"wallets"`
}

// Registry resolves wallet names used in sell and buy actions.
type Registry struct {
	mu      sync.RWMutex
	wallets map[string]*Wallet
}

// NewRegistry creates a registry holding the given wallets.
func NewRegistry(wallets ...*Wallet) *Registry {
	r := &Registry{wallets: make(map[string]*Wallet, len(wallets))}
	for _, w := range wallets {
		r.wallets[w.Name] = w
	}
	return r
}

// LoadRegistry reads wallets from a YAML file. Entries with a missing name
// or an invalid key are rejected.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(cfg.Wallets) == 0 {
		return nil, errors.New("no wallets found in configuration")
	}

	r := NewRegistry()
	for i, entry := range cfg.Wallets {
		if entry.Name == "" {
			return nil, fmt.Errorf("wallet %d: name cannot be empty", i)
		}
		if _, dup := r.wallets[entry.Name]; dup {
			return nil, fmt.Errorf("wallet %q defined twice", entry.Name)
		}
		w, err := NewWallet(entry.Name, entry.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet %q: %w", entry.Name, err)
		}
		r.wallets[entry.Name] = w
	}
	return r, nil
}

// Add registers or replaces a wallet.
func (r *Registry) Add(w *Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.Name] = w
}

// Get returns the named wallet.
func (r *Registry) Get(name string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWallet, name)
	}
	return w, nil
}

// Names returns the registered wallet names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.wallets))
	for name := range r.wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
