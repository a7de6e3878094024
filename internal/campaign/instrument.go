// internal/campaign/instrument.go
package campaign

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// InstrumentRef identifies a tradable token and the liquidity pool being watched.
// Pool may be empty when the feed is allowed to pick the deepest pool itself.
type InstrumentRef struct {
	Mint string `json:"mint" yaml:"mint"`
	Pool string `json:"pool,omitempty" yaml:"pool"`
}

// ParseInstrument validates both addresses as base58 Solana public keys.
func ParseInstrument(mint, pool string) (InstrumentRef, error) {
	ref := InstrumentRef{
		Mint: strings.TrimSpace(mint),
		Pool: strings.TrimSpace(pool),
	}
	if err := ref.Validate(); err != nil {
		return InstrumentRef{}, err
	}
	return ref, nil
}

// Validate checks that the mint (and the pool, when set) are valid public keys.
func (r InstrumentRef) Validate() error {
	if r.Mint == "" {
		return errors.New("mint cannot be empty")
	}
	if _, err := solana.PublicKeyFromBase58(r.Mint); err != nil {
		return fmt.Errorf("invalid mint %q: %w", r.Mint, err)
	}
	if r.Pool != "" {
		if _, err := solana.PublicKeyFromBase58(r.Pool); err != nil {
			return fmt.Errorf("invalid pool %q: %w", r.Pool, err)
		}
	}
	return nil
}

// Key is the routing key used to match feed ticks to campaigns.
func (r InstrumentRef) Key() string {
	if r.Pool == "" {
		return r.Mint
	}
	return r.Mint + "@" + r.Pool
}

// String returns a shortened, log friendly form of the reference.
func (r InstrumentRef) String() string {
	if r.Pool == "" {
		return shorten(r.Mint)
	}
	return shorten(r.Mint) + "@" + shorten(r.Pool)
}

func shorten(addr string) string {
	if len(addr) >= 8 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}
