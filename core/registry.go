package core

import (
	"fmt"
	"sync"

	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/native/controller"
	"stablevault/native/measurer"
	"stablevault/native/oracle"
	"stablevault/native/token"
	"stablevault/native/vault"
)

var errUnknownContract = fmt.Errorf("core: contract: %w", common.ErrNotFound)

// Registry resolves contract addresses to the Go values that implement them.
// It backs every directory interface the native contracts depend on.
type Registry struct {
	mu          sync.RWMutex
	tokens      map[string]*token.Token
	oracles     map[string]*oracle.Oracle
	measurers   map[string]*measurer.Measurer
	controllers map[string]*controller.Controller
	vaults      map[string]*vault.Vault
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens:      make(map[string]*token.Token),
		oracles:     make(map[string]*oracle.Oracle),
		measurers:   make(map[string]*measurer.Measurer),
		controllers: make(map[string]*controller.Controller),
		vaults:      make(map[string]*vault.Vault),
	}
}

func (r *Registry) RegisterToken(t *token.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Address().String()] = t
}

func (r *Registry) RegisterOracle(o *oracle.Oracle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracles[o.Address().String()] = o
}

func (r *Registry) RegisterMeasurer(m *measurer.Measurer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurers[m.Address().String()] = m
}

func (r *Registry) RegisterController(c *controller.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[c.Address().String()] = c
}

func (r *Registry) RegisterVault(v *vault.Vault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaults[v.Address().String()] = v
}

// Token returns the fungible ledger at addr.
func (r *Registry) Token(addr crypto.Address) (*token.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tokens[addr.String()]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: token %s", errUnknownContract, addr)
}

// Vault returns the vault ledger at addr.
func (r *Registry) Vault(addr crypto.Address) (*vault.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.vaults[addr.String()]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: vault %s", errUnknownContract, addr)
}

// TokenLedger implements vault.Directory.
func (r *Registry) TokenLedger(addr crypto.Address) (vault.TokenLedger, error) {
	return r.Token(addr)
}

// RiskController implements vault.Directory.
func (r *Registry) RiskController(addr crypto.Address) (vault.RiskController, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.controllers[addr.String()]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: controller %s", errUnknownContract, addr)
}

// RiskMeasurer implements controller.Directory.
func (r *Registry) RiskMeasurer(addr crypto.Address) (controller.RiskMeasurer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.measurers[addr.String()]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: measurer %s", errUnknownContract, addr)
}

// StableToken implements controller.Directory.
func (r *Registry) StableToken(addr crypto.Address) (controller.StableToken, error) {
	return r.Token(addr)
}

// PriceFeed implements measurer.Directory.
func (r *Registry) PriceFeed(addr crypto.Address) (measurer.PriceFeed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.oracles[addr.String()]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("%w: oracle %s", errUnknownContract, addr)
}

var (
	_ vault.Directory      = (*Registry)(nil)
	_ controller.Directory = (*Registry)(nil)
	_ measurer.Directory   = (*Registry)(nil)
)
