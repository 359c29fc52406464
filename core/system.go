package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/native/controller"
	"stablevault/native/measurer"
	"stablevault/native/oracle"
	"stablevault/native/token"
	"stablevault/native/vault"
)

var (
	// ErrSystemNotDeployed is returned by accessors before DeploySystem or
	// LoadSystem has bound the contracts.
	ErrSystemNotDeployed = fmt.Errorf("core: system not deployed: %w", common.ErrNotInitialized)
	// ErrSystemDeployed guards against deploying twice over the same store.
	ErrSystemDeployed = fmt.Errorf("core: system already deployed: %w", common.ErrAlreadyInitialized)
)

var systemKey = []byte("core/system")

// SystemConfig describes one deployment of the vault system.
type SystemConfig struct {
	StableToken     token.Metadata
	CollateralToken token.Metadata
	// InitialPrice, when positive, is published to the oracle as part of the
	// deployment.
	InitialPrice   *big.Int
	OracleMaxAge   time.Duration
	RateParameters measurer.RateParameters
}

// DefaultSystemConfig mirrors the stock deployment: a 6 decimal stable asset
// minted against a 12 decimal collateral asset with a 200% requirement.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		StableToken:     token.Metadata{Name: "Stable Dollar", Symbol: "USDV", Decimals: 6},
		CollateralToken: token.Metadata{Name: "Collateral", Symbol: "COL", Decimals: 12},
		RateParameters:  measurer.DefaultRateParameters(),
	}
}

// System records the addresses of one deployment.
type System struct {
	Owner           crypto.Address
	Oracle          crypto.Address
	StableToken     crypto.Address
	CollateralToken crypto.Address
	Measurer        crypto.Address
	Vault           crypto.Address
	Controller      crypto.Address
}

type deployment struct {
	system     System
	oracle     *oracle.Oracle
	stable     *token.Token
	collateral *token.Token
	measurer   *measurer.Measurer
	vault      *vault.Vault
	controller *controller.Controller
}

func (n *Node) instantiate(sys System) deployment {
	return deployment{
		system:     sys,
		oracle:     oracle.New(sys.Oracle, n.roles),
		stable:     token.New(sys.StableToken, n.roles),
		collateral: token.New(sys.CollateralToken, n.roles),
		measurer:   measurer.New(sys.Measurer, n.roles, n.contracts),
		vault:      vault.New(sys.Vault, n.roles, n.contracts),
		controller: controller.New(sys.Controller, n.roles, n.contracts),
	}
}

func (n *Node) bind(d deployment) {
	n.contracts.RegisterOracle(d.oracle)
	n.contracts.RegisterToken(d.stable)
	n.contracts.RegisterToken(d.collateral)
	n.contracts.RegisterMeasurer(d.measurer)
	n.contracts.RegisterVault(d.vault)
	n.contracts.RegisterController(d.controller)
	sys := d.system
	n.system = &sys
}

// DeploySystem creates and wires every contract on behalf of owner: oracle,
// stable token, collateral token, measurer, vault and controller, then binds
// the controller into the vault and grants the vault Minter and Burner on the
// stable token and the owner Setter. The owner also receives Minter on the
// collateral token so it can fund accounts. Everything happens in one atomic
// call.
func (n *Node) DeploySystem(owner crypto.Address, cfg SystemConfig) (System, error) {
	if owner.IsZero() {
		return System{}, fmt.Errorf("core: owner: %w", common.ErrZeroAddress)
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.system != nil {
		return System{}, ErrSystemDeployed
	}

	at := func(label string) crypto.Address { return crypto.ContractAddress(owner, label) }
	sys := System{
		Owner:           owner,
		Oracle:          at("oracle"),
		StableToken:     at("stable-token"),
		CollateralToken: at("collateral-token"),
		Measurer:        at("risk-measurer"),
		Vault:           at("vault"),
		Controller:      at("vault-controller"),
	}
	d := n.instantiate(sys)
	roles := n.roles
	err := n.execute("system_deploy", owner, func(ctx *common.Context) error {
		if ok, err := ctx.State().KVGet(systemKey, nil); err != nil {
			return err
		} else if ok {
			return ErrSystemDeployed
		}
		if err := d.oracle.Init(ctx, owner); err != nil {
			return err
		}
		if cfg.OracleMaxAge > 0 {
			if err := d.oracle.SetMaxAge(ctx, cfg.OracleMaxAge); err != nil {
				return err
			}
		}
		if cfg.InitialPrice != nil && cfg.InitialPrice.Sign() > 0 {
			if err := d.oracle.SetPrice(ctx, cfg.InitialPrice); err != nil {
				return err
			}
		}
		if err := d.stable.Init(ctx, cfg.StableToken, owner); err != nil {
			return fmt.Errorf("stable token: %w", err)
		}
		if err := d.collateral.Init(ctx, cfg.CollateralToken, owner); err != nil {
			return fmt.Errorf("collateral token: %w", err)
		}
		collateralMeta, err := d.collateral.Metadata(ctx)
		if err != nil {
			return err
		}
		if err := d.measurer.Init(ctx, sys.Oracle, owner, collateralMeta.Decimals); err != nil {
			return err
		}
		if err := d.vault.Init(ctx, owner, sys.Oracle, sys.CollateralToken, sys.StableToken); err != nil {
			return err
		}
		params := cfg.RateParameters
		if params.MaximumCollateralCoefficientE6 == nil {
			params = measurer.DefaultRateParameters()
		}
		if err := d.controller.Init(ctx, sys.Measurer, sys.Vault, owner, params); err != nil {
			return err
		}
		if err := d.controller.SetStableAddress(ctx, sys.StableToken); err != nil {
			return err
		}
		if err := d.vault.SetControllerAddress(ctx, sys.Controller); err != nil {
			return err
		}
		grants := []struct {
			tok     *token.Token
			role    common.Role
			account crypto.Address
		}{
			{d.stable, roles.Minter, sys.Vault},
			{d.stable, roles.Burner, sys.Vault},
			{d.stable, roles.Setter, owner},
			{d.stable, roles.Setter, sys.Controller},
			{d.collateral, roles.Minter, owner},
		}
		for _, g := range grants {
			if err := g.tok.SetupRole(ctx, g.role, g.account); err != nil {
				return fmt.Errorf("grant %s: %w", roles.Name(g.role), err)
			}
		}
		return ctx.State().KVPut(systemKey, sys)
	})
	if err != nil {
		return System{}, err
	}
	n.bind(d)
	n.logger.Info("system deployed",
		slog.String("owner", owner.String()),
		slog.String("vault", sys.Vault.String()),
		slog.String("controller", sys.Controller.String()))
	return sys, nil
}

// LoadSystem rebinds the contracts recorded by an earlier DeploySystem. It
// returns ErrSystemNotDeployed when the store holds no deployment.
func (n *Node) LoadSystem() (System, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.system != nil {
		return *n.system, nil
	}
	var sys System
	ok, err := n.state.KVGet(systemKey, &sys)
	if err != nil {
		return System{}, err
	}
	if !ok {
		return System{}, ErrSystemNotDeployed
	}
	n.bind(n.instantiate(sys))
	n.logger.Info("system loaded", slog.String("vault", sys.Vault.String()))
	return sys, nil
}

// System returns the bound deployment.
func (n *Node) System() (System, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.system == nil {
		return System{}, ErrSystemNotDeployed
	}
	return *n.system, nil
}

// Vault returns the deployed vault ledger.
func (n *Node) Vault() (*vault.Vault, error) {
	sys, err := n.System()
	if err != nil {
		return nil, err
	}
	return n.contracts.Vault(sys.Vault)
}

// StableToken returns the deployed stable asset ledger.
func (n *Node) StableToken() (*token.Token, error) {
	sys, err := n.System()
	if err != nil {
		return nil, err
	}
	return n.contracts.Token(sys.StableToken)
}

// CollateralToken returns the deployed collateral asset ledger.
func (n *Node) CollateralToken() (*token.Token, error) {
	sys, err := n.System()
	if err != nil {
		return nil, err
	}
	return n.contracts.Token(sys.CollateralToken)
}

// Oracle returns the deployed price oracle.
func (n *Node) Oracle() (*oracle.Oracle, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.oracleContract()
}

func (n *Node) oracleContract() (*oracle.Oracle, error) {
	if n.system == nil {
		return nil, ErrSystemNotDeployed
	}
	feed, err := n.contracts.PriceFeed(n.system.Oracle)
	if err != nil {
		return nil, err
	}
	o, ok := feed.(*oracle.Oracle)
	if !ok {
		return nil, errors.New("core: oracle has unexpected type")
	}
	return o, nil
}

// Measurer returns the deployed risk measurer.
func (n *Node) Measurer() (*measurer.Measurer, error) {
	sys, err := n.System()
	if err != nil {
		return nil, err
	}
	m, err := n.contracts.RiskMeasurer(sys.Measurer)
	if err != nil {
		return nil, err
	}
	concrete, ok := m.(*measurer.Measurer)
	if !ok {
		return nil, errors.New("core: measurer has unexpected type")
	}
	return concrete, nil
}

// Controller returns the deployed vault controller.
func (n *Node) Controller() (*controller.Controller, error) {
	sys, err := n.System()
	if err != nil {
		return nil, err
	}
	c, err := n.contracts.RiskController(sys.Controller)
	if err != nil {
		return nil, err
	}
	concrete, ok := c.(*controller.Controller)
	if !ok {
		return nil, errors.New("core: controller has unexpected type")
	}
	return concrete, nil
}
