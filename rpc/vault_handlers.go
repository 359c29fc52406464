package rpc

import (
	"math/big"

	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/native/vault"
)

type vaultIDParams struct {
	ID *uint64 `json:"id"`
}

type vaultAmountParams struct {
	ID     *uint64 `json:"id"`
	Amount string  `json:"amount"`
}

type vaultTransferParams struct {
	ID *uint64 `json:"id"`
	To string  `json:"to"`
}

type vaultOwnerParams struct {
	Owner string `json:"owner"`
}

type VaultDetailsResult struct {
	ID         uint64 `json:"id"`
	Owner      string `json:"owner"`
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
}

type VaultTotalsResult struct {
	Positions       uint64 `json:"positions"`
	Collateral      string `json:"collateral"`
	Debt            string `json:"debt"`
	AccruedInterest string `json:"accruedInterest"`
	Paused          bool   `json:"paused"`
}

func detailsResult(d vault.Details) VaultDetailsResult {
	return VaultDetailsResult{
		ID:         d.ID,
		Owner:      d.Owner.String(),
		Collateral: formatAmount(d.Collateral),
		Debt:       formatAmount(d.Debt),
	}
}

func vaultIDArg(req *RPCRequest) (uint64, error) {
	var params vaultIDParams
	if err := decodeParams(req, &params); err != nil {
		return 0, err
	}
	return requireID("id", params.ID)
}

func vaultAmountArgs(req *RPCRequest) (uint64, *big.Int, error) {
	var params vaultAmountParams
	if err := decodeParams(req, &params); err != nil {
		return 0, nil, err
	}
	id, err := requireID("id", params.ID)
	if err != nil {
		return 0, nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return 0, nil, err
	}
	return id, amount, nil
}

// mutateVault runs fn as one committed call and returns the position as it
// stands afterwards.
func (s *Server) mutateVault(c *callContext, req *RPCRequest, id uint64, fn func(*common.Context, *vault.Vault) error) (interface{}, error) {
	v, err := s.node.Vault()
	if err != nil {
		return nil, err
	}
	var result VaultDetailsResult
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		if err := fn(ctx, v); err != nil {
			return err
		}
		d, err := v.GetVaultDetails(ctx, id)
		if err != nil {
			return err
		}
		result = detailsResult(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) queryVault(c *callContext, fn func(*common.Context, *vault.Vault) error) error {
	v, err := s.node.Vault()
	if err != nil {
		return err
	}
	return s.node.Query(c.caller, func(ctx *common.Context) error {
		return fn(ctx, v)
	})
}

func (s *Server) handleVaultCreate(c *callContext, req *RPCRequest) (interface{}, error) {
	v, err := s.node.Vault()
	if err != nil {
		return nil, err
	}
	var id uint64
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		var err error
		id, err = v.CreateVault(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": id, "owner": c.caller.String()}, nil
}

func (s *Server) handleVaultDeposit(c *callContext, req *RPCRequest) (interface{}, error) {
	id, amount, err := vaultAmountArgs(req)
	if err != nil {
		return nil, err
	}
	return s.mutateVault(c, req, id, func(ctx *common.Context, v *vault.Vault) error {
		return v.DepositCollateral(ctx, id, amount)
	})
}

func (s *Server) handleVaultWithdraw(c *callContext, req *RPCRequest) (interface{}, error) {
	id, amount, err := vaultAmountArgs(req)
	if err != nil {
		return nil, err
	}
	var withdrawn *big.Int
	details, err := s.mutateVault(c, req, id, func(ctx *common.Context, v *vault.Vault) error {
		var err error
		withdrawn, err = v.WithdrawCollateral(ctx, id, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"withdrawn": formatAmount(withdrawn), "vault": details}, nil
}

func (s *Server) handleVaultDestroy(c *callContext, req *RPCRequest) (interface{}, error) {
	id, err := vaultIDArg(req)
	if err != nil {
		return nil, err
	}
	v, err := s.node.Vault()
	if err != nil {
		return nil, err
	}
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		return v.DestroyVault(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": id, "destroyed": true}, nil
}

func (s *Server) handleVaultBorrow(c *callContext, req *RPCRequest) (interface{}, error) {
	id, amount, err := vaultAmountArgs(req)
	if err != nil {
		return nil, err
	}
	return s.mutateVault(c, req, id, func(ctx *common.Context, v *vault.Vault) error {
		return v.Borrow(ctx, id, amount)
	})
}

func (s *Server) handleVaultPayBack(c *callContext, req *RPCRequest) (interface{}, error) {
	id, amount, err := vaultAmountArgs(req)
	if err != nil {
		return nil, err
	}
	var repaid *big.Int
	details, err := s.mutateVault(c, req, id, func(ctx *common.Context, v *vault.Vault) error {
		var err error
		repaid, err = v.PayBack(ctx, id, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"repaid": formatAmount(repaid), "vault": details}, nil
}

func (s *Server) handleVaultBuyRisky(c *callContext, req *RPCRequest) (interface{}, error) {
	id, err := vaultIDArg(req)
	if err != nil {
		return nil, err
	}
	var paid *big.Int
	details, err := s.mutateVault(c, req, id, func(ctx *common.Context, v *vault.Vault) error {
		var err error
		paid, err = v.BuyRiskyVault(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"paid": formatAmount(paid), "vault": details}, nil
}

func (s *Server) handleVaultTransfer(c *callContext, req *RPCRequest) (interface{}, error) {
	var params vaultTransferParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, err := requireID("id", params.ID)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		return nil, err
	}
	return s.mutateVault(c, req, id, func(ctx *common.Context, v *vault.Vault) error {
		return v.TransferVault(ctx, to, id)
	})
}

func (s *Server) setPaused(c *callContext, req *RPCRequest, paused bool) (interface{}, error) {
	v, err := s.node.Vault()
	if err != nil {
		return nil, err
	}
	err = s.node.Execute(req.Method, c.caller, func(ctx *common.Context) error {
		if paused {
			return v.Pause(ctx)
		}
		return v.Unpause(ctx)
	})
	if err != nil {
		return nil, err
	}
	return map[string]bool{"paused": paused}, nil
}

func (s *Server) handleVaultPause(c *callContext, req *RPCRequest) (interface{}, error) {
	return s.setPaused(c, req, true)
}

func (s *Server) handleVaultUnpause(c *callContext, req *RPCRequest) (interface{}, error) {
	return s.setPaused(c, req, false)
}

func (s *Server) handleVaultDetails(c *callContext, req *RPCRequest) (interface{}, error) {
	id, err := vaultIDArg(req)
	if err != nil {
		return nil, err
	}
	var result VaultDetailsResult
	err = s.queryVault(c, func(ctx *common.Context, v *vault.Vault) error {
		d, err := v.GetVaultDetails(ctx, id)
		if err != nil {
			return err
		}
		result = detailsResult(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Server) handleVaultDebtCeiling(c *callContext, req *RPCRequest) (interface{}, error) {
	id, err := vaultIDArg(req)
	if err != nil {
		return nil, err
	}
	var ceiling *big.Int
	err = s.queryVault(c, func(ctx *common.Context, v *vault.Vault) error {
		var err error
		ceiling, err = v.DebtCeiling(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": id, "ceiling": formatAmount(ceiling)}, nil
}

func (s *Server) handleVaultOwnerOf(c *callContext, req *RPCRequest) (interface{}, error) {
	id, err := vaultIDArg(req)
	if err != nil {
		return nil, err
	}
	var owner crypto.Address
	err = s.queryVault(c, func(ctx *common.Context, v *vault.Vault) error {
		var err error
		owner, err = v.OwnerOf(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": id, "owner": owner.String()}, nil
}

func (s *Server) handleVaultList(c *callContext, req *RPCRequest) (interface{}, error) {
	var params vaultOwnerParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	err = s.queryVault(c, func(ctx *common.Context, v *vault.Vault) error {
		var err error
		ids, err = v.VaultsOf(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return map[string]interface{}{"owner": owner.String(), "ids": ids}, nil
}

func (s *Server) handleVaultTotals(c *callContext, _ *RPCRequest) (interface{}, error) {
	var result VaultTotalsResult
	err := s.queryVault(c, func(ctx *common.Context, v *vault.Vault) error {
		totals, err := v.Totals(ctx)
		if err != nil {
			return err
		}
		result = VaultTotalsResult{
			Positions:       totals.Positions,
			Collateral:      formatAmount(totals.Collateral),
			Debt:            formatAmount(totals.Debt),
			AccruedInterest: formatAmount(totals.AccruedInterest),
			Paused:          v.Paused(ctx),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
