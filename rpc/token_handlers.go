package rpc

import (
	"math/big"
	"strings"

	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/native/token"
)

type tokenParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner,omitempty"`
	Spender string `json:"spender,omitempty"`
	To      string `json:"to,omitempty"`
	From    string `json:"from,omitempty"`
	Account string `json:"account,omitempty"`
	Role    string `json:"role,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type TokenMetadataResult struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// resolveToken accepts "stable", "collateral" or a token address.
func (s *Server) resolveToken(raw string) (*token.Token, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stable":
		return s.node.StableToken()
	case "collateral":
		return s.node.CollateralToken()
	}
	addr, err := parseAddress("token", raw)
	if err != nil {
		return nil, err
	}
	return s.node.Contracts().Token(addr)
}

func (s *Server) tokenArgs(req *RPCRequest) (*token.Token, tokenParams, error) {
	var params tokenParams
	if err := decodeParams(req, &params); err != nil {
		return nil, params, err
	}
	tok, err := s.resolveToken(params.Token)
	if err != nil {
		return nil, params, err
	}
	return tok, params, nil
}

func (s *Server) executeToken(c *callContext, req *RPCRequest, tok *token.Token, fn func(*common.Context) error) (interface{}, error) {
	if err := s.node.Execute(req.Method, c.caller, fn); err != nil {
		return nil, err
	}
	return map[string]interface{}{"token": tok.Address().String(), "ok": true}, nil
}

func (s *Server) handleTokenMetadata(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, _, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	var meta token.Metadata
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		meta, err = tok.Metadata(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return TokenMetadataResult{
		Address:  tok.Address().String(),
		Name:     meta.Name,
		Symbol:   meta.Symbol,
		Decimals: meta.Decimals,
	}, nil
}

func (s *Server) handleTokenBalanceOf(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		balance, err = tok.BalanceOf(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"owner": owner.String(), "balance": formatAmount(balance)}, nil
}

func (s *Server) handleTokenTotalSupply(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, _, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	var supply *big.Int
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		supply, err = tok.TotalSupply(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"token": tok.Address().String(), "totalSupply": formatAmount(supply)}, nil
}

func (s *Server) handleTokenAllowance(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", params.Spender)
	if err != nil {
		return nil, err
	}
	var allowance *big.Int
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		var err error
		allowance, err = tok.Allowance(ctx, owner, spender)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"owner": owner.String(), "spender": spender.String(), "allowance": formatAmount(allowance)}, nil
}

func (s *Server) roleArgs(params tokenParams) (common.Role, crypto.Address, error) {
	role, err := s.node.Roles().Parse(params.Role)
	if err != nil {
		return 0, crypto.Address{}, invalidParams("invalid role", err.Error())
	}
	account, err := parseAddress("account", params.Account)
	if err != nil {
		return 0, crypto.Address{}, err
	}
	return role, account, nil
}

func (s *Server) handleTokenHasRole(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	role, account, err := s.roleArgs(params)
	if err != nil {
		return nil, err
	}
	var has bool
	err = s.node.Query(c.caller, func(ctx *common.Context) error {
		has = tok.HasRole(ctx, role, account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"role":    s.node.Roles().Name(role),
		"account": account.String(),
		"hasRole": has,
	}, nil
}

func (s *Server) handleTokenTransfer(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	return s.executeToken(c, req, tok, func(ctx *common.Context) error {
		return tok.Transfer(ctx, to, amount)
	})
}

func (s *Server) handleTokenApprove(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	spender, err := parseAddress("spender", params.Spender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	return s.executeToken(c, req, tok, func(ctx *common.Context) error {
		return tok.Approve(ctx, spender, amount)
	})
}

func (s *Server) handleTokenSetupRole(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	role, account, err := s.roleArgs(params)
	if err != nil {
		return nil, err
	}
	return s.executeToken(c, req, tok, func(ctx *common.Context) error {
		return tok.SetupRole(ctx, role, account)
	})
}

func (s *Server) handleTokenMint(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	return s.executeToken(c, req, tok, func(ctx *common.Context) error {
		return tok.Mint(ctx, to, amount)
	})
}

func (s *Server) handleTokenBurn(c *callContext, req *RPCRequest) (interface{}, error) {
	tok, params, err := s.tokenArgs(req)
	if err != nil {
		return nil, err
	}
	from, err := parseAddress("from", params.From)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	return s.executeToken(c, req, tok, func(ctx *common.Context) error {
		return tok.Burn(ctx, from, amount)
	})
}
