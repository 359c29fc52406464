package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stablevault/core/events"
	"stablevault/core/state"
	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/native/controller"
	"stablevault/native/measurer"
	"stablevault/native/oracle"
	"stablevault/native/token"
	"stablevault/storage"
)

var genesis = time.Unix(1_700_000_000, 0)

func addr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

// directory wires the contracts of one test deployment together.
type directory struct {
	tokens      map[string]*token.Token
	oracles     map[string]*oracle.Oracle
	measurers   map[string]*measurer.Measurer
	controllers map[string]*controller.Controller
}

func (d *directory) TokenLedger(a crypto.Address) (TokenLedger, error) {
	if t, ok := d.tokens[a.String()]; ok {
		return t, nil
	}
	return nil, errors.New("unknown token")
}

func (d *directory) RiskController(a crypto.Address) (RiskController, error) {
	if c, ok := d.controllers[a.String()]; ok {
		return c, nil
	}
	return nil, errors.New("unknown controller")
}

func (d *directory) RiskMeasurer(a crypto.Address) (controller.RiskMeasurer, error) {
	if m, ok := d.measurers[a.String()]; ok {
		return m, nil
	}
	return nil, errors.New("unknown measurer")
}

func (d *directory) StableToken(a crypto.Address) (controller.StableToken, error) {
	if t, ok := d.tokens[a.String()]; ok {
		return t, nil
	}
	return nil, errors.New("unknown token")
}

func (d *directory) PriceFeed(a crypto.Address) (measurer.PriceFeed, error) {
	if o, ok := d.oracles[a.String()]; ok {
		return o, nil
	}
	return nil, errors.New("unknown oracle")
}

type stack struct {
	t          *testing.T
	state      *state.Manager
	roles      common.RoleSet
	owner      crypto.Address
	now        time.Time
	oracle     *oracle.Oracle
	stable     *token.Token
	collateral *token.Token
	controller *controller.Controller
	vault      *Vault
}

// oneCollateral is one whole unit of the 12 decimal collateral asset.
var oneCollateral = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{
		t:     t,
		state: state.NewManager(storage.NewMemDB()),
		roles: common.DefaultRoles(),
		owner: addr(1),
		now:   genesis,
	}
	dir := &directory{
		tokens:      map[string]*token.Token{},
		oracles:     map[string]*oracle.Oracle{},
		measurers:   map[string]*measurer.Measurer{},
		controllers: map[string]*controller.Controller{},
	}
	at := func(label string) crypto.Address { return crypto.ContractAddress(s.owner, label) }

	s.oracle = oracle.New(at("oracle"), s.roles)
	s.stable = token.New(at("stable"), s.roles)
	s.collateral = token.New(at("collateral"), s.roles)
	m := measurer.New(at("measurer"), s.roles, dir)
	s.vault = New(at("vault"), s.roles, dir)
	s.controller = controller.New(at("controller"), s.roles, dir)

	dir.oracles[s.oracle.Address().String()] = s.oracle
	dir.tokens[s.stable.Address().String()] = s.stable
	dir.tokens[s.collateral.Address().String()] = s.collateral
	dir.measurers[m.Address().String()] = m
	dir.controllers[s.controller.Address().String()] = s.controller

	ctx := s.as(s.owner)
	require.NoError(t, s.oracle.Init(ctx, s.owner))
	require.NoError(t, s.oracle.SetPrice(ctx, big.NewInt(1_000_000)))
	require.NoError(t, s.stable.Init(ctx, token.Metadata{Name: "Stable", Symbol: "USDV", Decimals: 6}, s.owner))
	require.NoError(t, s.collateral.Init(ctx, token.Metadata{Name: "Collateral", Symbol: "COL", Decimals: 12}, s.owner))
	require.NoError(t, m.Init(ctx, s.oracle.Address(), s.owner, 12))
	require.NoError(t, s.vault.Init(ctx, s.owner, s.oracle.Address(), s.collateral.Address(), s.stable.Address()))
	require.NoError(t, s.controller.Init(ctx, m.Address(), s.vault.Address(), s.owner, measurer.DefaultRateParameters()))
	require.NoError(t, s.vault.SetControllerAddress(ctx, s.controller.Address()))
	require.NoError(t, s.stable.SetupRole(ctx, s.roles.Minter, s.vault.Address()))
	require.NoError(t, s.stable.SetupRole(ctx, s.roles.Burner, s.vault.Address()))
	require.NoError(t, s.stable.SetupRole(ctx, s.roles.Setter, s.owner))
	require.NoError(t, s.collateral.SetupRole(ctx, s.roles.Minter, s.owner))
	return s
}

func (s *stack) as(caller crypto.Address) *common.Context {
	return common.NewContext(caller, s.state, s.now)
}

// fund mints collateral to user and approves the vault for it.
func (s *stack) fund(user crypto.Address, amount *big.Int) {
	s.t.Helper()
	require.NoError(s.t, s.collateral.Mint(s.as(s.owner), user, amount))
	require.NoError(s.t, s.collateral.Approve(s.as(user), s.vault.Address(), amount))
}

func (s *stack) details(id uint64) Details {
	s.t.Helper()
	d, err := s.vault.GetVaultDetails(s.as(s.owner), id)
	require.NoError(s.t, err)
	return d
}

func (s *stack) balance(tok *token.Token, who crypto.Address) *big.Int {
	s.t.Helper()
	bal, err := tok.BalanceOf(s.as(who), who)
	require.NoError(s.t, err)
	return bal
}

func TestCreateVaultMintsOwnershipToken(t *testing.T) {
	s := newStack(t)
	alice, bob := addr(2), addr(3)

	for i, who := range []crypto.Address{alice, bob, alice} {
		id, err := s.vault.CreateVault(s.as(who))
		require.NoError(t, err)
		require.EqualValues(t, i, id)
		holder, err := s.vault.OwnerOf(s.as(who), id)
		require.NoError(t, err)
		require.True(t, holder.Equal(who))
		supply, err := s.vault.TotalSupply(s.as(who))
		require.NoError(t, err)
		require.EqualValues(t, i+1, supply)
	}
	ids, err := s.vault.VaultsOf(s.as(alice), alice)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2}, ids)

	d := s.details(1)
	require.Zero(t, d.Collateral.Sign())
	require.Zero(t, d.Debt.Sign())
}

func TestDepositWithdrawDestroyScenario(t *testing.T) {
	s := newStack(t)
	user := addr(2)
	total := big.NewInt(1_000_000_000)
	half := new(big.Int).Quo(total, big.NewInt(2))
	s.fund(user, total)

	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, total))
	require.Equal(t, 0, s.details(id).Collateral.Cmp(total))
	require.Equal(t, 0, s.balance(s.collateral, s.vault.Address()).Cmp(total))

	got, err := s.vault.WithdrawCollateral(s.as(user), id, half)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(half))
	require.Equal(t, 0, s.details(id).Collateral.Cmp(new(big.Int).Sub(total, half)))

	got, err = s.vault.WithdrawCollateral(s.as(user), id, total)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(new(big.Int).Sub(total, half)))
	require.Zero(t, s.details(id).Collateral.Sign())
	require.Equal(t, 0, s.balance(s.collateral, user).Cmp(total))

	require.NoError(t, s.vault.DestroyVault(s.as(user), id))
	_, err = s.vault.GetVaultDetails(s.as(user), id)
	require.ErrorIs(t, err, common.ErrNotFound)
	supply, err := s.vault.TotalSupply(s.as(user))
	require.NoError(t, err)
	require.Zero(t, supply)
}

func TestDepositAboveAllowanceLeavesStateUnchanged(t *testing.T) {
	s := newStack(t)
	user := addr(2)
	s.fund(user, big.NewInt(100))
	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, big.NewInt(40)))

	ctx := s.as(user)
	err = s.vault.DepositCollateral(ctx, id, big.NewInt(61))
	require.ErrorIs(t, err, common.ErrTransferFailed)
	require.EqualValues(t, 40, s.details(id).Collateral.Int64())
	require.EqualValues(t, 60, s.balance(s.collateral, user).Int64())
	require.Empty(t, ctx.Events())

	err = s.vault.DepositCollateral(s.as(user), 99, big.NewInt(1))
	require.ErrorIs(t, err, common.ErrNotFound)
	err = s.vault.DepositCollateral(s.as(user), id, big.NewInt(0))
	require.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestThirdPartyMayDeposit(t *testing.T) {
	s := newStack(t)
	owner, sponsor := addr(2), addr(3)
	s.fund(sponsor, big.NewInt(500))
	id, err := s.vault.CreateVault(s.as(owner))
	require.NoError(t, err)

	require.NoError(t, s.vault.DepositCollateral(s.as(sponsor), id, big.NewInt(500)))
	require.EqualValues(t, 500, s.details(id).Collateral.Int64())

	_, err = s.vault.WithdrawCollateral(s.as(sponsor), id, big.NewInt(1))
	require.ErrorIs(t, err, common.ErrNotOwner)
}

func TestDestroyVaultErrors(t *testing.T) {
	s := newStack(t)
	owner, stranger := addr(2), addr(3)
	s.fund(owner, big.NewInt(10))
	id, err := s.vault.CreateVault(s.as(owner))
	require.NoError(t, err)

	require.ErrorIs(t, s.vault.DestroyVault(s.as(owner), 42), common.ErrNotFound)
	require.ErrorIs(t, s.vault.DestroyVault(s.as(stranger), id), common.ErrNotOwner)

	require.NoError(t, s.vault.DepositCollateral(s.as(owner), id, big.NewInt(10)))
	require.ErrorIs(t, s.vault.DestroyVault(s.as(owner), id), common.ErrNotEmpty)
	require.ErrorIs(t, s.vault.DestroyVault(s.as(stranger), id), common.ErrNotOwner)

	_, err = s.vault.WithdrawCollateral(s.as(owner), id, big.NewInt(10))
	require.NoError(t, err)
	require.NoError(t, s.vault.DestroyVault(s.as(owner), id))
	require.ErrorIs(t, s.vault.DestroyVault(s.as(owner), id), common.ErrNotFound)

	next, err := s.vault.CreateVault(s.as(owner))
	require.NoError(t, err)
	require.NotEqual(t, id, next)
}

func TestBorrowUpToCeiling(t *testing.T) {
	s := newStack(t)
	user := addr(2)
	s.fund(user, oneCollateral)
	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, oneCollateral))

	ceiling, err := s.vault.DebtCeiling(s.as(user), id)
	require.NoError(t, err)
	require.EqualValues(t, 500_000, ceiling.Int64())

	// The ceiling itself is out of reach: debt must stay strictly below it.
	require.ErrorIs(t, s.vault.Borrow(s.as(user), id, big.NewInt(500_000)), common.ErrInsufficientCollateral)
	require.ErrorIs(t, s.vault.Borrow(s.as(addr(9)), id, big.NewInt(1)), common.ErrNotOwner)
	require.NoError(t, s.vault.Borrow(s.as(user), id, big.NewInt(300_000)))
	require.NoError(t, s.vault.Borrow(s.as(user), id, big.NewInt(199_999)))
	require.ErrorIs(t, s.vault.Borrow(s.as(user), id, big.NewInt(1)), common.ErrInsufficientCollateral)

	require.EqualValues(t, 499_999, s.details(id).Debt.Int64())
	require.EqualValues(t, 499_999, s.balance(s.stable, user).Int64())
	debt, err := s.vault.TotalDebt(s.as(user))
	require.NoError(t, err)
	require.EqualValues(t, 499_999, debt.Int64())

	_, err = s.vault.WithdrawCollateral(s.as(user), id, big.NewInt(1))
	require.ErrorIs(t, err, common.ErrInsufficientCollateral)
	require.ErrorIs(t, s.vault.DestroyVault(s.as(user), id), common.ErrNotEmpty)
}

func TestPayBackClampsToDebt(t *testing.T) {
	s := newStack(t)
	user := addr(2)
	s.fund(user, oneCollateral)
	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, oneCollateral))
	require.NoError(t, s.vault.Borrow(s.as(user), id, big.NewInt(100_000)))

	paid, err := s.vault.PayBack(s.as(user), id, big.NewInt(40_000))
	require.NoError(t, err)
	require.EqualValues(t, 40_000, paid.Int64())
	require.EqualValues(t, 60_000, s.details(id).Debt.Int64())

	paid, err = s.vault.PayBack(s.as(user), id, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.EqualValues(t, 60_000, paid.Int64())
	require.Zero(t, s.details(id).Debt.Sign())
	require.Zero(t, s.balance(s.stable, user).Sign())
	supply, err := s.stable.TotalSupply(s.as(user))
	require.NoError(t, err)
	require.Zero(t, supply.Sign())

	got, err := s.vault.WithdrawCollateral(s.as(user), id, oneCollateral)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(oneCollateral))
	require.NoError(t, s.vault.DestroyVault(s.as(user), id))
}

func TestBuyRiskyVault(t *testing.T) {
	s := newStack(t)
	owner, buyer := addr(2), addr(3)
	s.fund(owner, oneCollateral)
	id, err := s.vault.CreateVault(s.as(owner))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(owner), id, oneCollateral))
	require.NoError(t, s.vault.Borrow(s.as(owner), id, big.NewInt(499_999)))
	require.NoError(t, s.stable.Transfer(s.as(owner), buyer, big.NewInt(150_000)))

	_, err = s.vault.BuyRiskyVault(s.as(buyer), id)
	require.ErrorIs(t, err, ErrPositionHealthy)

	require.NoError(t, s.oracle.SetPrice(s.as(s.owner), big.NewInt(800_000)))
	ctx := s.as(buyer)
	paid, err := s.vault.BuyRiskyVault(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 100_000, paid.Int64())

	holder, err := s.vault.OwnerOf(s.as(buyer), id)
	require.NoError(t, err)
	require.True(t, holder.Equal(buyer))
	require.EqualValues(t, 399_999, s.details(id).Debt.Int64())
	require.EqualValues(t, 50_000, s.balance(s.stable, buyer).Int64())

	var rec events.Recorder
	for _, e := range ctx.Events() {
		rec.Emit(e)
	}
	require.Contains(t, rec.Types(), events.TypeRiskyVaultBought)

	_, err = s.vault.WithdrawCollateral(s.as(owner), id, big.NewInt(1))
	require.ErrorIs(t, err, common.ErrNotOwner)
	_, err = s.vault.BuyRiskyVault(s.as(owner), id)
	require.ErrorIs(t, err, ErrPositionHealthy)
}

func TestBuyRiskyVaultAtCeiling(t *testing.T) {
	s := newStack(t)
	owner, buyer := addr(2), addr(3)
	s.fund(owner, oneCollateral)
	id, err := s.vault.CreateVault(s.as(owner))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(owner), id, oneCollateral))
	require.NoError(t, s.vault.Borrow(s.as(owner), id, big.NewInt(399_999)))
	require.NoError(t, s.stable.Transfer(s.as(owner), buyer, big.NewInt(10)))

	// Ceiling 400_000 at this price: one unit of headroom left.
	require.NoError(t, s.oracle.SetPrice(s.as(s.owner), big.NewInt(800_000)))
	_, err = s.vault.BuyRiskyVault(s.as(buyer), id)
	require.ErrorIs(t, err, ErrPositionHealthy)

	// Ceiling 399_999 equals the debt.
	require.NoError(t, s.oracle.SetPrice(s.as(s.owner), big.NewInt(799_998)))
	ceiling, err := s.vault.DebtCeiling(s.as(buyer), id)
	require.NoError(t, err)
	require.EqualValues(t, 399_999, ceiling.Int64())

	paid, err := s.vault.BuyRiskyVault(s.as(buyer), id)
	require.NoError(t, err)
	require.EqualValues(t, 1, paid.Int64())
	require.EqualValues(t, 399_998, s.details(id).Debt.Int64())
	require.EqualValues(t, 9, s.balance(s.stable, buyer).Int64())
	holder, err := s.vault.OwnerOf(s.as(buyer), id)
	require.NoError(t, err)
	require.True(t, holder.Equal(buyer))
}

func TestBuyRiskyVaultIgnoresDebtFreePositions(t *testing.T) {
	s := newStack(t)
	id, err := s.vault.CreateVault(s.as(addr(2)))
	require.NoError(t, err)
	_, err = s.vault.BuyRiskyVault(s.as(addr(3)), id)
	require.ErrorIs(t, err, ErrPositionHealthy)
	require.ErrorIs(t, err, common.ErrPositionHealthy)
	require.NotErrorIs(t, err, common.ErrUnauthorized)
}

func TestPauseBlocksBorrow(t *testing.T) {
	s := newStack(t)
	user := addr(2)
	s.fund(user, oneCollateral)
	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, oneCollateral))

	require.ErrorIs(t, s.vault.Pause(s.as(user)), common.ErrUnauthorized)
	require.NoError(t, s.vault.Pause(s.as(s.owner)))
	require.True(t, s.vault.Paused(s.as(user)))
	require.ErrorIs(t, s.vault.Borrow(s.as(user), id, big.NewInt(1)), common.ErrModulePaused)

	require.NoError(t, s.vault.Unpause(s.as(s.owner)))
	require.NoError(t, s.vault.Borrow(s.as(user), id, big.NewInt(1)))
}

func TestInterestAccruesPerSecond(t *testing.T) {
	s := newStack(t)
	user := addr(2)
	params := measurer.DefaultRateParameters()
	// Neutral stability sits on the 25 step plateau: 25 * 4e10 = 100% a year.
	params.InterestRateStepE12 = big.NewInt(40_000_000_000)
	require.NoError(t, s.controller.SetRateParameters(s.as(s.owner), params))

	s.fund(user, oneCollateral)
	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, oneCollateral))
	require.NoError(t, s.vault.Borrow(s.as(user), id, big.NewInt(100_000)))

	s.now = s.now.Add(secondsPerYear * time.Second)
	require.EqualValues(t, 200_000, s.details(id).Debt.Int64())

	paid, err := s.vault.PayBack(s.as(user), id, big.NewInt(100_000))
	require.NoError(t, err)
	require.EqualValues(t, 100_000, paid.Int64())
	totals, err := s.vault.Totals(s.as(user))
	require.NoError(t, err)
	require.EqualValues(t, 100_000, totals.Debt.Int64())
	require.EqualValues(t, 100_000, totals.AccruedInterest.Int64())
}

func TestTransferVaultMovesOwnership(t *testing.T) {
	s := newStack(t)
	alice, bob, carol := addr(2), addr(3), addr(4)
	id, err := s.vault.CreateVault(s.as(alice))
	require.NoError(t, err)

	require.ErrorIs(t, s.vault.TransferVault(s.as(bob), bob, id), common.ErrNotOwner)
	require.NoError(t, s.vault.ApproveVault(s.as(alice), bob, id))
	require.NoError(t, s.vault.TransferVault(s.as(bob), carol, id))

	holder, err := s.vault.OwnerOf(s.as(carol), id)
	require.NoError(t, err)
	require.True(t, holder.Equal(carol))
	require.ErrorIs(t, s.vault.DestroyVault(s.as(alice), id), common.ErrNotOwner)
	require.NoError(t, s.vault.DestroyVault(s.as(carol), id))
}

func TestSetControllerAddressOwnerOnly(t *testing.T) {
	s := newStack(t)
	other := crypto.ContractAddress(s.owner, "other-controller")
	require.ErrorIs(t, s.vault.SetControllerAddress(s.as(addr(5)), other), common.ErrUnauthorized)
	require.NoError(t, s.vault.SetControllerAddress(s.as(s.owner), other))
	got, err := s.vault.ControllerAddress(s.as(s.owner))
	require.NoError(t, err)
	require.True(t, got.Equal(other))

	user := addr(2)
	s.fund(user, oneCollateral)
	id, err := s.vault.CreateVault(s.as(user))
	require.NoError(t, err)
	require.NoError(t, s.vault.DepositCollateral(s.as(user), id, oneCollateral))
	require.ErrorIs(t, s.vault.Borrow(s.as(user), id, big.NewInt(1)), common.ErrNotInitialized)
}
