package processor

import (
	"context"

	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/state"
)

// settle drains the user's free balances into the market's external
// value-holding vaults. Account order: market, user account, user owner
// (signer), base vault, quote vault.
func (p *Processor) settle(ctx context.Context, accounts []*AccountRef, data []byte) error {
	if len(data) != 0 {
		return cerrors.Wrap(cerrors.ErrInvalidInstructionData, "settle carries no params, got %d bytes", len(data))
	}
	if len(accounts) != 5 {
		return cerrors.Wrap(cerrors.ErrAccountCount, "expected 5 accounts, got %d", len(accounts))
	}
	market, user, userOwner := accounts[0], accounts[1], accounts[2]
	baseVaultRef, quoteVaultRef := accounts[3], accounts[4]

	if !userOwner.Signer {
		return cerrors.Wrap(cerrors.ErrMissingSigner, "user owner %s", userOwner.Rec.Key)
	}

	ms, err := loadMarket(market)
	if err != nil {
		return err
	}

	ua, err := state.LoadUser(user.Rec, userOwner.Rec.Key, market.Rec.Key)
	if err != nil {
		return err
	}

	baseVault, err := state.ParseVault(baseVaultRef.Rec)
	if err != nil {
		return err
	}
	quoteVault, err := state.ParseVault(quoteVaultRef.Rec)
	if err != nil {
		return err
	}
	if baseVault.Mint != ms.BaseMint {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "base vault mint %s does not match market", baseVault.Mint)
	}
	if quoteVault.Mint != ms.QuoteMint {
		return cerrors.Wrap(cerrors.ErrInvalidAccountKey, "quote vault mint %s does not match market", quoteVault.Mint)
	}

	baseOut, quoteOut := ua.BaseFree, ua.QuoteFree
	baseVault.Amount = checkedAdd(baseVault.Amount, baseOut, "base_vault")
	quoteVault.Amount = checkedAdd(quoteVault.Amount, quoteOut, "quote_vault")
	ua.BaseFree = 0
	ua.QuoteFree = 0

	baseVault.Write()
	quoteVault.Write()
	ua.Write()

	p.logger.Info("balances settled",
		zap.String("market", market.Rec.Key.String()),
		zap.String("user", user.Rec.Key.String()),
		zap.Uint64("base_out", baseOut),
		zap.Uint64("quote_out", quoteOut))
	return nil
}
