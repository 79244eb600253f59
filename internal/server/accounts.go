package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/ledger"
)

// Host-level provisioning endpoints. Account creation is not an instruction
// of the settlement program; these stand in for the external flows that
// create user accounts and vaults.

type createUserAccountRequest struct {
	Address      string `json:"address" binding:"required"`
	Owner        string `json:"owner" binding:"required"`
	Market       string `json:"market" binding:"required"`
	Capacity     uint32 `json:"capacity" binding:"required"`
	BaseDeposit  string `json:"base_deposit"`
	QuoteDeposit string `json:"quote_deposit"`
}

type createVaultRequest struct {
	Address string `json:"address" binding:"required"`
	Mint    string `json:"mint" binding:"required"`
}

// parseLots parses a decimal string as a whole number of lots. Decimal
// parsing keeps deposit amounts exact; fractional lots are rejected.
func parseLots(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, cerrors.Wrap(cerrors.ErrInvalidArgument, "malformed amount %q", s)
	}
	if !d.IsInteger() || d.IsNegative() {
		return 0, cerrors.Wrap(cerrors.ErrInvalidArgument, "amount %q is not a whole non-negative lot count", s)
	}
	return uint64(d.IntPart()), nil
}

func (s *Server) createUserAccount(c *gin.Context) {
	var req createUserAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request", "detail": err.Error()})
		return
	}
	addr, err := ledger.AddressFromHex(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed address", "detail": err.Error()})
		return
	}
	owner, err := ledger.AddressFromHex(req.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed owner", "detail": err.Error()})
		return
	}
	market, err := ledger.AddressFromHex(req.Market)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed market", "detail": err.Error()})
		return
	}
	baseLots, err := parseLots(req.BaseDeposit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed deposit", "detail": err.Error()})
		return
	}
	quoteLots, err := parseLots(req.QuoteDeposit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed deposit", "detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tx := ledger.Begin(s.store)
	rec, err := tx.GetOrCreate(ctx, addr, s.programID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable", "detail": err.Error()})
		return
	}
	if len(rec.Data) != 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
		return
	}
	ua := state.NewUserAccount(rec, owner, market, req.Capacity)
	ua.BaseFree = baseLots
	ua.QuoteFree = quoteLots
	ua.Write()
	if err := tx.Commit(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": addr.String()})
}

func (s *Server) createVault(c *gin.Context) {
	var req createVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request", "detail": err.Error()})
		return
	}
	addr, err := ledger.AddressFromHex(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed address", "detail": err.Error()})
		return
	}
	mint, err := ledger.AddressFromHex(req.Mint)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed mint", "detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tx := ledger.Begin(s.store)
	rec, err := tx.GetOrCreate(ctx, addr, s.programID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable", "detail": err.Error()})
		return
	}
	if len(rec.Data) != 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "vault already exists"})
		return
	}
	state.NewVault(rec, mint)
	if err := tx.Commit(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": addr.String()})
}
