// Package server exposes the instruction gateway: an HTTP surface that
// stages account records, runs the processor, and commits or discards the
// staged writes as one unit.
package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	cerrors "github.com/aureliax/dexcore/common/errors"
	"github.com/aureliax/dexcore/internal/dex/processor"
	"github.com/aureliax/dexcore/internal/dex/state"
	"github.com/aureliax/dexcore/internal/ledger"
)

// Server wires the gateway routes to the processor and the ledger store.
type Server struct {
	logger    *zap.Logger
	store     ledger.Store
	proc      *processor.Processor
	programID ledger.Address
	router    *gin.Engine
}

// New builds the gateway.
func New(logger *zap.Logger, store ledger.Store, proc *processor.Processor, programID ledger.Address) *Server {
	s := &Server{logger: logger, store: store, proc: proc, programID: programID}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestID())
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/instructions", s.submitInstruction)
	v1.GET("/accounts/:address", s.getAccount)
	v1.POST("/accounts", s.createUserAccount)
	v1.POST("/vaults", s.createVault)

	s.router = r
	return s
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

type accountRefDTO struct {
	Address string `json:"address" binding:"required"`
	Signer  bool   `json:"signer"`
}

type instructionRequest struct {
	Accounts []accountRefDTO `json:"accounts" binding:"required"`
	Data     string          `json:"data" binding:"required"`
}

// submitInstruction stages every referenced record, runs the processor, and
// commits all writes or none. A processor panic is recovered here, reported
// as a fatal category, and discards the staged writes like any other
// failure.
func (s *Server) submitInstruction(c *gin.Context) {
	var req instructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request", "detail": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload", "detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	tx := ledger.Begin(s.store)
	refs := make([]*processor.AccountRef, 0, len(req.Accounts))
	for _, a := range req.Accounts {
		addr, err := ledger.AddressFromHex(a.Address)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed address", "detail": err.Error()})
			return
		}
		rec, err := tx.GetOrCreate(ctx, addr, s.programID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable", "detail": err.Error()})
			return
		}
		refs = append(refs, &processor.AccountRef{Rec: rec, Signer: a.Signer})
	}

	if err := s.runInstruction(ctx, tx, refs, data); err != nil {
		tx.Discard()
		category := cerrors.Category(err)
		c.JSON(statusFor(category), gin.H{"error": category.Error(), "detail": err.Error()})
		return
	}
	if err := tx.Commit(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "committed"})
}

// runInstruction converts a fatal processor panic into an ErrFatal so the
// caller discards staged writes on every failure path.
func (s *Server) runInstruction(ctx context.Context, tx *ledger.Tx, refs []*processor.AccountRef, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("instruction aborted by invariant violation", zap.Any("panic", r))
			err = cerrors.Wrap(cerrors.ErrFatal, "%v", r)
		}
	}()
	return s.proc.Process(ctx, refs, data)
}

func statusFor(category error) int {
	switch category {
	case cerrors.ErrInvalidInstructionData, cerrors.ErrInvalidArgument, cerrors.ErrAccountCount:
		return http.StatusBadRequest
	case cerrors.ErrMissingSigner:
		return http.StatusUnauthorized
	case cerrors.ErrInvalidOwner, cerrors.ErrInvalidMarket, cerrors.ErrInvalidAccountKey:
		return http.StatusForbidden
	case cerrors.ErrInvalidState, cerrors.ErrEngine:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// getAccount returns a record with a decoded view when its tag is known.
func (s *Server) getAccount(c *gin.Context) {
	addr, err := ledger.AddressFromHex(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed address", "detail": err.Error()})
		return
	}
	rec, err := s.store.Get(c.Request.Context(), addr)
	if err == ledger.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable", "detail": err.Error()})
		return
	}
	resp := gin.H{
		"address": rec.Key.String(),
		"owner":   rec.Owner.String(),
		"data":    base64.StdEncoding.EncodeToString(rec.Data),
	}
	if ua, err := state.ParseUser(rec); err == nil {
		resp["user_account"] = gin.H{
			"owner":        ua.Owner.String(),
			"market":       ua.Market.String(),
			"base_free":    ua.BaseFree,
			"base_locked":  ua.BaseLocked,
			"quote_free":   ua.QuoteFree,
			"quote_locked": ua.QuoteLocked,
			"open_orders":  ua.OpenOrders(),
			"capacity":     ua.Capacity(),
		}
	} else if ms, err := state.ParseMarket(rec.Data); err == nil {
		resp["market"] = gin.H{
			"orderbook":      ms.Orderbook.String(),
			"engine_program": ms.EngineProgram.String(),
			"base_mint":      ms.BaseMint.String(),
			"quote_mint":     ms.QuoteMint.String(),
			"base_lot_size":  ms.BaseLotSize,
			"quote_lot_size": ms.QuoteLotSize,
		}
	} else if v, err := state.ParseVault(rec); err == nil {
		resp["vault"] = gin.H{"mint": v.Mint.String(), "amount": v.Amount}
	}
	c.JSON(http.StatusOK, resp)
}
