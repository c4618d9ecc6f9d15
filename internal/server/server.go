// Package server exposes a Kit over a local HTTP API for hosts that cannot
// link Go, such as game engine runtimes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/logger"
	"github.com/yolodolo42/walletkit/internal/metrics"
	"github.com/yolodolo42/walletkit/internal/tx"
)

// RequestIDHeader carries the request ID in and out
const RequestIDHeader = "X-Request-ID"

// maxBody caps request bodies; typed data is the largest payload
const maxBody = 1 << 20

// Server routes HTTP requests to a Kit
type Server struct {
	kit       *connect.Kit
	approvals *Approvals
	metrics   *metrics.Metrics
	log       *slog.Logger
	engine    *gin.Engine
}

// New builds the router. approvals must be the Approver the Kit was built
// with for /v1/approvals to see anything. m and log may be nil.
func New(kit *connect.Kit, approvals *Approvals, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if approvals == nil {
		approvals = NewApprovals()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{kit: kit, approvals: approvals, metrics: m, log: log, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.requestID())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/connect", s.handleConnect)
	v1.GET("/account", s.handleAccount)
	v1.POST("/sign/message", s.handleSignMessage)
	v1.POST("/sign/typed-data", s.handleSignTypedData)
	v1.POST("/transactions", s.handleSendTransaction)
	v1.POST("/disconnect", s.handleDisconnect)
	v1.GET("/approvals", s.handleListApprovals)
	v1.POST("/approvals/:id", s.handleAnswerApproval)
	return s
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))

		start := time.Now()
		c.Next()
		logger.FromContext(c.Request.Context(), s.log).Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.kit.State().String()})
}

func (s *Server) handleConnect(c *gin.Context) {
	raw, ok := readBody(c)
	if !ok {
		return
	}
	conn, err := connect.ParseConnection(raw)
	if err != nil {
		writeKitError(c, err)
		return
	}
	acct, err := s.kit.Connect(c.Request.Context(), conn)
	if err != nil {
		writeKitError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct.Info())
}

// active writes 404 and returns nil when nothing is connected
func (s *Server) active(c *gin.Context) *connect.Account {
	acct := s.kit.Active()
	if acct == nil {
		writeError(c, http.StatusNotFound, errors.New("no active account"))
	}
	return acct
}

func (s *Server) handleAccount(c *gin.Context) {
	if acct := s.active(c); acct != nil {
		c.JSON(http.StatusOK, acct.Info())
	}
}

type signMessageBody struct {
	// Message is signed as UTF-8 text; Data as raw bytes
	Message string        `json:"message"`
	Data    hexutil.Bytes `json:"data"`
}

func (s *Server) handleSignMessage(c *gin.Context) {
	var body signMessageBody
	if !bind(c, &body) {
		return
	}
	msg := body.Data
	if len(msg) == 0 {
		msg = []byte(body.Message)
	}
	if len(msg) == 0 {
		writeError(c, http.StatusBadRequest, errors.New("message or data is required"))
		return
	}

	acct := s.active(c)
	if acct == nil {
		return
	}
	sig, err := acct.SignMessage(c.Request.Context(), msg)
	if err != nil {
		writeKitError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": hexutil.Bytes(sig)})
}

func (s *Server) handleSignTypedData(c *gin.Context) {
	var td apitypes.TypedData
	if !bind(c, &td) {
		return
	}
	acct := s.active(c)
	if acct == nil {
		return
	}
	sig, err := acct.SignTypedData(c.Request.Context(), td)
	if err != nil {
		writeKitError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature": hexutil.Bytes(sig)})
}

// sendBody accepts quantities as hex or decimal strings
type sendBody struct {
	To                   *common.Address       `json:"to"`
	Value                *math.HexOrDecimal256 `json:"value"`
	Data                 hexutil.Bytes         `json:"data"`
	Gas                  *math.HexOrDecimal64  `json:"gas"`
	Nonce                *math.HexOrDecimal64  `json:"nonce"`
	MaxFeePerGas         *math.HexOrDecimal256 `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *math.HexOrDecimal256 `json:"maxPriorityFeePerGas"`
}

func (b sendBody) request() tx.Request {
	req := tx.Request{To: b.To, Data: b.Data}
	if b.Value != nil {
		req.Value = (*big.Int)(b.Value)
	}
	if b.MaxFeePerGas != nil {
		req.MaxFeePerGas = (*big.Int)(b.MaxFeePerGas)
	}
	if b.MaxPriorityFeePerGas != nil {
		req.MaxPriorityFee = (*big.Int)(b.MaxPriorityFeePerGas)
	}
	if b.Gas != nil {
		gas := uint64(*b.Gas)
		req.Gas = &gas
	}
	if b.Nonce != nil {
		nonce := uint64(*b.Nonce)
		req.Nonce = &nonce
	}
	return req
}

func (s *Server) handleSendTransaction(c *gin.Context) {
	var body sendBody
	if !bind(c, &body) {
		return
	}
	acct := s.active(c)
	if acct == nil {
		return
	}
	hash, err := acct.SendTransaction(c.Request.Context(), body.request())
	if err != nil {
		writeKitError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.kit.Disconnect(c.Request.Context()); err != nil {
		writeKitError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"approvals": s.approvals.List()})
}

type answerBody struct {
	Code   string `json:"code"`
	Reject bool   `json:"reject"`
}

func (s *Server) handleAnswerApproval(c *gin.Context) {
	var body answerBody
	if !bind(c, &body) {
		return
	}
	id := c.Param("id")

	var err error
	if body.Reject {
		err = s.approvals.Reject(id)
	} else {
		err = s.approvals.Answer(id, body.Code)
	}
	switch {
	case errors.Is(err, ErrApprovalNotFound):
		writeError(c, http.StatusNotFound, err)
	case errors.Is(err, ErrNotAnswerable):
		writeError(c, http.StatusConflict, err)
	case err != nil:
		writeError(c, http.StatusInternalServerError, err)
	default:
		c.Status(http.StatusNoContent)
	}
}
