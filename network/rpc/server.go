// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a wallet over HTTP.
type Server struct {
	started int32
	cfg     Config
	wallet  wallet.Wallet

	router  *mux.Router
	limiter *ipLimiter
	metrics *metrics
}

func NewServer(cfg Config, w wallet.Wallet) *Server {
	server := &Server{
		cfg:     cfg,
		wallet:  w,
		router:  mux.NewRouter(),
		limiter: newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		metrics: newMetrics(),
	}
	if server.cfg.MaxBodyBytes <= 0 {
		server.cfg.MaxBodyBytes = Config{}.Default().MaxBodyBytes
	}

	server.router.Use(server.observe, server.rateLimit)
	server.router.HandleFunc(PathAddresses, server.addresses).Methods(http.MethodGet)
	server.router.HandleFunc(PathPay, server.pay).Methods(http.MethodPost)
	server.router.HandleFunc(PathSign, server.sign).Methods(http.MethodPost)
	server.router.HandleFunc(PathUnlock, server.sign).Methods(http.MethodPost)
	server.router.HandleFunc(PathBroadcast, server.broadcast).Methods(http.MethodPost)
	server.router.HandleFunc(PathRelease, server.release).Methods(http.MethodPost)
	if cfg.Metrics {
		server.router.Handle(PathMetrics, server.metrics.handler()).Methods(http.MethodGet)
	}
	return server
}

func (server *Server) Handler() http.Handler { return server.router }

// Run listens on the configured address and serves until ctx is done.
func (server *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", server.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "unable to listen")
	}
	return server.Serve(ctx, listener)
}

// Serve takes ownership of the listener and shuts the server down
// gracefully once ctx is done.
func (server *Server) Serve(ctx context.Context, listener net.Listener) error {
	if atomic.AddInt32(&server.started, 1) != 1 {
		return errors.New("server is already started")
	}

	httpServer := &http.Server{
		Handler:     server.router,
		ReadTimeout: server.cfg.ReadTimeout,
	}

	done := make(chan error, 1)
	go func() {
		log.Info().Str("address", listener.Addr().String()).Msg("Wallet API listening")
		done <- httpServer.Serve(listener)
	}()

	select {
	case err := <-done:
		return errors.Wrap(err, "wallet API stopped")
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down the wallet API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Can not stop wallet API gracefully")
		return err
	}
	<-done
	log.Info().Msg("Wallet API gracefully stopped")
	return nil
}

func (server *Server) addresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := server.wallet.Addresses(r.Context())
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	server.writeJSON(w, http.StatusOK, addrs)
}

func (server *Server) pay(w http.ResponseWriter, r *http.Request) {
	env, ok := server.readEnvelope(w, r)
	if !ok {
		return
	}
	tx, parents, _, err := env.Decode()
	if err != nil {
		server.writeError(w, r, err)
		return
	}

	funded, err := server.wallet.Pay(r.Context(), tx, parents)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	server.writeTx(w, r, funded)
}

func (server *Server) sign(w http.ResponseWriter, r *http.Request) {
	env, ok := server.readEnvelope(w, r)
	if !ok {
		return
	}
	tx, parents, locks, err := env.Decode()
	if err != nil {
		server.writeError(w, r, err)
		return
	}

	signed, err := server.wallet.Sign(r.Context(), tx, parents, locks)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	server.writeTx(w, r, signed)
}

func (server *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	server.acknowledge(w, r, server.wallet.Broadcast)
}

func (server *Server) release(w http.ResponseWriter, r *http.Request) {
	server.acknowledge(w, r, server.wallet.Release)
}

// acknowledge serves calls which take a transaction and answer {"ok": true}.
func (server *Server) acknowledge(w http.ResponseWriter, r *http.Request,
	call func(context.Context, *wire.MsgTx) error) {
	env, ok := server.readEnvelope(w, r)
	if !ok {
		return
	}
	tx, _, _, err := env.Decode()
	if err != nil {
		server.writeError(w, r, err)
		return
	}

	if err := call(r.Context(), tx); err != nil {
		server.writeError(w, r, err)
		return
	}
	server.writeJSON(w, http.StatusOK, BroadcastResponse{OK: true})
}

func (server *Server) readEnvelope(w http.ResponseWriter, r *http.Request) (*TxEnvelope, bool) {
	body := http.MaxBytesReader(w, r.Body, server.cfg.MaxBodyBytes)
	defer body.Close()

	env := new(TxEnvelope)
	err := json.NewDecoder(body).Decode(env)
	if err == io.EOF {
		err = errEmptyBody
	}
	if err != nil {
		server.writeError(w, r, wallet.NewError(wallet.CodeInvalidDraft, "bad envelope: %v", err))
		return nil, false
	}
	return env, true
}

func (server *Server) writeTx(w http.ResponseWriter, r *http.Request, tx *wire.MsgTx) {
	raw, err := txutils.EncodeTx(tx)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	server.writeJSON(w, http.StatusOK, TxResponse{RawTx: raw})
}

func (server *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := wallet.CodeOf(err)
	status := StatusCode(code)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Str("code", string(code)).Msg("Wallet request failed")

	message := err.Error()
	var we *wallet.Error
	if errors.As(err, &we) {
		message = we.Message
	}
	server.writeJSON(w, status, ErrorResponse{Error: &ErrorBody{Code: code, Message: message}})
}

func (server *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (server *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !server.limiter.allow(remoteIP(r)) {
			server.writeError(w, r, wallet.NewError(CodeRateLimited, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (server *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		server.metrics.observe(route, sw.status, started)
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Str("remote", remoteIP(r)).
			Int("status", sw.status).
			Dur("took", time.Since(started)).
			Msg("Wallet request")
	})
}
