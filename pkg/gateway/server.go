// Package gateway is the HTTP admission boundary. It accepts new signals
// from the sending application and hands them to the event loop; it never
// reads transport events itself.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/firstsignal/signalbot/pkg/config"
	"github.com/firstsignal/signalbot/pkg/logger"
	"github.com/firstsignal/signalbot/pkg/loop"
	"github.com/firstsignal/signalbot/pkg/signal"
)

// Admitter is the slice of the event loop the gateway needs.
type Admitter interface {
	Admit(ctx context.Context, req loop.AdmitRequest) (loop.AdmitReceipt, error)
}

type Server struct {
	srv      *http.Server
	admitter Admitter
}

func NewServer(cfg config.GatewayConfig, admitter Admitter) *Server {
	s := &Server{admitter: admitter}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/send", s.handleSend)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.InfoCF("gateway", "Admission gateway listening", map[string]interface{}{
			"addr": s.srv.Addr,
		})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type sendRequest struct {
	Handle       string `json:"handle"`
	ChatID       int64  `json:"chat_id"`
	Message      string `json:"message"`
	SenderHandle string `json:"sender_handle"`
}

type sendResponse struct {
	OK              bool   `json:"ok"`
	SignalID        string `json:"signal_id"`
	ChatID          int64  `json:"chat_id"`
	MessageID       int    `json:"message_id"`
	ImageMessageID  int    `json:"image_message_id,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "message is required"})
		return
	}

	receipt, err := s.admitter.Admit(r.Context(), loop.AdmitRequest{
		TargetHandle:  req.Handle,
		TargetAddress: signal.Address(req.ChatID),
		Message:       req.Message,
		SenderHandle:  req.SenderHandle,
	})
	if err != nil {
		switch {
		case errors.Is(err, loop.ErrNoTarget), errors.Is(err, loop.ErrTargetNotFound):
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		default:
			logger.ErrorCF("gateway", "Admission failed", map[string]interface{}{
				"error": err.Error(),
			})
			writeJSON(w, http.StatusBadGateway, errorResponse{Detail: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		OK:             true,
		SignalID:       receipt.SignalID,
		ChatID:         int64(receipt.Address),
		MessageID:      receipt.PromptMessageID,
		ImageMessageID: receipt.ImageMessageID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
