package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/device"
	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// historyTimeout bounds a journal query.
const historyTimeout = 5 * time.Second

func (s *Server) handleShowID(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, s.device.ShowID())
}

func (s *Server) handleShowCmd(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, s.device.ShowCmd())
}

func (s *Server) handleShowCount(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, s.device.ShowCount())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.Stats())
}

// CommandResponse is returned by PUT /device/cmd.
type CommandResponse struct {
	Command uint32 `json:"command"`
}

// handleStoreCmd writes the raw request body to the command register.
func (s *Server) handleStoreCmd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}

	value, err := s.device.StoreCmd(string(body))
	switch {
	case errors.Is(err, device.ErrInvalidArgument):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, device.ErrDetached):
		writeUnavailable(w, "device detached")
		return
	case err != nil:
		writeInternalError(w, err.Error())
		return
	}

	args := []any{"value", value, "request_id", r.Context().Value(ctxKeyRequestID)}
	if claims := claimsFrom(r.Context()); claims != nil {
		args = append(args, "subject", claims.Subject)
	}
	s.logger.Info("command written via api", args...)

	writeJSON(w, http.StatusOK, CommandResponse{Command: value})
}

// HistoryResponse is returned by GET /device/history.
type HistoryResponse struct {
	DeviceID string                `json:"device_id"`
	Entries  []device.JournalEntry `json:"entries"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "journal not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()

	entries, err := s.journal.History(ctx, s.device.ID(), limit)
	if err != nil {
		s.logger.Error("reading journal failed", "error", err)
		writeInternalError(w, "reading history failed")
		return
	}
	if entries == nil {
		entries = []device.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{DeviceID: s.device.ID(), Entries: entries})
}

// InterruptRequest is the optional body of POST /device/interrupt.
type InterruptRequest struct {
	// Status is latched into INT_STATUS before the line is raised.
	// Default: the command-buffer-dequeued bit.
	Status *uint32 `json:"status,omitempty"`
}

// InterruptResponse reports what was injected.
type InterruptResponse struct {
	Status    uint32 `json:"status"`
	Delivered bool   `json:"delivered"`
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if s.interrupter == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "interrupt injection requires simulated hardware")
		return
	}

	var req InterruptRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	bits := regs.IRQBufDeq
	if req.Status != nil {
		bits = *req.Status
	}

	delivered := s.interrupter.Trigger(bits)
	writeJSON(w, http.StatusAccepted, InterruptResponse{Status: bits, Delivered: delivered})
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	DeviceID string            `json:"device_id"`
	Checks   map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.version, DeviceID: s.device.ID()}
	status := http.StatusOK

	if !s.device.Stats().Attached {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			if err := c.HealthCheck(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
