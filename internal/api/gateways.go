package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
)

// GatewayView is a gateway snapshot plus the supervisor's live state.
type GatewayView struct {
	gateway.Snapshot

	// State is the connection state, or "idle" when no supervisor exists.
	State string `json:"state"`

	ReconnectAttempts int64 `json:"reconnect_attempts"`
}

// PublishRequest is the body of POST /gateways/{id}/messages.
type PublishRequest struct {
	// SubData is the routing key. Empty uses the gateway's publish default.
	SubData string `json:"sub_data"`

	// Payload is sent as-is.
	Payload string `json:"payload"`
}

func (s *Server) view(snap gateway.Snapshot) GatewayView {
	v := GatewayView{Snapshot: snap, State: "idle"}
	if sup, ok := s.gateways.Supervisor(snap.ID); ok {
		v.State = sup.State().String()
		v.ReconnectAttempts = sup.Attempts()
	}
	return v
}

// handleListGateways returns every configured gateway.
func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.gateways.List(r.Context())
	if err != nil {
		s.logger.Error("listing gateways failed", "error", err)
		writeInternalError(w, "failed to list gateways")
		return
	}

	views := make([]GatewayView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, s.view(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gateways": views,
		"count":    len(views),
	})
}

// handleGetGateway returns one gateway.
func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(w, r)
	if !ok {
		return
	}

	snap, err := s.gateways.Get(r.Context(), id)
	if err != nil {
		s.writeGatewayError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(snap))
}

// handleStartGateway starts a gateway or retries its first connect after
// an ERROR.
func (s *Server) handleStartGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(w, r)
	if !ok {
		return
	}

	if err := s.gateways.StartGateway(r.Context(), id); err != nil {
		s.writeGatewayError(w, id, err)
		return
	}
	s.logger.Info("gateway started by administrator", "gateway_id", id, "request_id", requestID(r.Context()))
	s.writeGateway(w, r, id)
}

// handleStopGateway stops a gateway's supervisor.
func (s *Server) handleStopGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(w, r)
	if !ok {
		return
	}

	if err := s.gateways.StopGateway(r.Context(), id); err != nil {
		s.writeGatewayError(w, id, err)
		return
	}
	s.logger.Info("gateway stopped by administrator", "gateway_id", id, "request_id", requestID(r.Context()))
	s.writeGateway(w, r, id)
}

// handlePublish sends a payload through a gateway. Delivery confirmation
// arrives asynchronously and is logged by the gateway.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(w, r)
	if !ok {
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.gateways.Publish(r.Context(), id, req.SubData, []byte(req.Payload)); err != nil {
		s.writeGatewayError(w, id, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "published",
		"gateway_id": id,
		"bytes":      len(req.Payload),
	})
}

func (s *Server) writeGateway(w http.ResponseWriter, r *http.Request, id int64) {
	snap, err := s.gateways.Get(r.Context(), id)
	if err != nil {
		s.writeGatewayError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(snap))
}

// writeGatewayError maps gateway errors onto HTTP statuses.
func (s *Server) writeGatewayError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, gateway.ErrGatewayNotFound):
		writeNotFound(w, "gateway not found")
	case errors.Is(err, gateway.ErrGatewayDisabled),
		errors.Is(err, gateway.ErrAlreadyConnected),
		errors.Is(err, gateway.ErrSupervisorStopped):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, gateway.ErrInvalidGateway),
		errors.Is(err, gateway.ErrUnsupportedNetwork):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeBadRequest, err.Error())
	case errors.Is(err, gateway.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "gateway manager is shutting down")
	case errors.Is(err, gateway.ErrConnectFailed):
		writeTransportError(w, ErrCodeConnectFailed, err)
	case errors.Is(err, gateway.ErrNotConnected):
		writeError(w, http.StatusConflict, ErrCodeNotConnected, err.Error())
	default:
		var te *gateway.TransportError
		if errors.As(err, &te) {
			writeTransportError(w, ErrCodeTransport, err)
			return
		}
		s.logger.Error("gateway operation failed", "gateway_id", id, "error", err)
		writeInternalError(w, "gateway operation failed")
	}
}

func writeTransportError(w http.ResponseWriter, code string, err error) {
	writeJSON(w, http.StatusBadGateway, Error{
		Status:  http.StatusBadGateway,
		Code:    code,
		Message: err.Error(),
		Reason:  gateway.ReasonCode(err),
	})
}

// gatewayID parses the {id} URL parameter, writing a 400 when invalid.
func gatewayID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "gateway id must be a positive integer")
		return 0, false
	}
	return id, true
}
