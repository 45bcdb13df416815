package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"

	"github.com/creastat/multicast"
	"github.com/creastat/multicast/protocol"
)

type healthResponse struct {
	Status string `json:"status"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origins are governed by the CORS policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, multicast.Describe(s.engine))
}

func (s *Server) handleMulticast(w http.ResponseWriter, r *http.Request) {
	var in protocol.InputMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&in); err != nil {
		s.writeJSON(w, http.StatusBadRequest,
			protocol.NewErrorMessage("", protocol.CodeBadRequest, "invalid request body", err.Error()))
		return
	}

	out, status := s.multicast(r, &in)
	s.writeJSON(w, status, out)
}

// handleStream multicasts every input frame received on the websocket and
// writes the result (or an error frame) back in order
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithModule("stream")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", telemetry.Err(err))
		return
	}
	defer conn.Close()

	for {
		var in protocol.InputMessage
		if err := conn.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				out := protocol.NewErrorMessage("", protocol.CodeBadRequest, "invalid message", err.Error())
				if err := conn.WriteJSON(out); err != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Stream closed", telemetry.Err(err))
			}
			return
		}

		out, _ := s.multicast(r, &in)
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn("Failed to write stream result", telemetry.Err(err))
			return
		}
	}
}

// multicast runs one input through the engine and renders the wire reply
// along with the HTTP status it maps to
func (s *Server) multicast(r *http.Request, in *protocol.InputMessage) (*protocol.OutputMessage, int) {
	if in.Type != "" && in.Type != protocol.InputMulticast {
		return protocol.NewErrorMessage(in.ID, protocol.CodeBadRequest, "unsupported message type", string(in.Type)),
			http.StatusBadRequest
	}

	msg := in.ToMessage()
	if err := s.engine.Process(r.Context(), msg); err != nil {
		code := protocol.ErrorCode(err)
		return protocol.NewErrorMessage(msg.ID, code, "multicast failed", err.Error()), statusFor(code)
	}

	return protocol.MessageToOutput(msg, protocol.OutputResult), http.StatusOK
}

func statusFor(code string) int {
	switch code {
	case protocol.CodeBadRequest:
		return http.StatusBadRequest
	case protocol.CodeUnavailable:
		return http.StatusServiceUnavailable
	case protocol.CodeBranch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := s.logger.WithModule("http")
		logger.Error("Failed to encode response", telemetry.Err(err))
	}
}
