package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-cloud/internal/door"
)

// setTargetRequest is the PUT /door/target payload.
type setTargetRequest struct {
	Target string `json:"target"`
}

// handleGetDoor returns the door's current status snapshot.
func (s *Server) handleGetDoor(w http.ResponseWriter, _ *http.Request) {
	if s.door == nil {
		writeNotFound(w, "door module is disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.door.Status())
}

// handleSetDoorTarget requests a door movement. A 202 response means the
// command was dispatched, not that the door finished moving; progress
// arrives over the WebSocket stream and the MQTT state topic.
func (s *Server) handleSetDoorTarget(w http.ResponseWriter, r *http.Request) {
	if s.door == nil {
		writeNotFound(w, "door module is disabled")
		return
	}

	var req setTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Target == "" {
		writeBadRequest(w, "target is required")
		return
	}

	err := s.door.RequestTargetByName(req.Target)
	switch {
	case errors.Is(err, door.ErrCommandInFlight):
		writeConflict(w, "a door command is already in flight")
		return
	case errors.Is(err, door.ErrInvalidTarget), errors.Is(err, door.ErrUnknownState):
		writeBadRequest(w, "target must be \"open\" or \"closed\"")
		return
	case err != nil:
		writeInternalError(w, "door command failed")
		return
	}

	writeJSON(w, http.StatusAccepted, s.door.Status())
}

// handleGetThrottle returns the dispatcher's throttle snapshot.
func (s *Server) handleGetThrottle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.ThrottleStats())
}
