package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homestate-core/internal/state"
)

const (
	msgDeviceIDRequired = "Device ID is required"
	msgDeviceNotFound   = "Device not found"
	msgStateNotFound    = "Device state not found"
	msgInvalidBody      = "Invalid request body"
)

// handleGetAttribute answers GET /device-state/{attribute}?deviceId=<id>
// with the attribute's current value.
func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	attr, ok := s.attribute(w, r)
	if !ok {
		return
	}

	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeBadRequest(w, msgDeviceIDRequired)
		return
	}
	if !s.deviceExists(r.Context(), w, deviceID) {
		return
	}

	st, err := s.states.Snapshot(r.Context(), deviceID)
	if err != nil {
		s.writeStateError(w, deviceID, err)
		return
	}
	writeData(w, http.StatusOK, attr.Value(st))
}

// handleSetAttribute answers POST /device-state/{attribute} with body
// {"deviceId": "...", "<flag>": true|false}. The response carries the
// full snapshot after the change.
func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	attr, ok := s.attribute(w, r)
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		writeBadRequest(w, msgInvalidBody)
		return
	}

	var deviceID string
	if raw, ok := body["deviceId"]; ok {
		if err := json.Unmarshal(raw, &deviceID); err != nil {
			writeBadRequest(w, msgDeviceIDRequired)
			return
		}
	}
	if deviceID == "" {
		writeBadRequest(w, msgDeviceIDRequired)
		return
	}

	// Only a JSON literal true or false is accepted; null, strings and
	// numbers are rejected.
	var value *bool
	if raw, ok := body[attr.Flag()]; ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			value = nil
		}
	}
	if value == nil {
		writeBadRequest(w, attr.Flag()+" must be a boolean")
		return
	}

	if !s.deviceExists(r.Context(), w, deviceID) {
		return
	}

	st, err := s.states.Apply(r.Context(), deviceID, attr.Patch(*value))
	if err != nil {
		s.writeStateError(w, deviceID, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

func (s *Server) attribute(w http.ResponseWriter, r *http.Request) (state.Attribute, bool) {
	attr, err := state.ParseAttribute(chi.URLParam(r, "attribute"))
	if err != nil {
		writeNotFound(w, "Unknown attribute")
		return "", false
	}
	return attr, true
}

// deviceExists writes the failure response itself when it returns false.
func (s *Server) deviceExists(ctx context.Context, w http.ResponseWriter, deviceID string) bool {
	ok, err := s.registry.Exists(ctx, deviceID)
	if err != nil {
		s.logger.Error("device lookup failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "Internal server error")
		return false
	}
	if !ok {
		writeNotFound(w, msgDeviceNotFound)
		return false
	}
	return true
}

// writeStateError maps state errors: a missing record is 404, anything
// else is reported as a failed request.
func (s *Server) writeStateError(w http.ResponseWriter, deviceID string, err error) {
	switch {
	case errors.Is(err, state.ErrStateNotFound):
		writeNotFound(w, msgStateNotFound)
	case errors.Is(err, state.ErrEmptyUpdate):
		writeBadRequest(w, "No fields to update")
	default:
		s.logger.Error("state operation failed", "device_id", deviceID, "error", err)
		writeBadRequest(w, "Failed to access device state")
	}
}
