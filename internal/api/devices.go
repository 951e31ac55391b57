package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homestate-core/internal/device"
	"github.com/nerrad567/homestate-core/internal/state"
)

// maxQueryParamLen limits query parameter length.
const maxQueryParamLen = 100

type createDeviceRequest struct {
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

type updateDeviceRequest struct {
	Name *string `json:"name"`
}

// handleListDevices returns all devices, or one user's devices with ?userId=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []device.Device
		err     error
	)
	if userID := r.URL.Query().Get("userId"); userID != "" {
		if len(userID) > maxQueryParamLen {
			writeBadRequest(w, "userId exceeds maximum length")
			return
		}
		devices, err = s.registry.ListDevicesByUser(r.Context(), userID)
	} else {
		devices, err = s.registry.ListDevices(r.Context())
	}
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "Failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeData(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDeviceError(w, err, "Failed to get device")
		return
	}
	writeData(w, http.StatusOK, dev)
}

// handleCreateDevice registers a device and seeds its state record.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, msgInvalidBody)
		return
	}

	dev := &device.Device{Name: req.Name, UserID: req.UserID}
	if err := s.registry.CreateDevice(r.Context(), dev); err != nil {
		s.writeDeviceError(w, err, "Failed to create device")
		return
	}
	writeData(w, http.StatusCreated, dev)
}

// handleUpdateDevice renames a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, msgInvalidBody)
		return
	}
	if req.Name == nil {
		writeBadRequest(w, "name is required")
		return
	}

	dev, err := s.registry.RenameDevice(r.Context(), chi.URLParam(r, "id"), *req.Name)
	if err != nil {
		s.writeDeviceError(w, err, "Failed to update device")
		return
	}
	writeData(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device together with its state and history,
// and drops its state channel.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		s.writeDeviceError(w, err, "Failed to delete device")
		return
	}
	s.states.Forget(id)
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// handleDeviceStats returns device registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.registry.GetStats())
}

// handleGetDeviceState returns the device's full snapshot.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deviceExists(r.Context(), w, id) {
		return
	}
	st, err := s.states.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrStateNotFound) {
			writeNotFound(w, msgStateNotFound)
			return
		}
		s.logger.Error("reading device state failed", "device_id", id, "error", err)
		writeInternalError(w, "Failed to get device state")
		return
	}
	writeData(w, http.StatusOK, st)
}

// handleGetDeviceHistory returns recorded snapshots, newest first.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "State history is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if !s.deviceExists(r.Context(), w, id) {
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading state history failed", "device_id", id, "error", err)
		writeInternalError(w, "Failed to get device history")
		return
	}
	writeData(w, http.StatusOK, entries)
}

// parseHistoryLimit parses ?limit=; empty means the repository default.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return limit, nil
}

func (s *Server) writeDeviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, msgDeviceNotFound)
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, "Device already exists")
	case isValidationError(err):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

// isValidationError checks whether err came from device validation.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidUser) ||
		errors.Is(err, device.ErrInvalidType)
}
