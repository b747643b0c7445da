package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	MissingSlots []models.SlotName `json:"missing_slots,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// statusFor maps an error kind onto the HTTP status returned to clients
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindEmptyPayload, models.KindUnknownSlot, models.KindIncompleteRequest:
		return http.StatusBadRequest
	case models.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case models.KindPipelineTimeout:
		return http.StatusGatewayTimeout
	case models.KindMalformedPipelineOutput, models.KindLengthMismatch,
		models.KindServerError, models.KindUnexpectedResponseFormat:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	var perr *models.Error
	if !errors.As(err, &perr) {
		writeErrorStatus(w, http.StatusInternalServerError, "InternalError", err.Error())
		return
	}
	writeJSON(w, statusFor(perr.Kind), errorResponse{Error: errorBody{
		Code:         perr.Kind.String(),
		Message:      err.Error(),
		MissingSlots: perr.Slots,
		StatusCode:   perr.StatusCode,
	}})
}

func writeErrorStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("component", "api").Msg("Error encoding response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, data)
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Str("component", "api").Msg("Client went away before response was written")
	}
}
