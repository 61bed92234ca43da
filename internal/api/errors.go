package api

import (
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/tuner/internal/finetune"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"` // provider's HTTP status, if it rejected the call
	Code    string `json:"code,omitempty"`
	Line    int    `json:"line,omitempty"`
}

var kindStatus = map[finetune.Kind]int{
	finetune.KindAuthentication: http.StatusUnauthorized,
	finetune.KindValidation:     http.StatusBadRequest,
	finetune.KindQuotaExceeded:  http.StatusTooManyRequests,
	finetune.KindInvalidState:   http.StatusConflict,
	finetune.KindNetwork:        http.StatusGatewayTimeout,
	finetune.KindRemoteService:  http.StatusBadGateway,
}

// writeError renders a client failure without changing its kind.
func writeError(w http.ResponseWriter, err error) {
	var fe *finetune.Error
	if !errors.As(err, &fe) {
		writeProblem(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	status, ok := kindStatus[fe.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]errorBody{"error": {
		Kind:    string(fe.Kind),
		Message: errorMessage(fe),
		Status:  fe.StatusCode,
		Code:    fe.Code,
		Line:    fe.Line,
	}})
}

func writeProblem(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: msg}})
}

// errorMessage is the user-facing text of a client failure: the provider's
// message, or the transport cause for errors that never reached it.
func errorMessage(err error) string {
	var fe *finetune.Error
	if !errors.As(err, &fe) {
		return err.Error()
	}
	if fe.Err != nil {
		return fe.Message + ": " + fe.Err.Error()
	}
	return fe.Message
}
