package responses

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an ErrorEnvelope. Untyped errors become
// CodeInternal; server errors are logged with their full chain and their
// messages never reach the client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	status, body := render(typed)

	if logg != nil {
		if status >= http.StatusInternalServerError {
			logg.Error(logg.WithFields(ctx, pkgerrors.Dump(typed).Fields()), "request.error", typed)
		} else {
			logg.Warn(logg.WithField(ctx, "error_code", body.Error.Code), "request.rejected")
		}
	}
	writeJSON(w, status, body)
}

func render(err *pkgerrors.Error) (int, ErrorEnvelope) {
	meta := pkgerrors.MetadataFor(err.Code())
	out := APIError{Code: string(err.Code()), Message: meta.PublicMessage}
	if m := err.Message(); meta.ExposeMessage && m != "" {
		out.Message = m
	}
	if meta.DetailsAllowed {
		out.Details = err.Details()
	}
	return meta.HTTPStatus, ErrorEnvelope{Error: out}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already sent, so an encode failure has no recovery
	_ = json.NewEncoder(w).Encode(payload)
}
