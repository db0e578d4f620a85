package controllers

import (
	"net/http"

	"github.com/whistl-app/whistl-backend/api/responses"
	"github.com/whistl-app/whistl-backend/api/validators"
	"github.com/whistl-app/whistl-backend/internal/assistant"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/whistl-app/whistl-backend/pkg/logger"
)

// AssistantChat proxies one non-streaming completion for the in-app helper.
func AssistantChat(svc assistant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assistant unavailable"))
			return
		}

		if _, err := currentUserID(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body assistant.ChatRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.Complete(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
