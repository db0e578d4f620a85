package controllers

import (
	"net/http"

	"github.com/whistl-app/whistl-backend/api/responses"
	"github.com/whistl-app/whistl-backend/api/validators"
	"github.com/whistl-app/whistl-backend/internal/claims"
	"github.com/whistl-app/whistl-backend/pkg/logger"
)

// claimRequest accepts both the nested route shape and the flat legacy body
// that repeats the identifiers. Path parameters win; the ids here are ignored.
type claimRequest struct {
	Quantity        int    `json:"quantity" validate:"omitempty,gt=0"`
	ClaimedQuantity int    `json:"claimedQuantity" validate:"omitempty,gt=0"`
	ItemID          string `json:"itemId" validate:"omitempty"`
	UserID          string `json:"userId" validate:"omitempty"`
	AlertID         string `json:"alertId" validate:"omitempty"`
}

func (c claimRequest) quantity() int {
	switch {
	case c.Quantity > 0:
		return c.Quantity
	case c.ClaimedQuantity > 0:
		return c.ClaimedQuantity
	default:
		return 1
	}
}

// ClaimCreate claims part of a supply item's quantity for the caller.
func ClaimCreate(svc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alertID, err := pathUUID(r, "alertId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := pathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body claimRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Claim(r.Context(), claims.ClaimParams{
			AlertID:  alertID,
			ItemID:   itemID,
			UserID:   userID,
			Quantity: body.quantity(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// ClaimRelease gives back the caller's claim on the item.
func ClaimRelease(svc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alertID, err := pathUUID(r, "alertId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := pathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Release(r.Context(), userID, alertID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

// ClaimList shows who has claimed the item and how much.
func ClaimList(svc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alertID, err := pathUUID(r, "alertId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := pathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListForItem(r.Context(), userID, alertID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
