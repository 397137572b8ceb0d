package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-checkout-orders/internal/access"
	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type DefaultCardSetter interface {
	SetDefaultCard(ctx context.Context, customerID, cardID string) error
}

type AccountHandler struct {
	Cards DefaultCardSetter
	Log   *zap.Logger
}

func (h *AccountHandler) Register(r chi.Router) {
	r.With(RequireActor).Post("/payment-cards/{id}/default", h.setDefaultCard)
}

func (h *AccountHandler) setDefaultCard(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	if !access.Can(a, access.ActionManageCart, access.Resource{CustomerID: a.ID}) {
		writeError(w, r, h.Log, forbidden())
		return
	}
	err := h.Cards.SetDefaultCard(r.Context(), a.ID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, payment.ErrNotFound):
		writeError(w, r, h.Log, apperr.NotFoundf("card_not_found", "payment card not found"))
		return
	case err != nil:
		writeError(w, r, h.Log, apperr.DependencyErr("card_store", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
