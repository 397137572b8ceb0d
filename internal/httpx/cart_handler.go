package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-checkout-orders/internal/access"
	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductFinder interface {
	GetProductBySlug(ctx context.Context, slug string) (catalog.Product, error)
}

type CartHandler struct {
	Carts     *cart.Service
	Validator *cart.Validator
	Products  ProductFinder
	Log       *zap.Logger
}

type QuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/products/{slug}", h.getProduct)
	r.Group(func(r chi.Router) {
		r.Use(RequireActor)
		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addItem)
		r.Patch("/cart/items/{id}", h.setQuantity)
		r.Post("/cart/validate", h.validate)
	})
}

// cartOwner is the actor's own customer id when it may manage a cart.
func cartOwner(r *http.Request) (string, error) {
	a := actorFrom(r.Context())
	if !access.Can(a, access.ActionManageCart, access.Resource{CustomerID: a.ID}) {
		return "", forbidden()
	}
	return a.ID, nil
}

func (h *CartHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetProductBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, catalog.ErrNotFound) {
		err = apperr.NotFoundf("product_not_found", "product not found")
	} else if err != nil {
		err = apperr.DependencyErr("catalog_unavailable", err)
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	c, err := h.Carts.Get(r.Context(), owner)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req cart.AddItemInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	c, err := h.Carts.AddItem(r.Context(), owner, req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req QuantityReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	c, err := h.Carts.SetItemQuantity(r.Context(), owner, chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) validate(w http.ResponseWriter, r *http.Request) {
	owner, err := cartOwner(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Validator.Validate(r.Context(), owner)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
