package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-checkout-orders/internal/access"
)

// Identity headers are set by the upstream gateway after authentication.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderVendorID = "X-Vendor-Id"
)

type actorKey struct{}

// RequireActor rejects requests without a usable identity.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := access.Actor{
			ID:       r.Header.Get(HeaderUserID),
			Role:     access.Role(r.Header.Get(HeaderUserRole)),
			VendorID: r.Header.Get(HeaderVendorID),
		}
		if a.Role == "" {
			a.Role = access.RoleCustomer
		}
		switch {
		case a.ID == "":
		case a.Role == access.RoleVendor && a.VendorID == "":
		case a.Role == access.RoleCustomer, a.Role == access.RoleVendor, a.Role == access.RoleAdmin:
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
			return
		}
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "missing or invalid identity"})
	})
}

func actorFrom(ctx context.Context) access.Actor {
	a, _ := ctx.Value(actorKey{}).(access.Actor)
	return a
}
