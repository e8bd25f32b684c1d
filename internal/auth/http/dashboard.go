package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// DashboardHandler serves chart data to authenticated users. It must sit
// behind httpx.AuthnMiddleware.
type DashboardHandler struct {
	DashboardService service.DashboardService
}

// ServeHTTP godoc
//
//	@Summary		Dashboard data
//	@Description	Returns the monthly series shown on the dashboard.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.DashboardResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or expired token"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Router			/api/auth/dashboard [get]
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := domain.Identity{
		Username: httpx.UserIDFromContext(ctx),
		Role:     httpx.RoleFromContext(ctx),
	}

	data := h.DashboardService.Dashboard(ctx, identity)
	httpx.WriteJSON(w, http.StatusOK, authsdk.DashboardResponse{
		Labels: data.Labels,
		Values: data.Values,
	})
}
