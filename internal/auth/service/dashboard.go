package service

import (
	"context"
	"slices"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

var (
	dashboardLabels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	dashboardValues = []int{120, 150, 130, 180, 200, 160, 220, 210, 190, 230, 240, 250}
)

// DashboardService serves the monthly series shown after login. The data is
// the same for every user for now.
type DashboardService struct{}

func (DashboardService) Dashboard(_ context.Context, _ domain.Identity) domain.Dashboard {
	return domain.Dashboard{
		Labels: slices.Clone(dashboardLabels),
		Values: slices.Clone(dashboardValues),
	}
}
