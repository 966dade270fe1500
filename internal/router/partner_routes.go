package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/service"
)

// RegisterPartners registers business and organization profiles.
func RegisterPartners(g *echo.Group, d Deps) {
	p := d.Partners
	pm := can(d, service.PermPartnerManage)
	g.GET("/businesses", p.Businesses, pm)
	g.POST("/businesses", p.CreateBusiness, pm, idem(d))
	g.GET("/businesses/me", p.MyBusiness, pm)
	g.GET("/businesses/:id", p.GetBusiness, pm)
	g.PUT("/businesses/:id", p.UpdateBusiness, pm)
	g.GET("/organizations", p.Organizations, pm)
	g.POST("/organizations", p.CreateOrganization, pm, idem(d))
	g.GET("/organizations/me", p.MyOrganization, pm)
	g.GET("/organizations/:id", p.GetOrganization, pm)
	g.PUT("/organizations/:id", p.UpdateOrganization, pm)
}

// RegisterAdmin registers the /v1/admin endpoints.
func RegisterAdmin(g *echo.Group, d Deps) {
	a := g.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	a.GET("/accounts", d.Partners.ListAccounts, can(d, service.PermAccountAdmin))
	a.GET("/accounts/:id", d.Partners.GetAccount, can(d, service.PermAccountAdmin))
	a.PUT("/accounts/:id/role", d.Partners.ChangeRole, can(d, service.PermAccountAdmin))
	a.DELETE("/accounts/:id", d.Partners.DeleteAccount, can(d, service.PermAccountAdmin))
	a.PUT("/businesses/:id/approval", d.Partners.SetBusinessApproval, can(d, service.PermAccountAdmin))
	a.PUT("/organizations/:id/approval", d.Partners.SetOrganizationApproval, can(d, service.PermAccountAdmin))
	a.GET("/stats/accounts", d.Stats.Accounts, can(d, service.PermAccountAdmin))
	a.GET("/stats/listings", d.Stats.Listings, can(d, service.PermAccountAdmin))
	a.GET("/stats/reservations", d.Stats.Reservations, can(d, service.PermAccountAdmin))
	a.GET("/documents", d.Documents.List, can(d, service.PermDocumentReview))
	a.GET("/reservations", d.Reservations.All, can(d, service.PermReservationAll))
	a.PUT("/listings/:id/status", d.Listings.Override, can(d, service.PermListingOverride))
}
