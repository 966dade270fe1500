package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/service"
)

// RegisterListings registers the listing registry.  Search responses are
// cached in Redis; ownership of a listing is checked by the service.
func RegisterListings(g *echo.Group, d Deps) {
	g.POST("/listings", d.Listings.Create, can(d, service.PermListingPublish), idem(d))
	g.GET("/listings", d.Listings.Search, can(d, service.PermListingBrowse), middleware.NewRedisCache(d.Cache, d.Redis))
	g.GET("/listings/mine", d.Listings.Mine, can(d, service.PermListingPublish))
	g.GET("/listings/:id", d.Listings.Get, can(d, service.PermListingBrowse))
	g.PUT("/listings/:id", d.Listings.Update, can(d, service.PermListingManage))
	g.DELETE("/listings/:id", d.Listings.Delete, can(d, service.PermListingManage))
}
