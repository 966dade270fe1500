package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/service"
)

// RegisterReservations registers the reservation engine.  Transition and
// delete are open to every authenticated caller; the engine decides
// which party may do what.
func RegisterReservations(g *echo.Group, d Deps) {
	g.POST("/reservations", d.Reservations.Create, can(d, service.PermReservationCreate), idem(d))
	g.GET("/reservations/organization", d.Reservations.ForOrganization, can(d, service.PermReservationOwnOrg))
	g.GET("/reservations/business", d.Reservations.ForBusiness, can(d, service.PermReservationOwnBiz))
	g.GET("/reservations/:id", d.Reservations.Get, can(d, service.PermReservationParticipate))
	g.PUT("/reservations/:id", d.Reservations.Transition, can(d, service.PermReservationParticipate))
	g.DELETE("/reservations/:id", d.Reservations.Delete, can(d, service.PermReservationParticipate))
}
