package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/service"
)

// RegisterDocuments registers the eligibility gate.
func RegisterDocuments(g *echo.Group, d Deps) {
	g.POST("/documents", d.Documents.Submit, can(d, service.PermDocumentSubmit), idem(d))
	g.GET("/documents/status", d.Documents.Status, can(d, service.PermDocumentSubmit))
	g.GET("/documents/:id", d.Documents.Get, can(d, service.PermDocumentSubmit))
	g.GET("/documents/:id/download", d.Documents.Download, can(d, service.PermDocumentSubmit))
	g.DELETE("/documents/:id", d.Documents.Delete, can(d, service.PermDocumentSubmit))
	g.PUT("/documents/:id/review", d.Documents.Review, can(d, service.PermDocumentReview))
}
