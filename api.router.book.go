package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects the catalog and reservation endpoints.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))
	router.POST("/v1/books", m.public(api.AdminOnly(api.CreateBook)))
	router.GET("/v1/books", m.public(api.GetAllBooks))
	router.GET("/v1/books/:id", m.public(api.GetOneBook))
	router.PUT("/v1/books/:id", m.public(api.AdminOnly(api.UpdateBook)))
	router.DELETE("/v1/books/:id", m.public(api.AdminOnly(api.DeleteOneBook)))

	router.POST("/v1/books/:id/status", m.public(api.ChangeBookStatus))
	router.GET("/v1/books/:id/reservation", m.public(api.GetOpenReservation))
	router.GET("/v1/books/:id/reservations", m.public(api.GetBookReservations))
	router.GET("/v1/me/reservations", m.public(api.GetMyReservations))
	router.GET("/v1/changes", m.stream(api.StreamChanges))
	return router
}
