package api

import (
	"embed"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

//go:embed web/index.html
var webFS embed.FS

// RegisterRoutes mounts the chat UI and API. A panic in a handler becomes a
// 500 response instead of stopping the server.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Use(recover.New())

	app.Get("/", h.Index)
	app.Get("/health", h.Health)
	app.Get("/models", h.ListModels)

	api := app.Group("/api")
	api.Get("/history", h.History)
	api.Post("/chat", h.Chat)
	api.Post("/clear", h.Clear)
	api.Post("/ingest", h.Ingest)
}
