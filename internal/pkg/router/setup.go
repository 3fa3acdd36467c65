package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a route group onto the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires the session store, global middleware and all API
// routes.
func InstallRouter(app *fiber.App) {
	setup(app, NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
