package api

import "github.com/gofiber/fiber/v2"

// Route is implemented by every feature that registers endpoints. The fx
// graph collects all Route values and calls Setup on each at startup.
type Route interface {
	Setup(app *fiber.App)
}
