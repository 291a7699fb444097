package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RouterConfig carries everything needed to assemble the HTTP app.
type RouterConfig struct {
	JWTSecret string
	Handler   *Handler
}

// NewApp builds the fiber application with all routes registered. Movement
// and read routes require a valid bearer token; freeze and unfreeze
// additionally require the admin role.
func NewApp(cfg RouterConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	h := cfg.Handler
	auth := WithAuth(cfg.JWTSecret)

	txGroup := app.Group("/api/transactions", auth)
	txGroup.Post("/deposit", h.Deposit)
	txGroup.Post("/withdraw", h.Withdraw)
	txGroup.Post("/transfer", h.Transfer)
	txGroup.Get("/:txId", h.GetTransaction)

	acctGroup := app.Group("/api/accounts", auth)
	acctGroup.Get("/:accountNumber", h.GetAccount)
	acctGroup.Get("/:accountNumber/transactions", h.ListAccountTransactions)
	acctGroup.Post("/:accountNumber/freeze", RequireAdmin(), h.FreezeAccount)
	acctGroup.Post("/:accountNumber/unfreeze", RequireAdmin(), h.UnfreezeAccount)

	return app
}
