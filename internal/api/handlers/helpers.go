package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// GetOperator returns the operator name the auth middleware stored on the request.
func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals("operator").(string)
	return operator
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
