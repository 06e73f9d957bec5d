package rest

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/zapa-ai/zapa/pkg/utils"
)

// codedError is satisfied by the typed errors in pkg/apperror.
type restCodedError interface {
	error
	ErrCode() string
	StatusCode() int
}

// respondError maps typed errors to their HTTP shape; anything else is a 500.
func respondError(c *fiber.Ctx, err error) error {
	var coded restCodedError
	if errors.As(err, &coded) {
		return c.Status(coded.StatusCode()).JSON(utils.ResponseData{
			Status:  coded.StatusCode(),
			Code:    coded.ErrCode(),
			Message: coded.Error(),
		})
	}
	return c.Status(500).JSON(utils.ResponseData{
		Status:  500,
		Code:    "INTERNAL_SERVER_ERROR",
		Message: err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(400).JSON(utils.ResponseData{
		Status:  400,
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

func userIDParam(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
