package middleware

import (
	"net/http"
	"strings"

	"github.com/Chromeox/hobbyist-web-partner-sub014/core/constants"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/controller"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/errors"
	"github.com/Chromeox/hobbyist-web-partner-sub014/core/utils"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Middleware struct {
	jwtSecret string
}

func NewMiddleware(jwtSecret string) *Middleware {
	return &Middleware{jwtSecret: jwtSecret}
}

func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrMissingAuthorizationHeader, "Missing authorization header")
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrInvalidTokenFormat, "Invalid authorization header")
			}

			data, err := utils.ValidateAndParseToken(token, m.jwtSecret)
			if err != nil {
				code := errors.ErrUnauthorized
				var ae *errors.AppError
				if errors.As(err, &ae) {
					code = ae.Code
				}
				return controller.NewErrorResponse(http.StatusUnauthorized, code, "Unauthorized")
			}

			c.Set(constants.ContextClaimsKey, data)
			return next(c)
		}
	}
}

// RequireRole must run after AuthMiddleware.
func (m *Middleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			data, ok := TokenFromContext(c)
			if !ok {
				return controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrUnauthorized, "Unauthorized")
			}
			for _, role := range roles {
				if data.Role == role {
					return next(c)
				}
			}
			return controller.NewErrorResponse(http.StatusForbidden, errors.ErrForbidden, "Insufficient role")
		}
	}
}

func TokenFromContext(c echo.Context) (*utils.TokenData, bool) {
	data, ok := c.Get(constants.ContextClaimsKey).(*utils.TokenData)
	return data, ok && data != nil
}

// CanAccessStudio allows admins everywhere and studio staff on their own studio.
func CanAccessStudio(c echo.Context, studioID uuid.UUID) bool {
	data, ok := TokenFromContext(c)
	if !ok {
		return false
	}
	if data.Role == constants.RoleAdmin {
		return true
	}
	return data.StudioID != nil && *data.StudioID == studioID
}
