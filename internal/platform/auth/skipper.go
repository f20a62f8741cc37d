package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicRoutes are the route patterns served without credentials, keyed by
// method.
var publicRoutes = map[string]map[string]bool{
	http.MethodGet: {
		"/health":                   true,
		"/health/db":                true,
		"/api/v1/doctors":           true,
		"/api/v1/doctors/:id":       true,
		"/api/v1/doctors/:id/slots": true,
	},
}

// AuthSkipper reports whether the matched route is public. Use it as
// JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

func IsPublicRoute(method, path string) bool {
	return publicRoutes[method][path]
}
