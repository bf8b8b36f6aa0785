// app/echoServer/jwtx/user.go
package jwtx

import (
	"github.com/labstack/echo/v4"

	"github.com/olga-kim7/library-service/model"
)

// UserID reads the identity placed on the context by the claims
// middleware in routes.go.
func UserID(c echo.Context) int64 {
	id, _ := c.Get("user_id").(int64)
	return id
}

func Role(c echo.Context) string {
	role, _ := c.Get("role").(string)
	return role
}

func IsAdmin(c echo.Context) bool {
	return Role(c) == model.RoleAdmin
}
