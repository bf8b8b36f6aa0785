package echoServer

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/olga-kim7/library-service/app/echoServer/controller/auth"
	"github.com/olga-kim7/library-service/app/echoServer/controller/book"
	"github.com/olga-kim7/library-service/app/echoServer/controller/borrowing"
	"github.com/olga-kim7/library-service/app/echoServer/controller/payment"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller
	Payment   *payment.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Checkout provider callback; verified by signature, not JWT.
	pub.POST("/payments/stripe", c.Payment.HandleStripe)

	// Auth
	authGroup := e.Group("/v1")
	authGroup.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization",
	}))
	// Pull user_id and role out of the verified claims.
	authGroup.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			tokenObj := ctx.Get("user")
			if tokenObj == nil {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			var claims jwt.MapClaims
			switch t := tokenObj.(type) {
			case *jwt.Token:
				mc, ok := t.Claims.(jwt.MapClaims)
				if !ok {
					return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
				}
				claims = mc
			case jwt.MapClaims:
				claims = t
			default:
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			sub, ok := claims["sub"].(float64)
			if !ok {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}
			ctx.Set("user_id", int64(sub))

			if role, ok := claims["role"].(string); ok {
				ctx.Set("role", role)
			}
			return next(ctx)
		}
	})

	authGroup.GET("/users/me", c.Auth.Me)

	// Books (mutations are admin-gated in the controller)
	authGroup.GET("/books", c.Book.List)
	authGroup.GET("/books/:id", c.Book.Detail)
	authGroup.POST("/books", c.Book.Create)
	authGroup.PUT("/books/:id", c.Book.Update)
	authGroup.DELETE("/books/:id", c.Book.Delete)

	// Borrowings
	authGroup.POST("/borrowings", c.Borrowing.Create)
	authGroup.GET("/borrowings", c.Borrowing.List)
	authGroup.GET("/borrowings/:id", c.Borrowing.Get)
	authGroup.POST("/borrowings/:id/return", c.Borrowing.Return)
	authGroup.DELETE("/borrowings/:id", c.Borrowing.Delete)

	// Payments
	authGroup.GET("/payments", c.Payment.List)
	authGroup.GET("/payments/:id", c.Payment.Get)
	authGroup.POST("/payments/:id/paid", c.Payment.MarkPaid)
	authGroup.POST("/payments/:id/session", c.Payment.RetrySession)
}
