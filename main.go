// Package main library rental API.
//
// @title           Library Rental API
// @version         1.0
// @description     Books, borrowings and payments settled via Stripe checkout.
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/olga-kim7/library-service/app/echoServer"
	authctrl "github.com/olga-kim7/library-service/app/echoServer/controller/auth"
	bookctrl "github.com/olga-kim7/library-service/app/echoServer/controller/book"
	borrowctrl "github.com/olga-kim7/library-service/app/echoServer/controller/borrowing"
	paymentctrl "github.com/olga-kim7/library-service/app/echoServer/controller/payment"
	"github.com/olga-kim7/library-service/app/echoServer/validation"
	"github.com/olga-kim7/library-service/config"
	"github.com/olga-kim7/library-service/notify"
	bookrepo "github.com/olga-kim7/library-service/repository/book"
	borrowrepo "github.com/olga-kim7/library-service/repository/borrowing"
	paymentrepo "github.com/olga-kim7/library-service/repository/payment"
	striperepo "github.com/olga-kim7/library-service/repository/stripe"
	userrepo "github.com/olga-kim7/library-service/repository/user"
	authsvc "github.com/olga-kim7/library-service/service/auth"
	booksvc "github.com/olga-kim7/library-service/service/book"
	borrowsvc "github.com/olga-kim7/library-service/service/borrowing"
	overduesvc "github.com/olga-kim7/library-service/service/overdue"
	paymentsvc "github.com/olga-kim7/library-service/service/payment"
	"github.com/olga-kim7/library-service/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB: *sql.DB over pgx
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	lr := borrowrepo.New(db, br)
	pr := paymentrepo.New(db)
	gw := striperepo.New(cfg.StripeKey, cfg.StripeWebhookSecret)

	// notification channel (fire-and-forget)
	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	}

	// services
	as := authsvc.New(ur, cfg.JWTSecret)
	bs := booksvc.New(br)
	ls := borrowsvc.New(lr, br, ur, pr, gw, notifier, log, cfg.Domain)
	ps := paymentsvc.New(pr, gw, log, cfg.Domain)
	scanner := overduesvc.New(lr, notifier, log)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	borrowC := &borrowctrl.Controller{Svc: ls, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: ps, Log: log}

	// overdue sweep on a fixed interval
	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()
	go scanner.Run(scanCtx, cfg.ScanInterval)

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Book:      bookC,
		Borrowing: borrowC,
		Payment:   paymentC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	slog.Info("starting server", "port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
