package config

import "time"

type App struct {
	Port                string `env:"APP_PORT" default:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required"`
	JWTSecret           string `env:"JWT_SECRET,required"`
	StripeKey           string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID      string `env:"TELEGRAM_CHAT_ID"`
	Domain              string `env:"APP_DOMAIN" default:"http://localhost:8080"`
	ScanInterval        time.Duration
	Env                 string `env:"APP_ENV" default:"dev"`
}
