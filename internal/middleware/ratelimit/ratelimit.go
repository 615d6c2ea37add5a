package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

// SendCode limits code requests, each of which may trigger an email or SMS.
func SendCode() func(http.Handler) http.Handler {
	return limitByIP(5, 10*time.Minute)
}

// VerifyCode bounds brute forcing of short codes.
func VerifyCode() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Login() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Refresh() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func Logout() func(http.Handler) http.Handler {
	return limitByIP(20, 10*time.Minute)
}

func ForgotPassword() func(http.Handler) http.Handler {
	return limitByIP(3, time.Hour)
}

func ResetPassword() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func SendVerificationEmail() func(http.Handler) http.Handler {
	return limitByIP(3, time.Hour)
}

func VerifyEmail() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(limit, window)
}
