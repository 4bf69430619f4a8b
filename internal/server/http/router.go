package http

import (
	"net/http"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/forgot/password", h.ForgotPassword)
		r.Patch("/recovery/password", h.RecoverPassword)
		r.Post("/email/availability", h.EmailAvailability)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(h.tokens))
			r.Get("/me", h.Me)
			r.Post("/logout", h.Logout)
		})
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(authenticate(h.tokens))

		r.Route("/personal", func(r chi.Router) {
			r.Delete("/", h.DeleteSelf)
			r.Patch("/data", h.UpdatePersonalData)
			r.Patch("/password", h.UpdatePassword)
			r.Post("/avatar", h.AvatarUpload)
			r.Get("/avatar", h.AvatarDownload)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(models.RoleAdmin))
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.Account)
			r.Put("/{id}", h.UpdateAccount)
			r.Delete("/{id}", h.DeleteAccount)
		})
	})

	return r
}
