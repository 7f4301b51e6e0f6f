package handlers

import (
	"taskflow/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// Mount registers the API routes on r. Everything except health, sign-up,
// login, password recovery and the email callbacks requires a session.
func Mount(r chi.Router, tasks *TaskHandler, users *AuthHandler, authn middleware.Authenticator) {
	r.Get("/health", tasks.HealthCheck)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", users.SignUp)
		r.Post("/login", users.Login)
		r.Get("/callback", users.ConfirmCallback)
		r.Post("/forgot-password", users.ForgotPassword)
		r.Get("/reset-password/callback", users.ResetCallback)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authn))
			r.Post("/logout", users.Logout)
			r.Get("/me", users.Me)
			r.Post("/reset-password", users.ResetPassword)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(middleware.Auth(authn))
		r.Get("/", tasks.ListTasks)
		r.Post("/", tasks.CreateTask)
		r.Get("/board", tasks.Board)
		r.Get("/timeline", tasks.Timeline)
		r.Get("/{id}", tasks.GetTask)
		r.Put("/{id}", tasks.UpdateTask)
		r.Patch("/{id}/status", tasks.SetStatus)
		r.Post("/{id}/toggle", tasks.ToggleStatus)
		r.Delete("/{id}", tasks.DeleteTask)
	})
}
