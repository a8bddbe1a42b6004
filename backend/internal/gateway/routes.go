package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"shs_lms/backend/internal/gateway/handlers"
	"shs_lms/backend/internal/gateway/util"
	"shs_lms/backend/internal/grade"
	"shs_lms/backend/internal/shared"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(svc *grade.GradeService, cfg *shared.ServiceConfig, metrics *grade.Metrics) *chi.Mux {
	r := chi.NewRouter()

	// 1. Global Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	gradeHandler := &handlers.GradeHandler{Service: svc}
	postingHandler := &handlers.PostingHandler{Service: svc, MaxUploadBytes: cfg.Upload.MaxUploadBytes}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "service": cfg.ServiceName})
	})
	r.Handle("/metrics", metrics.Handler())

	// 3. Define Routes
	r.Route("/api/grading", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Security))

		// Pure computations, any authenticated user
		r.Get("/track", gradeHandler.ResolveTrack)
		r.Get("/transmute", gradeHandler.Transmute)

		// Faculty
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(shared.RoleFaculty))

			r.Put("/quarterly-grades", gradeHandler.SaveQuarterlyGrade)
			r.Get("/term-grades", gradeHandler.GetTermGrade)

			r.Route("/classes/{class_id}/sections/{section}/quarters/{quarter}", func(r chi.Router) {
				r.Get("/compute", gradeHandler.ComputeQuarterGrades)
				r.Put("/quarter-grades", gradeHandler.SaveQuarterGrades)

				r.Post("/upload", postingHandler.UploadGrades)
				r.Post("/stage", postingHandler.StageGrades)
				r.Get("/staged", postingHandler.GetStaged)
				r.Patch("/staged/{student_id}", postingHandler.UpdateStagedRow)
				r.Delete("/staged", postingHandler.DiscardStaged)

				r.Post("/post", postingHandler.PostGrades)
				r.Get("/postings", postingHandler.ListPostings)
			})
		})

		// Student, posted snapshots only
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(shared.RoleStudent))
			r.Get("/students/me/classes/{class_id}/sections/{section}/posted", postingHandler.GetMyPostedGrades)
		})
	})

	return r
}

// AuthMiddleware verifies the LMS bearer token and injects its claims
func AuthMiddleware(sec shared.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract Token
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			// 2. Verify signature and claims
			claims, err := util.ParseToken(tokenStr, sec.JWTSecret, sec.JWTIssuer)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			// 3. Inject User into Context
			next.ServeHTTP(w, r.WithContext(util.WithUser(r.Context(), claims)))
		})
	}
}

// RequireRole rejects users whose role is not one of roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := util.UserFromContext(r)
			if user == nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			util.WriteJSONError(w, http.StatusForbidden, "Access denied: role "+user.Role+" may not use this endpoint")
		})
	}
}
