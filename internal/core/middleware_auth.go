package core

import (
	"errors"
	"net/http"

	"collegeplan/internal/auth"
	"collegeplan/internal/types"
)

// defaultLoginPath is used when the config leaves LoginPath empty.
const defaultLoginPath = "/login"

// Authenticate resolves the request's access token to an Actor when one is
// present. It never rejects a request: routes that need a session enforce it
// with RequireSession or RequirePageSession, or check the actor themselves.
// A rejected token is remembered so RequireSession can report why.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		token := auth.TokenFromRequest(r, s.Config.Auth.CookieName)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		meta := metaFrom(ctx)

		actor, err := s.Authenticator.Verify(token)
		if err != nil {
			s.Logger.DebugContext(ctx, "access token rejected",
				"path", r.URL.Path,
				"error", err,
			)
			if meta != nil {
				meta.authErr = err
			}
			next.ServeHTTP(w, r)
			return
		}

		if meta != nil {
			meta.userID = actor.ID
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(ctx, actor)))
	})
}

// RequireSession rejects requests without a verified actor with a 401 error
// envelope. The code reflects why the token was rejected, when one was sent.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		Error(w, r, sessionError(r))
	})
}

// RequirePageSession redirects browsers without a session to the login page.
func (s *Server) RequirePageSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		loginPath := s.Config.Auth.LoginPath
		if loginPath == "" {
			loginPath = defaultLoginPath
		}
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
	})
}

// LoadSubscription stores the actor's current subscription in the context.
// Lookup failures degrade to the free plan.
func (s *Server) LoadSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || s.Subscriptions == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		info, err := s.Subscriptions.GetUserSubscriptionStatus(ctx, actor.ID)
		if err != nil {
			s.Logger.WarnContext(ctx, "subscription lookup failed, using free plan",
				"user_id", actor.ID,
				"error", err,
			)
			info = types.FreeSubscription()
		}
		next.ServeHTTP(w, r.WithContext(types.WithSubscription(ctx, info)))
	})
}

// RequirePlan refuses requests whose loaded subscription does not grant the
// required plan level with a 403 error envelope. It runs after
// LoadSubscription; a request without a loaded subscription is treated as
// free.
func (s *Server) RequirePlan(required types.PlanID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := types.GetSubscription(r.Context())
			if !ok {
				info = types.FreeSubscription()
			}
			if s.Access != nil && s.Access.HasAccess(info, required) {
				next.ServeHTTP(w, r)
				return
			}
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodePermissionPlan,
				"Your plan does not include this feature", nil,
				map[string]any{"requiredPlan": required, "currentPlan": info.PlanID}))
		})
	}
}

// sessionError describes why the request has no session.
func sessionError(r *http.Request) *types.AppError {
	if meta := metaFrom(r.Context()); meta != nil && meta.authErr != nil {
		var appErr *types.AppError
		if errors.As(meta.authErr, &appErr) && appErr.Code == types.ErrCodeAuthTokenExpired {
			return types.NewAppError(types.ErrCodeAuthTokenExpired, "Authentication token has expired", nil)
		}
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid authentication token", nil)
	}
	return types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil)
}
