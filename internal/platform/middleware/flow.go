package middleware

import (
	"net/http"
	"time"

	id "enroll/pkg/domain"
	"enroll/pkg/requestcontext"
)

// FlowCookie is the cookie carrying the registration flow ID. It is what
// makes draft and channel state per-browser: the same browser presents the
// same flow ID across reloads and tab closes. A link opened on another device
// gets a fresh flow ID and relies on URL-embedded recovery instead.
const FlowCookie = "enroll_flow"

// Flow ensures every request carries a flow ID: an existing valid cookie is
// reused, anything else gets a freshly minted ID set on the response.
func Flow(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flowID := id.FlowID{}
			if c, err := r.Cookie(FlowCookie); err == nil {
				if parsed, err := id.ParseFlowID(c.Value); err == nil {
					flowID = parsed
				}
			}

			if flowID.IsZero() {
				flowID = id.NewFlowID()
				http.SetCookie(w, &http.Cookie{
					Name:     FlowCookie,
					Value:    flowID.String(),
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := requestcontext.WithFlowID(r.Context(), flowID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
