package tracegate

import (
	"encoding/json"
	"net/http"

	"github.com/ppiankov/tracegate/internal/httpguard"
)

// Middleware returns an http.Handler that evaluates policy on each request
// before passing it to next. Requests are checked against the trace but not
// recorded. Blocked requests receive a 403 with a JSON body.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := toResult(c.sess.Check(httpguard.BuildAction(r)))

		if !result.Allowed() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"blocked":      true,
				"decision":     string(result.Decision),
				"reason":       result.Reason,
				"policy_id":    result.PolicyID,
				"approval_key": result.ApprovalKey,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
