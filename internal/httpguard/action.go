package httpguard

import (
	"net"
	"net/http"
	"strings"

	"github.com/ppiankov/tracegate/internal/model"
)

// ToolForMethod maps an HTTP method to the action tool name.
func ToolForMethod(method string) string {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead:
		return "http_get"
	case http.MethodPost:
		return "http_post"
	case http.MethodPut:
		return "http_put"
	case http.MethodDelete:
		return "http_delete"
	default:
		return "http_request"
	}
}

// BuildAction maps an outbound request to an Action.
func BuildAction(r *http.Request) *model.Action {
	url := r.URL.String()
	if r.URL.Host == "" && r.Host != "" {
		url = r.Host + r.URL.RequestURI()
	}

	host := r.URL.Hostname()
	if host == "" {
		host = r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}

	contentLength := 0
	if r.ContentLength > 0 {
		contentLength = int(r.ContentLength)
	}

	sensitivity, tags := classifyURL(url)
	egress := model.EgressExternal
	if isLocal(host) {
		egress = model.EgressInternal
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	return &model.Action{
		Tool:      ToolForMethod(method),
		Resource:  url,
		Operation: strings.ToLower(method),
		Params: map[string]any{
			"method": method,
			"host":   host,
		},
		RawMeta: map[string]any{
			"sensitivity": string(sensitivity),
			"tags":        tags,
			"bytes":       contentLength,
			"rows":        0,
			"egress":      string(egress),
			"destination": host,
		},
	}
}

// classifyURL determines sensitivity and tags from URL patterns.
func classifyURL(url string) (model.Sensitivity, []string) {
	lower := strings.ToLower(url)

	for _, p := range []string{"/checkout", "/payment", "/billing", "stripe.com", "paypal.com", "paddle.com"} {
		if strings.Contains(lower, p) {
			return model.SensHigh, []string{"payment"}
		}
	}
	for _, p := range []string{"/oauth/token", "/api/keys", "/api/credentials", "/account/delete", "/settings/security"} {
		if strings.Contains(lower, p) {
			return model.SensHigh, []string{"credential"}
		}
	}
	for _, p := range []string{"/hr/", "/employee", "/salary", "/payroll"} {
		if strings.Contains(lower, p) {
			return model.SensHigh, []string{"HR"}
		}
	}
	if strings.Contains(lower, "/pii/") {
		return model.SensHigh, []string{"PII"}
	}
	for _, p := range []string{"/siem", "/incident", "/security"} {
		if strings.Contains(lower, p) {
			return model.SensMedium, []string{"security"}
		}
	}

	return model.SensLow, []string{}
}

func isLocal(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
