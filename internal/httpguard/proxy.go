package httpguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/session"
)

// Proxy is an HTTP forward proxy. Plain HTTP requests get full body
// enforcement; CONNECT tunnels are decided on the host alone and only
// opened when the decision is allow.
type Proxy struct {
	transport *Transport
	sess      *session.Session
	log       zerolog.Logger
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewProxy creates a proxy evaluating against sess.
func NewProxy(sess *session.Session, log zerolog.Logger) *Proxy {
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &Proxy{
		transport: &Transport{Session: sess},
		sess:      sess,
		log:       log,
		dial:      d.DialContext,
	}
}

// Serve listens on addr until ctx is cancelled.
func (p *Proxy) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: p, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p.log.Info().Str("addr", ln.Addr().String()).Msg("proxy listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.handleHTTP(w, r)
}

var hopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func (p *Proxy) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if !r.URL.IsAbs() {
		http.Error(w, "proxy requires an absolute URL", http.StatusBadRequest)
		return
	}

	out := r.Clone(r.Context())
	out.RequestURI = ""
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		p.writeError(w, err)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	egress := model.EgressExternal
	if isLocal(host) {
		egress = model.EgressInternal
	}
	action := &model.Action{
		Tool:      "http_request",
		Resource:  host,
		Operation: "connect",
		Params:    map[string]any{"method": http.MethodConnect, "host": r.Host},
		RawMeta: map[string]any{
			"sensitivity": string(model.SensLow),
			"egress":      string(egress),
			"destination": host,
		},
	}

	var target net.Conn
	_, result, err := p.sess.Run(r.Context(), action, func(ctx context.Context) (any, error) {
		conn, err := p.dial(ctx, "tcp", r.Host)
		if err != nil {
			return nil, err
		}
		target = conn
		return conn, nil
	})
	if err != nil {
		p.writeError(w, err)
		return
	}
	// A tunnel cannot be redacted or rewritten.
	if d := result.Decision(); d == model.AllowWithRedaction || d == model.RewriteOutput {
		target.Close()
		writeBlocked(w, http.StatusForbidden, result.ToMap())
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		target.Close()
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	client, _, err := hijacker.Hijack()
	if err != nil {
		target.Close()
		p.log.Error().Err(err).Msg("hijack failed")
		return
	}

	go tunnel(target, client)
	go tunnel(client, target)
}

func tunnel(dst, src net.Conn) {
	defer dst.Close()
	defer src.Close()
	_, _ = io.Copy(dst, src)
}

func (p *Proxy) writeError(w http.ResponseWriter, err error) {
	if ee, ok := enforce.AsEnforcementError(err); ok {
		body := map[string]any{
			"result":    string(ee.Decision),
			"reason":    ee.Reason,
			"policy_id": ee.PolicyID,
		}
		if ee.ApprovalKey != "" {
			body["approval_key"] = ee.ApprovalKey
		}
		writeBlocked(w, http.StatusForbidden, body)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	http.Error(w, "proxy error: "+strings.TrimSpace(err.Error()), http.StatusBadGateway)
}

func writeBlocked(w http.ResponseWriter, status int, decision map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Tracegate-Decision", fmt.Sprint(decision["result"]))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"blocked": true, "decision": decision})
}
