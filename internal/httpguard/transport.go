// Package httpguard puts outbound HTTP behind policy. Transport wraps a
// RoundTripper for in-process clients; Proxy serves the same pipeline to
// other processes as a plain HTTP forward proxy.
package httpguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/session"
)

// MaxBodyBytes caps how much of a response body is buffered for enforcement.
const MaxBodyBytes = 10 << 20

// Transport evaluates every request against a session before forwarding it
// and enforces the decision on the response body. A blocked request returns
// *enforce.EnforcementError from RoundTrip.
type Transport struct {
	Session *session.Session
	// Base performs the real request. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// NewClient returns an http.Client whose requests go through sess.
func NewClient(sess *session.Session) *http.Client {
	return &http.Client{Transport: &Transport{Session: sess}}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper. An allowed response keeps its body
// byte for byte; only redact and rewrite decisions re-encode it.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	action := BuildAction(req)

	var (
		resp *http.Response
		raw  []byte
	)
	out, result, err := t.Session.Run(req.Context(), action, func(ctx context.Context) (any, error) {
		r, err := t.base().RoundTrip(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		defer r.Body.Close()

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if len(body) > MaxBodyBytes {
			return nil, fmt.Errorf("response body exceeds %d bytes", MaxBodyBytes)
		}
		resp, raw = r, body
		return decodeBody(r.Header.Get("Content-Type"), body), nil
	})
	if err != nil {
		return nil, err
	}

	if result.Decision() == model.Allow {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp, nil
	}

	body, err := encodeBody(out)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Header.Del("Content-Encoding")
	return resp, nil
}

// decodeBody turns JSON bodies into values so key-based redaction can see
// their structure. Numbers stay json.Number so large integers survive
// re-encoding. Everything else is enforced as text.
func decodeBody(contentType string, body []byte) any {
	if isJSON(contentType) {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil && !dec.More() {
			return v
		}
	}
	return string(body)
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(b); err != nil {
			return nil, fmt.Errorf("encode enforced body: %w", err)
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || (len(mt) > 5 && mt[len(mt)-5:] == "+json")
}
