package logger

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(req *http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RequestIDTransport stamps every outgoing request with X-Request-ID,
// reusing the id carried by the request context when there is one.
func RequestIDTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("X-Request-ID") != "" {
			return next.RoundTrip(req)
		}

		reqID := RequestIDFrom(req.Context())
		if reqID == "" {
			reqID = uuid.New().String()
		}

		req = req.Clone(WithRequestID(req.Context(), reqID))
		req.Header.Set("X-Request-ID", reqID)

		return next.RoundTrip(req)
	})
}

// Transport logs every outgoing request once the response (or error) is known.
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		log := FromCtx(req.Context())

		resp, err := next.RoundTrip(req)

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration_ms", time.Since(start)),
		}
		if err != nil {
			log.Warn("outgoing request failed", append(fields, zap.Error(err))...)
			return nil, err
		}

		log.Info("outgoing request", append(fields, zap.Int("status", resp.StatusCode))...)
		return resp, nil
	})
}
