// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	flowID := requestcontext.FlowID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithFlowID(ctx, flowID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithDevice(ctx, "Chrome", "macOS")
package requestcontext

import (
	"context"
	"time"

	id "enroll/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	flowIDKey      struct{}
	userIDKey      struct{}
	deviceKey      struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Device describes the browser context a registration flow runs in. It is
// parsed once by middleware from the User-Agent header and attached to audit
// events so cross-device link opens are visible in the trail.
type Device struct {
	Browser string
	OS      string
	Mobile  bool
}

// FlowID retrieves the registration flow ID from the context.
// Returns the zero value (nil UUID) if not set.
func FlowID(ctx context.Context) id.FlowID {
	if flowID, ok := ctx.Value(flowIDKey{}).(id.FlowID); ok {
		return flowID
	}
	return id.FlowID{}
}

// WithFlowID injects a flow ID into the context.
func WithFlowID(ctx context.Context, flowID id.FlowID) context.Context {
	return context.WithValue(ctx, flowIDKey{}, flowID)
}

// UserID retrieves the authenticated user ID from the context.
// Zero until a session token has been presented and validated.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// DeviceInfo retrieves the parsed device description from the context.
func DeviceInfo(ctx context.Context) Device {
	if d, ok := ctx.Value(deviceKey{}).(Device); ok {
		return d
	}
	return Device{}
}

// WithDevice injects a device description into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithDevice(ctx context.Context, browser, os string) context.Context {
	return context.WithValue(ctx, deviceKey{}, Device{Browser: browser, OS: os})
}

// WithDeviceInfo injects a full device description into a context.
func WithDeviceInfo(ctx context.Context, d Device) context.Context {
	return context.WithValue(ctx, deviceKey{}, d)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
//
// Cooldown arithmetic depends on every check within one request seeing the
// same "now"; tests inject fixed times to hit the 60s boundary exactly.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
