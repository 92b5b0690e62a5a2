// Package context carries request and job scoped values that the logger and
// error middleware pick up, so every log line from a sync run can be tied
// back to the server and job that produced it.
package context

import "context"

type contextKey string

const (
	requestIDKey = contextKey("request-id")
	methodKey    = contextKey("method")
	routeKey     = contextKey("route")
	remoteIPKey  = contextKey("remote-ip")
	refererKey   = contextKey("referer")
	userIDKey    = contextKey("user-id")
	serverIDKey  = contextKey("server-id")
	syncRunIDKey = contextKey("sync-run-id")
)

func stringValue(ctx context.Context, key contextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey, method)
}

func GetMethod(ctx context.Context) string {
	return stringValue(ctx, methodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

func GetRoute(ctx context.Context) string {
	return stringValue(ctx, routeKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, remoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return stringValue(ctx, remoteIPKey)
}

func SetReferer(ctx context.Context, referer string) context.Context {
	return context.WithValue(ctx, refererKey, referer)
}

func GetReferer(ctx context.Context) string {
	return stringValue(ctx, refererKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// SetServerID tags the context with the WooCommerce server a request or
// sync job is operating against.
func SetServerID(ctx context.Context, serverID string) context.Context {
	return context.WithValue(ctx, serverIDKey, serverID)
}

func GetServerID(ctx context.Context) string {
	return stringValue(ctx, serverIDKey)
}

// SetSyncRunID tags the context with the job ID driving the current run.
func SetSyncRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, syncRunIDKey, runID)
}

func GetSyncRunID(ctx context.Context) string {
	return stringValue(ctx, syncRunIDKey)
}
