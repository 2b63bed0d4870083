package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> models).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	// ContextKeyProfileId identifies the operator/customer profile acting
	// on the request; stock movements and orders record it as created_by.
	ContextKeyProfileId = ContextKey("ProfileId")

	// ContextKeyCorrelationId ties log lines to the request that caused
	// them; the HTTP layer stamps one per request.
	ContextKeyCorrelationId = ContextKey("CorrelationId")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// ProfileId returns the acting profile id or "" when unauthenticated.
func ProfileId(ctx context.Context) string {
	v, _ := GetString(ctx, ContextKeyProfileId)
	return v
}

// CorrelationId returns the request correlation id or "".
func CorrelationId(ctx context.Context) string {
	v, _ := GetString(ctx, ContextKeyCorrelationId)
	return v
}
