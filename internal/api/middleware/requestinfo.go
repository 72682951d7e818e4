package middleware

import (
	"context"

	"parss/internal/domain"
)

// requestInfo lets inner middleware report the authenticated principal back
// to Logging, which only sees the outer request.
type requestInfo struct {
	principalID string
	role        domain.Role
}

type requestInfoKey struct{}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

func recordPrincipal(ctx context.Context, p domain.Principal) {
	if info := requestInfoFrom(ctx); info != nil {
		info.principalID = p.ID
		info.role = p.Role
	}
}
