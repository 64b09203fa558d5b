package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type orgIDKey struct{}

// WithOrgID stores the organization a request is scoped to.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, orgIDKey{}, orgID)
}

// OrgIDFromContext returns the request's organization. Gin stores path
// parameters as strings under "org_id", which is accepted as a fallback.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	if id, ok := ctx.Value(orgIDKey{}).(snowflake.ID); ok && id != 0 {
		return id, true
	}

	raw, ok := ctx.Value("org_id").(string)
	if !ok {
		return 0, false
	}
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || parsed == 0 {
		return 0, false
	}
	return parsed, true
}
