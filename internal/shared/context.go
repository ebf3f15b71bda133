package shared

import "context"

type companyCodeContextKey struct{}

// ContextWithCompanyCode stores the tenant company code in context.
func ContextWithCompanyCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, companyCodeContextKey{}, code)
}

// CompanyCodeFromContext extracts the tenant company code from context.
// Empty string means no tenant was resolved.
func CompanyCodeFromContext(ctx context.Context) string {
	code, _ := ctx.Value(companyCodeContextKey{}).(string)
	return code
}
