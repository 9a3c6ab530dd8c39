package shared

import "context"

type subjectContextKey struct{}

// ContextWithSubject stores the verified token subject in context.
// The subject is asserted by an upstream token validator; this service
// never verifies signatures itself.
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext extracts the verified subject from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(string)
	if !ok || subject == "" {
		return "", false
	}
	return subject, true
}
