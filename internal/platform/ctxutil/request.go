package ctxutil

import "context"

type requestDataKey struct{}

// RequestData carries the pipeline identifiers for one query so the
// orchestrator and audit trail see the same ids the HTTP layer minted.
type RequestData struct {
	RequestID string
	SessionID string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey{})
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}
