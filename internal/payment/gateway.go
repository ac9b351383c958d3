package payment

import "context"

// Gateway is an external payment provider.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Lookup(ctx context.Context, pidx string) (*LookupResult, error)
}
