package refresh

import "context"

// Ledger stores refresh tokens and performs rotation atomically.
type Ledger interface {
	// Create mints a token for userID.
	Create(ctx context.Context, userID, ip, userAgent string) (*Token, error)
	// FindActive resolves a value to its record. Revoked, expired and unknown tokens
	// all yield ErrNotFound.
	FindActive(ctx context.Context, value string) (*Record, error)
	// Rotate exchanges value for a successor. See the package doc for replay handling.
	Rotate(ctx context.Context, value, ip, userAgent string) (*Token, error)
	// RevokeChain revokes tokenID and every token that replaced it, returning how many
	// were newly revoked.
	RevokeChain(ctx context.Context, tokenID, reason string) (int, error)
	// Revoke revokes a single token. Unknown or already revoked tokens are not an error.
	Revoke(ctx context.Context, value, reason string) error
	RevokeAllForUser(ctx context.Context, userID, reason string) error
	// Chain returns tokenID followed by its successors in rotation order.
	Chain(ctx context.Context, tokenID string) ([]Record, error)
}

// maxChainLength bounds chain walks against corrupted cyclic links.
const maxChainLength = 1000
