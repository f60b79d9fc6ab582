package signatures

import (
	"context"

	"github.com/settsync/settsync/pkg/client"
)

// NoopVerifier accepts every snapshot. Using it means the host visibly opts
// out of signature verification.
type NoopVerifier struct{}

// NewNoopVerifier creates a NoopVerifier.
func NewNoopVerifier() *NoopVerifier { return &NoopVerifier{} }

// Verify always succeeds.
func (v *NoopVerifier) Verify(ctx context.Context, collection *client.Collection) error {
	return nil
}

var _ client.Verification = (*NoopVerifier)(nil)
