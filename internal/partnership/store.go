package partnership

import (
	"context"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
)

// Store persists requests and agreements. Get methods return
// sentinel.ErrNotFound for unknown IDs.
type Store interface {
	CreateRequest(ctx context.Context, request *Request) error
	GetRequest(ctx context.Context, requestID id.PartnershipRequestID) (*Request, error)
	SaveRequest(ctx context.Context, request *Request) error
	ListRequests(ctx context.Context) ([]*Request, error)

	CreateAgreement(ctx context.Context, agreement *Agreement) error
	GetAgreement(ctx context.Context, agreementID id.AgreementID) (*Agreement, error)
	SaveAgreement(ctx context.Context, agreement *Agreement) error
	ListAgreements(ctx context.Context) ([]*Agreement, error)

	// AppendAudit writes a global trail entry inside the same transactional
	// boundary as the mutation it accompanies.
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Tx serializes mutations per governance subject (request or agreement ID).
// Agreement transitions that also touch the parent request run under the
// agreement's key; request state is only ever forced forward, so the two
// keys cannot deadlock.
type Tx interface {
	RunInTx(ctx context.Context, subject string, fn func(store Store) error) error
}
