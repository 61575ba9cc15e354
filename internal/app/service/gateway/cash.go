package gateway

import (
	"context"

	"github.com/fatflowers/dropship/pkg/types"
)

// Cash is settled by an operator through the admin confirm endpoint.
type Cash struct {
	instructions string
}

func NewCash(instructions string) *Cash {
	return &Cash{instructions: instructions}
}

func (c *Cash) Identifier() types.PaymentProvider { return types.PaymentProviderCash }
func (c *Cash) SupportsMobilePush() bool          { return false }
func (c *Cash) RequiresRedirect() bool            { return false }

func (c *Cash) Initiate(_ context.Context, req InitiateRequest) (*InitiateResult, error) {
	return &InitiateResult{
		Success:      true,
		Instructions: c.instructions,
		Outcome:      OutcomePending,
		Raw:          map[string]any{"reference": req.Reference},
	}, nil
}

func (c *Cash) CheckStatus(context.Context, StatusQuery) (*StatusResult, error) {
	return nil, ErrUnsupported
}

func (c *Cash) HandleCallback(context.Context, Callback) (*CallbackResult, error) {
	return nil, ErrUnsupported
}
