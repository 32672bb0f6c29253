// File: internal/api/poller.go
package api

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/observability"
)

// Poller fetches a verification's current workflow step. A single GET per
// call; retry lives in the Client.
type Poller struct {
	client  *Client
	baseURL string
	logger  *zap.Logger
}

// NewPoller builds a Poller against the service base URL.
func NewPoller(client *Client, baseURL string, logger *zap.Logger) *Poller {
	return &Poller{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("poller"),
	}
}

// Precheck fetches the current step and raw status payload. As a side effect
// it ratchets the client's Accept-Language header to the server-declared
// locale; the ratchet is one-way for the rest of the run.
func (p *Poller) Precheck(ctx context.Context, verificationID string) (schemas.WorkflowStep, schemas.StatusPayload, error) {
	url := fmt.Sprintf("%s/rest/v2/verification/%s", p.baseURL, verificationID)
	payload, status, err := p.client.Request(ctx, "GET", url, nil)
	if err != nil {
		return "", nil, err
	}

	step := payload.Step()
	p.logger.Info("Precheck complete",
		zap.String("verification_id", observability.MaskID(verificationID)),
		zap.String("step", string(step)),
		zap.Int("http_status", status))

	if locale := payload.Locale(); locale != "" && !strings.HasPrefix(p.client.AcceptLanguage(), locale) {
		header := localeHeader(locale)
		p.logger.Info("Adopting server locale for subsequent calls", zap.String("locale", locale))
		p.client.SetAcceptLanguage(header)
	}
	return step, payload, nil
}
