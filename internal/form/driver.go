// File: internal/form/driver.go
package form

import (
	"context"

	"github.com/veriform/veriform-cli/api/schemas"
)

// Driver bundles the resolver and sequencer into the single surface the
// orchestrator drives.
type Driver struct {
	resolver  *Resolver
	sequencer *Sequencer
}

// NewDriver builds a Driver.
func NewDriver(resolver *Resolver, sequencer *Sequencer) *Driver {
	return &Driver{resolver: resolver, sequencer: sequencer}
}

func (d *Driver) LocateFormContext(ctx context.Context, page schemas.Page) (schemas.DocumentContext, error) {
	return d.resolver.LocateFormContext(ctx, page)
}

func (d *Driver) Fill(ctx context.Context, doc schemas.DocumentContext, profile schemas.VerificationProfile) schemas.OrgSelectionOutcome {
	return d.sequencer.Fill(ctx, doc, profile)
}

func (d *Driver) Snapshot(ctx context.Context, doc schemas.DocumentContext) schemas.FormReadySnapshot {
	return d.sequencer.Snapshot(ctx, doc)
}

func (d *Driver) SubmitGate(ctx context.Context, doc schemas.DocumentContext) (schemas.FormReadySnapshot, error) {
	return d.sequencer.SubmitGate(ctx, doc)
}

func (d *Driver) ClickSubmit(ctx context.Context, doc schemas.DocumentContext) error {
	return d.sequencer.ClickSubmit(ctx, doc)
}
