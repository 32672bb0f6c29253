// File: internal/form/resolver.go
// Description: Resolves logical field keys to concrete elements inside a
// candidate document context. Each field carries an ordered fallback chain of
// lookup strategies; chains are static configuration, overridable per field.

package form

import (
	"context"

	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
	"github.com/veriform/veriform-cli/internal/pacing"
)

// FieldKey is the logical identity of a form control.
type FieldKey string

const (
	FieldFirstName    FieldKey = "first_name"
	FieldLastName     FieldKey = "last_name"
	FieldEmail        FieldKey = "email"
	FieldOrganization FieldKey = "organization"
	FieldBirthMonth   FieldKey = "birth_month"
	FieldBirthDay     FieldKey = "birth_day"
	FieldBirthYear    FieldKey = "birth_year"
	FieldSubmit       FieldKey = "submit"
)

// defaultChains maps each field to its built-in lookup chain. Simple fields
// are structurally stable across deployments and only ever use their first
// candidate; the organization combobox and the submit control walk the whole
// chain.
var defaultChains = map[FieldKey][]schemas.SelectorStrategy{
	FieldFirstName: {
		{Kind: schemas.ByID, Query: "first-name"},
		{Kind: schemas.ByAttribute, Query: `input[name="firstName"]`},
	},
	FieldLastName: {
		{Kind: schemas.ByID, Query: "last-name"},
		{Kind: schemas.ByAttribute, Query: `input[name="lastName"]`},
	},
	FieldEmail: {
		{Kind: schemas.ByID, Query: "email"},
		{Kind: schemas.ByAttribute, Query: `input[type="email"]`},
	},
	FieldOrganization: {
		{Kind: schemas.ByContainer, Query: `#organization-container input, [data-testid="organization-search"] input`},
		{Kind: schemas.ByLabel, Query: "Organization|School|College|University"},
		{Kind: schemas.ByRole, Query: `combobox:not([id*="language"]):not([name*="language"])`},
		{Kind: schemas.ByID, Query: "organization-search"},
		{Kind: schemas.ByAttribute, Query: `input[placeholder*="school" i], input[aria-label*="organization" i]`},
	},
	FieldBirthMonth: {
		{Kind: schemas.ByID, Query: "birth-month"},
		{Kind: schemas.ByAttribute, Query: `input[name="birthMonth"]`},
	},
	FieldBirthDay: {
		{Kind: schemas.ByID, Query: "birth-day"},
		{Kind: schemas.ByAttribute, Query: `input[name="birthDay"]`},
	},
	FieldBirthYear: {
		{Kind: schemas.ByID, Query: "birth-year"},
		{Kind: schemas.ByAttribute, Query: `input[name="birthYear"]`},
	},
	FieldSubmit: {
		{Kind: schemas.ByAttribute, Query: `[data-testid="submit-button"]`},
		{Kind: schemas.ByAttribute, Query: `button[type="submit"]`},
		{Kind: schemas.ByLabel, Query: "Submit|Continue|Verify|Absenden|Verificar|Continuer"},
	},
}

// markerFields identify the form context: a document hosting any of these is
// considered the one hosting the form.
var markerFields = []FieldKey{FieldFirstName, FieldEmail, FieldOrganization}

// Resolver holds the per-field lookup chains.
type Resolver struct {
	chains map[FieldKey][]schemas.SelectorStrategy
	pace   *pacing.Policy
	logger *zap.Logger
}

// NewResolver builds a Resolver from the built-in chains plus any configured
// per-field overrides. An override replaces the whole chain for its field.
func NewResolver(cfg config.SelectorsConfig, pace *pacing.Policy, logger *zap.Logger) *Resolver {
	chains := make(map[FieldKey][]schemas.SelectorStrategy, len(defaultChains))
	for k, v := range defaultChains {
		chains[k] = v
	}
	for field, specs := range cfg.Fields {
		chain := make([]schemas.SelectorStrategy, 0, len(specs))
		for _, s := range specs {
			chain = append(chain, schemas.SelectorStrategy{
				Kind:  schemas.StrategyKind(s.Kind),
				Query: s.Query,
			})
		}
		if len(chain) > 0 {
			chains[FieldKey(field)] = chain
		}
	}
	return &Resolver{
		chains: chains,
		pace:   pace,
		logger: logger.Named("resolver"),
	}
}

// Chain returns the configured lookup chain for a field.
func (r *Resolver) Chain(key FieldKey) []schemas.SelectorStrategy {
	return r.chains[key]
}

// LocateAny walks a chain in order and returns the first visible match.
// This is the uniform combinator behind every fallback decision.
func (r *Resolver) LocateAny(ctx context.Context, doc schemas.DocumentContext, chain []schemas.SelectorStrategy) (string, bool) {
	for _, strategy := range chain {
		sel, found, err := doc.Locate(ctx, strategy)
		if err != nil {
			r.logger.Debug("Strategy evaluation failed",
				zap.String("kind", string(strategy.Kind)), zap.Error(err))
			continue
		}
		if found {
			return sel, true
		}
	}
	return "", false
}

// LocateFormContext finds the document hosting the form: marker fields are
// tried against the main document, then against every nested frame in
// document order. The first context with a visible marker wins; the main
// document is the fallback.
func (r *Resolver) LocateFormContext(ctx context.Context, page schemas.Page) (schemas.DocumentContext, error) {
	docs, err := page.Documents(ctx)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		for _, marker := range markerFields {
			if _, found := r.LocateAny(ctx, doc, r.chains[marker]); found {
				r.logger.Debug("Form context located",
					zap.Int("document_index", i), zap.String("marker", string(marker)))
				return doc, nil
			}
		}
	}
	r.logger.Warn("No marker matched any document; falling back to the main document")
	return page.MainDocument(), nil
}

// Resolve locates a field's element. Simple fields deliberately try only the
// first configured candidate; their structure is stable, and the wide-net
// search is reserved for the organization combobox.
func (r *Resolver) Resolve(ctx context.Context, doc schemas.DocumentContext, key FieldKey) (string, error) {
	chain := r.chains[key]
	if len(chain) == 0 {
		return "", &schemas.ElementNotFoundError{Field: string(key)}
	}
	sel, found, err := doc.Locate(ctx, chain[0])
	if err != nil {
		return "", err
	}
	if !found {
		return "", &schemas.ElementNotFoundError{Field: string(key)}
	}
	return sel, nil
}

// FillText fills a simple text field: forced click to focus, clear, then type
// character by character, followed by the configured pacing delay. Failures
// are logged and swallowed; the submit gate is the correctness backstop.
func (r *Resolver) FillText(ctx context.Context, doc schemas.DocumentContext, key FieldKey, value string) bool {
	sel, err := r.Resolve(ctx, doc, key)
	if err != nil {
		r.logger.Warn("Field not fillable", zap.String("field", string(key)), zap.Error(err))
		return false
	}
	if err := doc.Click(ctx, sel); err != nil {
		r.logger.Warn("Focus click failed", zap.String("field", string(key)), zap.Error(err))
	}
	if err := doc.ClearInput(ctx, sel); err != nil {
		r.logger.Warn("Clear failed", zap.String("field", string(key)), zap.Error(err))
	}
	if err := doc.TypeText(ctx, sel, value, r.pace.Keystroke()); err != nil {
		r.logger.Warn("Typing failed", zap.String("field", string(key)), zap.Error(err))
		return false
	}
	if err := r.pace.Sleep(ctx); err != nil {
		return false
	}
	return true
}
