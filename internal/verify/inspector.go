// File: internal/verify/inspector.go
package verify

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
)

// defaultStatusPatterns match the visible "cannot confirm / needs documents /
// try again" style messages deployments render on pending and error steps.
var defaultStatusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unable to (verify|confirm)[^<.]{0,120}`),
	regexp.MustCompile(`(?i)couldn['’]?t (verify|confirm)[^<.]{0,120}`),
	regexp.MustCompile(`(?i)(additional|upload)[^<.]{0,40}document[^<.]{0,80}`),
	regexp.MustCompile(`(?i)try again[^<.]{0,80}`),
	regexp.MustCompile(`(?i)not eligible[^<.]{0,120}`),
}

// StatusInspector scans a rendered page for operator-relevant status text.
// Used for diagnosis when the workflow lands on a pending or error step; it
// soft-fails to "nothing found".
type StatusInspector struct {
	patterns []*regexp.Regexp
	logger   *zap.Logger
}

// NewStatusInspector builds an inspector with the default pattern set.
func NewStatusInspector(logger *zap.Logger) *StatusInspector {
	return &StatusInspector{
		patterns: defaultStatusPatterns,
		logger:   logger.Named("inspector"),
	}
}

// Inspect returns the first matching status message from the page content.
func (i *StatusInspector) Inspect(ctx context.Context, page schemas.Page) (string, bool) {
	content, err := page.Content(ctx)
	if err != nil {
		i.logger.Debug("Page content unavailable for inspection", zap.Error(err))
		return "", false
	}
	for _, p := range i.patterns {
		if m := p.FindString(content); m != "" {
			msg := strings.Join(strings.Fields(m), " ")
			i.logger.Info("Status message found on page", zap.String("message", msg))
			return msg, true
		}
	}
	return "", false
}
