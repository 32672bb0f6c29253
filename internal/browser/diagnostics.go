// File: internal/browser/diagnostics.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/config"
)

// Sink writes labeled screenshot and HTML dumps of a page. Every failure is
// logged and swallowed; diagnostics must never affect the run outcome.
type Sink struct {
	cfg    config.DiagnosticsConfig
	logger *zap.Logger
}

var _ schemas.DiagnosticsSink = (*Sink)(nil)

// NewSink builds a diagnostics sink.
func NewSink(cfg config.DiagnosticsConfig, logger *zap.Logger) *Sink {
	return &Sink{cfg: cfg, logger: logger.Named("diagnostics")}
}

// DumpPage captures the page as <timestamp>_<label>.png and .html under the
// configured dump directory.
func (s *Sink) DumpPage(ctx context.Context, page schemas.Page, label string) {
	if !s.cfg.Enabled || page == nil {
		return
	}

	dir, err := homedir.Expand(s.cfg.Dir)
	if err != nil {
		s.logger.Warn("Dump directory not resolvable", zap.String("dir", s.cfg.Dir), zap.Error(err))
		return
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.logger.Warn("Dump directory not writable", zap.String("dir", dir), zap.Error(err))
		return
	}

	base := filepath.Join(dir, fmt.Sprintf("%s_%s", time.Now().Format("20060102T150405"), label))

	if shot, err := page.Screenshot(ctx); err != nil {
		s.logger.Debug("Screenshot capture failed", zap.String("label", label), zap.Error(err))
	} else if err := os.WriteFile(base+".png", shot, 0o600); err != nil {
		s.logger.Warn("Screenshot write failed", zap.String("label", label), zap.Error(err))
	}

	if html, err := page.Content(ctx); err != nil {
		s.logger.Debug("HTML capture failed", zap.String("label", label), zap.Error(err))
	} else if err := os.WriteFile(base+".html", []byte(html), 0o600); err != nil {
		s.logger.Warn("HTML write failed", zap.String("label", label), zap.Error(err))
	}

	s.logger.Info("Page evidence captured", zap.String("label", label), zap.String("path", base))
}
