// File: cmd/verify.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veriform/veriform-cli/api/schemas"
	"github.com/veriform/veriform-cli/internal/api"
	"github.com/veriform/veriform-cli/internal/browser"
	"github.com/veriform/veriform-cli/internal/form"
	"github.com/veriform/veriform-cli/internal/observability"
	"github.com/veriform/veriform-cli/internal/pacing"
	"github.com/veriform/veriform-cli/internal/registry"
	"github.com/veriform/veriform-cli/internal/verify"
)

// errInvalidArguments marks operator input errors, reported with exit code 2
// so wrappers can tell them apart from run failures.
var errInvalidArguments = errors.New("invalid arguments")

func errorsIsUsage(err error) bool {
	return errors.Is(err, errInvalidArguments)
}

var (
	verifyDryRun        bool
	verifyForceContinue bool
	verifyFirstName     string
	verifyLastName      string
	verifyBirthDate     string
	verifySchool        string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <verification-url> <email>",
	Short: "Run one verification workflow end to end.",
	Long: `Runs a single verification: prechecks the workflow state, fills the
personal information form in a headless browser, submits it and polls until
the workflow advances. The verification URL is the link handed out by the
requesting service and must carry the verification id.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "fill the form but do not submit")
	verifyCmd.Flags().BoolVar(&verifyForceContinue, "force-continue", false, "push through precheck and navigation failures for diagnosis")
	verifyCmd.Flags().StringVar(&verifyFirstName, "first-name", "", "first name to enter")
	verifyCmd.Flags().StringVar(&verifyLastName, "last-name", "", "last name to enter")
	verifyCmd.Flags().StringVar(&verifyBirthDate, "birth-date", "", "birth date as YYYY-M-D")
	verifyCmd.Flags().StringVar(&verifySchool, "school", "", "organization name to select")
	rootCmd.AddCommand(verifyCmd)
}

// parseVerificationURL extracts the verification id from a handed-out link.
// Both the verificationId query parameter and a /verify/<id> path segment are
// accepted.
func parseVerificationURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: malformed verification url %q", errInvalidArguments, raw)
	}

	if id := u.Query().Get("verificationId"); id != "" {
		return id, nil
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "verify" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: url %q carries no verification id", errInvalidArguments, raw)
}

func runVerify(cmd *cobra.Command, args []string) error {
	verificationID, err := parseVerificationURL(args[0])
	if err != nil {
		return err
	}
	email := args[1]
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: %q is not an email address", errInvalidArguments, email)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Verify.DryRun = verifyDryRun
	}
	if cmd.Flags().Changed("force-continue") {
		cfg.Verify.ForceContinue = verifyForceContinue
	}

	logger := observability.GetLogger()

	session := browser.NewSession(cfg, logger)
	defer func() {
		if err := session.Close(context.Background()); err != nil {
			logger.Debug("Browser session close failed", zap.Error(err))
		}
	}()

	client := api.NewClient(cfg.API, session.Transport(), logger)
	poller := api.NewPoller(client, cfg.Verify.BaseURL, logger)

	pace := pacing.New(cfg.Delays)
	resolver := form.NewResolver(cfg.Selectors, pace, logger)
	sequencer := form.NewSequencer(resolver, pace, logger)
	driver := form.NewDriver(resolver, sequencer)
	sink := browser.NewSink(cfg.Diagnostics, logger)

	orch, err := verify.New(cfg, logger, session, poller, driver, sink)
	if err != nil {
		return err
	}

	profile := schemas.VerificationProfile{
		FirstName:        verifyFirstName,
		LastName:         verifyLastName,
		Email:            email,
		BirthDate:        verifyBirthDate,
		OrganizationName: verifySchool,
		VerificationID:   verificationID,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Run(ctx, profile)
	if err != nil {
		return err
	}

	if result.Snapshot != nil && verifySchool != "" && result.Snapshot.SchoolID != "" {
		reg := registry.New(cfg.Registry, logger)
		if reg.MatchesID(verifySchool, result.Snapshot.SchoolID) {
			logger.Info("Bound organization id matches the registry",
				zap.String("school", verifySchool), zap.String("id", result.Snapshot.SchoolID))
		} else if _, known := reg.Lookup(verifySchool); known {
			logger.Warn("Bound organization id differs from the registry record",
				zap.String("school", verifySchool), zap.String("id", result.Snapshot.SchoolID))
		}
	}

	fmt.Println(result.Message)
	if !result.Success {
		return fmt.Errorf("verification run failed: %s", result.Message)
	}
	return nil
}
