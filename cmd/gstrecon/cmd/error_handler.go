package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// CLIErrorHandler turns errors into user-facing messages and exit
// codes.
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints a friendly message and returns the process exit
// code. A nil error is exit code zero.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if reconErr, ok := errors.AsReconError(err); ok {
		return h.handleReconError(reconErr)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func (h *CLIErrorHandler) handleReconError(err *errors.ReconError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}
	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}
	if help := categoryHelp(err.Category); help != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", help)
	}
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return "Check that the file exists, the path is correct and you have read access."
	case errors.CategoryParse:
		return "Verify the file is a valid CSV register or portal JSON payload with recognizable headers."
	case errors.CategoryConfiguration:
		return "Run with --help to see valid flag combinations and values."
	case errors.CategoryAuth:
		return "The portal session may have expired. Request a fresh OTP and verify it, then retry."
	case errors.CategoryNetwork:
		return "The portal may be slow or unavailable. Check connectivity and retry; cached periods are reused."
	default:
		return ""
	}
}

// recoverToError converts a panic during command execution into a
// typed internal error so the CLI never emits a partial report plus a
// stack trace.
func recoverToError(operation string, errp *error) {
	if r := recover(); r != nil {
		*errp = errors.InternalError(errors.CodeUnexpectedError, operation,
			fmt.Errorf("panic: %v", r))
	}
}
