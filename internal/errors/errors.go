package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/sanbridge/internal/session"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ArrayError wraps a session failure against a storage array with a hint
// for the operator.
func ArrayError(vendor, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s array error during %s", vendor, operation),
		Suggestion: getArraySuggestion(vendor, err),
		Err:        err,
	}
}

func getArraySuggestion(vendor string, err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return "The array rejected the username or password. Check the password source for this array"
	case errors.Is(err, session.ErrNoDevice):
		if vendor == "hitachi-vsp" {
			return "No storage system in the configuration manager matched the address. Use a controller IP for supported models or the SVP IP otherwise, or extend 'models'"
		}
		return "Log in before reading resources"
	case session.IsHardFault(err):
		return "The management service answered 503. It may be restarting; try again later"
	case session.IsUnreachable(err):
		return "Unable to reach the management address. Check the address, port, firewall and TLS settings"
	}

	errStr := err.Error()
	if vendor == "hitachi-vsp" && strings.Contains(errStr, "KART30005-E") {
		return "The storage system is locked by another session or maintenance task"
	}
	if strings.Contains(errStr, "x509") || strings.Contains(errStr, "certificate") {
		return "Set tls.ca_cert to the array's CA, or tls.insecure_skip_verify for lab arrays"
	}
	return ""
}

// SourceError enhances credential source errors with context
func SourceError(source string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s password source error during %s", source, operation),
		Suggestion: getSourceSuggestion(source, err),
		Err:        err,
	}
}

// getSourceSuggestion returns helpful suggestions based on source and error
func getSourceSuggestion(source string, err error) string {
	errStr := err.Error()

	switch source {
	case "aws.secretsmanager", "aws.ssm":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:GetSecretValue or ssm:GetParameter"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "ParameterNotFound") {
			return "Verify the secret name and region"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "azure.keyvault":
		if strings.Contains(errStr, "Forbidden") || strings.Contains(errStr, "403") {
			return "Check Key Vault access policies: 'Get' permission is required for secrets"
		}
		if strings.Contains(errStr, "SecretNotFound") || strings.Contains(errStr, "404") {
			return "Verify the secret name exists in the Key Vault. Secret names are case-sensitive"
		}

	case "gcp.secretmanager":
		if strings.Contains(errStr, "PermissionDenied") {
			return "Check IAM permissions: secretmanager.versions.access"
		}
		if strings.Contains(errStr, "NotFound") {
			return "Verify the secret name and project ID"
		}

	case "keychain":
		if strings.Contains(errStr, "not found") {
			return "Store the password first, e.g. 'secret-tool store --label sanbridge service <service> username <account>'"
		}

	case "akeyless":
		if strings.Contains(errStr, "authentication failed") {
			return "Check the Akeyless access ID and access key"
		}

	case "vault":
		if strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "403") {
			return "Check the Vault token policy allows read on the secret path"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and source configuration"
	}

	return ""
}

// IsRetryable checks if an error is worth retrying on the next poll
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if session.IsHardFault(err) || session.IsUnreachable(err) {
		return true
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
