package dynamodbstore

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ErrConditionFailed is returned when a conditional write's condition
// expression didn't hold.
var ErrConditionFailed = errors.New("dynamodbstore: condition failed")

// TransientError wraps a failure safe to retry: throttling, a 5xx, or a
// network error.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("dynamodbstore: transient: %v", e.Cause) }
func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError wraps a failure that retrying won't fix: bad credentials, a
// missing table, or a malformed request.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("dynamodbstore: fatal: %v", e.Cause) }
func (e *FatalError) Unwrap() error { return e.Cause }

// classify turns an error returned by the AWS SDK into one of this
// package's four outcomes: nil, ErrConditionFailed, *TransientError, or
// *FatalError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return ErrConditionFailed
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if isFatalCode(apiErr.ErrorCode()) {
			return &FatalError{Cause: err}
		}
		return &TransientError{Cause: err}
	}

	// Not an AWS API error at all: a dialling/timeout/context error from
	// the SDK's transport. Treat as transient, the same as a throttled or
	// 5xx response -- the caller's retry loop is the only thing that can
	// tell the difference between "the network blipped" and "it'll never
	// work", and both warrant a retry rather than giving up.
	return &TransientError{Cause: err}
}

// isFatalCode reports whether a DynamoDB error code indicates a request
// that will never succeed no matter how many times it's retried --
// missing table, bad permissions, malformed request -- as opposed to a
// throttling or capacity error that clears up on its own.
func isFatalCode(code string) bool {
	switch code {
	case "ResourceNotFoundException",
		"AccessDeniedException",
		"UnrecognizedClientException",
		"ValidationException",
		"InvalidSignatureException":
		return true
	default:
		return false
	}
}
