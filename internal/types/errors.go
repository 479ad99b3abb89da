package types

import "errors"

// Sentinel errors for policykit operations.
var (
	// ErrValidation indicates form input that blocks submission.
	ErrValidation = errors.New("policy form has invalid fields")

	// ErrInvalidIPList indicates a condition value that is not a list of IP literals.
	ErrInvalidIPList = errors.New("value must be one or more comma-separated IPv4/IPv6 addresses")

	// ErrCoercionFailed indicates a value could not be converted to its declared type.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrInvalidDatetime indicates a datetime condition value could not be parsed.
	ErrInvalidDatetime = errors.New("invalid datetime value")

	// ErrPolicyNotFound indicates a policy ID with no stored policy.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrInvalidPolicyID indicates a malformed policy identifier.
	ErrInvalidPolicyID = errors.New("invalid policy id")

	// ErrCatalogUnavailable indicates reference data could not be fetched.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)
