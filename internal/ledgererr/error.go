// Package ledgererr defines the typed error taxonomy shared by every
// ledger-core package. Callers are expected to match on Kind rather than
// on error strings.
package ledgererr

import "github.com/pkg/errors"

// Kind identifies one of the error categories from the ledger's error
// taxonomy. Every typed error surfaced to a submitter carries exactly one
// Kind.
type Kind int

const (
	// KindUnknown is never returned; it catches zero-value misuse.
	KindUnknown Kind = iota
	KindMalformedEncoding
	KindInvalidSignature
	KindInvalidAddress
	KindDoubleSpend
	KindNonceGap
	KindNonceConflict
	KindFeeTooLow
	KindInsufficientFunds
	KindBlockSizeExceeded
	KindTxCountExceeded
	KindInvalidProofOfWork
	KindMerkleMismatch
	KindUnknownParent
	KindReorgTooDeep
	KindCheckpointViolation
	KindResourceExhausted
	KindCancelled
	KindStorageFailure
	KindSupplyCapExceeded
	KindGovernanceInvalid
)

func (k Kind) String() string {
	switch k {
	case KindMalformedEncoding:
		return "MalformedEncoding"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidAddress:
		return "InvalidAddress"
	case KindDoubleSpend:
		return "DoubleSpend"
	case KindNonceGap:
		return "NonceGap"
	case KindNonceConflict:
		return "NonceConflict"
	case KindFeeTooLow:
		return "FeeTooLow"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindBlockSizeExceeded:
		return "BlockSizeExceeded"
	case KindTxCountExceeded:
		return "TxCountExceeded"
	case KindInvalidProofOfWork:
		return "InvalidProofOfWork"
	case KindMerkleMismatch:
		return "MerkleMismatch"
	case KindUnknownParent:
		return "UnknownParent"
	case KindReorgTooDeep:
		return "ReorgTooDeep"
	case KindCheckpointViolation:
		return "CheckpointViolation"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindCancelled:
		return "Cancelled"
	case KindStorageFailure:
		return "StorageFailure"
	case KindSupplyCapExceeded:
		return "SupplyCapExceeded"
	case KindGovernanceInvalid:
		return "GovernanceInvalid"
	default:
		return "Unknown"
	}
}

// Error is the concrete typed error every ledger-core package returns.
type Error struct {
	Kind Kind
	msg  string
	// cause is wrapped with github.com/pkg/errors' WithStack, which
	// records the stack at the Wrap call. Error() appends only the
	// cause's message; the stack is reached by unwrapping the cause.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.msg + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.msg
}

// Unwrap allows errors.As/errors.Is to see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// New constructs a typed Error from a formatted message. It carries no
// cause and records no stack trace.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: errors.Errorf(format, args...).Error()}
}

// Wrap constructs a typed Error that preserves an underlying cause (e.g. a
// storage I/O failure) for diagnostics while still classifying it by Kind
// for callers.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: errors.Errorf(format, args...).Error(), cause: errors.WithStack(cause)}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind == kind
	}
	return false
}
