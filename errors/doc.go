// Package errors classifies pipeline errors as Transient, Invalid or Fatal.
//
// Wrapping follows one format everywhere:
//
//	"component.method: action failed: %w"
//
// Configuration problems are Invalid and wrap ErrInvalidConfig. Malformed
// wire records are *ParseError (unwraps to ErrParsingFailed) and series that
// cannot support property extraction are *DegenerateDataError (unwraps to
// ErrDegenerateData). Transport failures are Transient, which is what the
// retry package keys on when reopening a port or reconnecting.
//
//	if err := geometry.Validate(); err != nil {
//	    if errors.IsInvalid(err) {
//	        // report to the operator, do not retry
//	    }
//	}
package errors
