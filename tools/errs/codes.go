package errs

// Result codes returned on the webhook wire.
const (
	CodeOK                  = 0
	CodeMissingArgument     = 1
	CodeInvariantViolation  = 2
	CodeIdentityMismatch    = 3
	CodeRoomNotFound        = 5
	CodeActorsCountMismatch = 6
	CodeInternal            = -1
)

var (
	ErrMissingArgument     = &CodeError{Code: CodeMissingArgument, Msg: "MissingArgument"}
	ErrInvariantViolation  = &CodeError{Code: CodeInvariantViolation, Msg: "InvariantViolation"}
	ErrIdentityMismatch    = &CodeError{Code: CodeIdentityMismatch, Msg: "IdentityMismatch"}
	ErrRoomNotFound        = &CodeError{Code: CodeRoomNotFound, Msg: "RoomNotFound"}
	ErrActorsCountMismatch = &CodeError{Code: CodeActorsCountMismatch, Msg: "ActorsCountMismatch"}

	// infrastructure failures share the -1 wire code
	ErrStoreUnavailable = &CodeError{Code: CodeInternal, Msg: "StoreUnavailable"}
	ErrConflict         = &CodeError{Code: CodeInternal, Msg: "Conflict"}
	ErrInternal         = &CodeError{Code: CodeInternal, Msg: "InternalError"}
)
