package errs

// Error codes. The 110x block is the historical gateway numbering.
const (
	ParseErrorCode         = -32700
	InvalidRequestCode     = -32600
	ValidationCode         = 1101
	AuthCode               = 1102
	MethodNotAllowedCode   = 1103
	ServiceUnavailableCode = 1104
	DeliveryNotFoundCode   = 1105
	DeliveryFatalCode      = 1106
	RoutingCode            = 1107
	ServerInternalError    = 500
)

// Prototypes. Never mutate these; use WithDetail to derive.
var (
	ErrParse              = New(ParseErrorCode, "Parse error")
	ErrInvalidRequest     = New(InvalidRequestCode, "Invalid request")
	ErrValidation         = New(ValidationCode, "Invalid authenticate params")
	ErrAuth               = New(AuthCode, "Signature verification failed")
	ErrMethodNotAllowed   = New(MethodNotAllowedCode, "Method not allowed")
	ErrServiceUnavailable = New(ServiceUnavailableCode, "Fail to pass data from client to service")
	ErrDeliveryNotFound   = New(DeliveryNotFoundCode, "Cant transfer to client - not found")
	ErrDeliveryFatal      = New(DeliveryFatalCode, "Notify client fatal error")
	ErrRouting            = New(RoutingCode, "Unknown destination service")
	ErrInternal           = New(ServerInternalError, "Internal server error")
)
