package logger

const (
	FieldError     = "error"
	FieldAddress   = "address"
	FieldMessageID = "message_id"
	FieldRequestID = "request_id"
	FieldPath      = "path"
	FieldMethod    = "method"
	FieldStatus    = "status"
	FieldState     = "state"
)
