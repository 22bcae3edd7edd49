package common

// Command is a request received over the command bridge.
type Command struct {
	Action        string      `json:"action" validate:"required"`
	ChargePointId string      `json:"chargePointId" validate:"required"`
	Payload       interface{} `json:"payload"`
}

type Response struct {
	Payload interface{} `json:"payload,omitempty"`
	Err     *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func ErrorResponse(code, message string) Response {
	return Response{Err: &Error{Code: code, Message: message}}
}
