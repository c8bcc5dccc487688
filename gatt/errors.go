package gatt

import "fmt"

// ATT error codes surfaced by transports when a request or notification
// cannot be completed
const (
	ErrCodeInvalidHandle               = 0x01
	ErrCodeWriteNotPermitted           = 0x03
	ErrCodeRequestNotSupported         = 0x06
	ErrCodeInvalidOffset               = 0x07
	ErrCodeAttributeNotFound           = 0x0A
	ErrCodeInvalidAttributeValueLength = 0x0D
	ErrCodeUnlikelyError               = 0x0E
)

// Error represents an ATT-level failure with its protocol error code
type Error struct {
	Code        uint8
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (ATT 0x%02X)", e.Description, e.Code)
}

var (
	ErrInvalidHandle               = &Error{Code: ErrCodeInvalidHandle, Description: "Invalid Handle"}
	ErrWriteNotPermitted           = &Error{Code: ErrCodeWriteNotPermitted, Description: "Write Not Permitted"}
	ErrAttributeNotFound           = &Error{Code: ErrCodeAttributeNotFound, Description: "Attribute Not Found"}
	ErrInvalidAttributeValueLength = &Error{Code: ErrCodeInvalidAttributeValueLength, Description: "Invalid Attribute Value Length"}
	ErrUnlikely                    = &Error{Code: ErrCodeUnlikelyError, Description: "Unlikely Error"}
)
