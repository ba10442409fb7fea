package app

import "fmt"

// DomainError is a service-layer failure that already knows how it should
// render: the Status becomes the HTTP status and Code/Message/Details fill
// the {code, error, details} response envelope. Generation validation leans
// on this heavily since its messages are part of the client contract.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
