// Package envelope holds the {status, message, data|error} result shape
// returned by service operations and tools.
package envelope

const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

type Envelope struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(message string, data any) Envelope {
	return Envelope{Message: message, Data: data}
}

func Fail(message string, err error) Envelope {
	e := Envelope{Message: message}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func WithStatus(status, message string) Envelope {
	return Envelope{Status: status, Message: message}
}

// Failed reports whether the envelope carries an error.
func (e Envelope) Failed() bool {
	return e.Error != "" || e.Status == StatusError
}
