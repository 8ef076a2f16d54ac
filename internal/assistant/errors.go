package assistant

import (
	"errors"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/threadlock"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrRunTimedOut       = errors.New("run did not settle in time")
	ErrTooManyToolRounds = errors.New("too many tool rounds")
	ErrThreadBusy        = threadlock.ErrBusy

	errTurnDeadline = errors.New("turn deadline")
)
