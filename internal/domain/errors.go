package domain

import "errors"

// Errores compartidos entre el adaptador de voz, el controlador de intake y el motor de matching.
var (
	// ErrCapabilityUnavailable indica que el servicio de voz no respondio dentro del presupuesto de reintentos.
	ErrCapabilityUnavailable = errors.New("voice capability unavailable")
	// ErrInvalidState marca una violacion de protocolo (ej: doble inicio de grabacion).
	ErrInvalidState = errors.New("invalid state")

	ErrResponseMissing   = errors.New("response missing for current question")
	ErrSessionIncomplete = errors.New("session incomplete")
	ErrSessionComplete   = errors.New("session complete")
	ErrSessionFinalized  = errors.New("session already finalized")
	ErrAtStart           = errors.New("already at first question")
	ErrSessionNotFound   = errors.New("session not found")
	ErrMatchesNotFound   = errors.New("matches not found")
	ErrProfileNotFound   = errors.New("subject profile not found")

	// ErrInvalidInput marca entradas mal formadas (ej: candidato con edad negativa).
	ErrInvalidInput = errors.New("invalid input")
)
