package core

import (
	"errors"
)

var (
	// ErrUnknownUser is returned when a sender or receiver does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrConnClosed is returned by Conn.ReadFrame after a normal close handshake.
	ErrConnClosed = errors.New("connection closed")
	// ErrServerShutdown is the close cause used when the hub stops.
	ErrServerShutdown = errors.New("server shutting down")
)

// PersistenceError wraps a message store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TransportError wraps a read or write failure on a connection handle.
type TransportError struct {
	ConnID string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	if e.ConnID == "" {
		return "transport " + e.Op + ": " + e.Err.Error()
	}
	return "transport " + e.Op + " on " + e.ConnID + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
