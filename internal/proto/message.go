package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimeFormat is the layout of createdTime in outbound frames.
const TimeFormat = time.RFC3339Nano

// Inbound is the frame a client sends to post a direct message.
type Inbound struct {
	SenderID   string  `json:"senderId" validate:"required"`
	ReceiverID string  `json:"receiverId" validate:"required"`
	Content    *string `json:"content" validate:"required"`
}

// Envelope is the decoded content of an inbound frame.
type Envelope struct {
	SenderID   string
	ReceiverID string
	Content    string
}

// Outbound is the frame broadcast to connected clients for a persisted message.
type Outbound struct {
	MessageID   string `json:"messageId"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	CreatedTime string `json:"createdTime"`
	IsRead      bool   `json:"isRead"`
}

// DecodeError reports an inbound frame that is not a recognised envelope.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode frame: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses a raw text frame into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, &DecodeError{Reason: "frame is not a JSON object"}
	}

	var in Inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return Envelope{}, &DecodeError{Reason: "invalid json", Err: err}
	}

	if err := validate.Struct(in); err != nil {
		return Envelope{}, &DecodeError{Reason: "missing fields " + missingFields(err), Err: err}
	}

	return Envelope{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    *in.Content,
	}, nil
}

// Encode serializes an outbound frame.
func Encode(out Outbound) ([]byte, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// FormatTime renders a timestamp the way outbound frames carry it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func missingFields(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return strings.Join(names, ",")
}
