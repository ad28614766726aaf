package logging

import (
	"log/slog"
	"time"
)

// Field names shared by the listener and the emitter.
const (
	FieldService    = "service"
	FieldRequestID  = "request_id"
	FieldConnID     = "conn_id"
	FieldRemoteAddr = "remote_addr"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldMinute     = "minute"
	FieldSegments   = "segments"
	FieldValid      = "valid"
	FieldBackend    = "backend"
	FieldSubject    = "subject"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func ConnID(id string) slog.Attr {
	return slog.String(FieldConnID, id)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String(FieldRemoteAddr, addr)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration reports d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an error attribute. A nil error is logged as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Minute formats a bucket key in RFC 3339, UTC.
func Minute(t time.Time) slog.Attr {
	return slog.String(FieldMinute, t.UTC().Format(time.RFC3339))
}

func Segments(n int) slog.Attr {
	return slog.Int(FieldSegments, n)
}

func Valid(n int) slog.Attr {
	return slog.Int(FieldValid, n)
}

func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}
