package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestCodeNamesAndHTTP(t *testing.T) {
	if ErrorCodeDecompress.String() != "decompress" {
		t.Fatalf("String = %q", ErrorCodeDecompress.String())
	}
	if ErrorCode(999).String() != "code(999)" {
		t.Fatalf("out of range String = %q", ErrorCode(999).String())
	}
	cases := map[ErrorCode]int{
		ErrorCodeNotFound:    http.StatusNotFound,
		ErrorCodeValidation:  http.StatusBadRequest,
		ErrorCodeConflict:    http.StatusConflict,
		ErrorCodeUnavailable: http.StatusServiceUnavailable,
		ErrorCodeIO:          http.StatusInternalServerError,
	}
	for c, want := range cases {
		if got := HTTPStatusCode(c); got != want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", c, got, want)
		}
	}
}

func TestWrapRendersOpAndCause(t *testing.T) {
	cause := stderrs.New("gzip: invalid header")
	err := WithOp(Wrap(cause, ErrorCodeDecompress, "open shard"), "process")
	if got := err.Error(); got != "process: open shard: gzip: invalid header" {
		t.Fatalf("Error() = %q", got)
	}
	if !stderrs.Is(err, cause) {
		t.Fatalf("errors.Is should reach the cause")
	}
	if Root(err) != cause {
		t.Fatalf("Root should be the cause")
	}
	if got := Reason(err); got != "decompress: process: open shard: gzip: invalid header" {
		t.Fatalf("Reason = %q", got)
	}
	if Reason(nil) != "" {
		t.Fatalf("Reason(nil) should be empty")
	}

	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Fatalf("nil render")
	}
}

func TestCodeOfForeignAndCanceled(t *testing.T) {
	if CodeOf(stderrs.New("x")) != ErrorCodeUnknown {
		t.Fatalf("foreign error should be unknown")
	}
	if CodeOf(fmt.Errorf("wrapped: %w", context.Canceled)) != ErrorCodeCanceled {
		t.Fatalf("canceled should map to ErrorCodeCanceled")
	}
	if !IsCode(WithField(New(ErrorCodeValidation, "bad"), "workers"), ErrorCodeValidation) {
		t.Fatalf("WithField should keep code")
	}
	e, _ := As(WithField(New(ErrorCodeValidation, "bad"), "workers"))
	if e.Field() != "workers" {
		t.Fatalf("Field = %q", e.Field())
	}
	if WrapIf(nil, ErrorCodeIO, "x") != nil {
		t.Fatalf("WrapIf(nil) should be nil")
	}
}

type fakeSQLiteErr struct{ code int }

func (e fakeSQLiteErr) Error() string { return "sqlite error" }
func (e fakeSQLiteErr) Code() int     { return e.code }

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"unavailable code", New(ErrorCodeUnavailable, "down"), true},
		{"pg serialization", &pgconn.PgError{Code: pgErrSerializationFailure}, true},
		{"pg unique", &pgconn.PgError{Code: pgErrUniqueViolation}, false},
		{"pg commit text", stderrs.New("commit unexpectedly resulted in rollback"), true},
		{"sqlite busy", fakeSQLiteErr{code: 5}, true},
		{"sqlite busy snapshot", fakeSQLiteErr{code: 517}, true},
		{"sqlite constraint", fakeSQLiteErr{code: 19}, false},
		{"sqlite text", stderrs.New("database is locked"), true},
		{"plain", stderrs.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil {
		t.Fatalf("nil in, nil out")
	}
	err := FromPostgres(&pgconn.PgError{Code: pgErrDeadlockDetected}, "claim")
	if CodeOf(err) != ErrorCodeUnavailable {
		t.Fatalf("deadlock should map to unavailable, got %v", CodeOf(err))
	}
	if CodeOf(FromPostgres(stderrs.New("conn reset"), "claim")) != ErrorCodeDB {
		t.Fatalf("foreign error should map to db")
	}
	if !IsUndefinedTable(&pgconn.PgError{Code: pgErrUndefinedTable}) || IsDuplicateKey(stderrs.New("x")) {
		t.Fatalf("predicates")
	}
}
