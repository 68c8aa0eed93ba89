package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", err: status.Error(codes.NotFound, "missing"), notFound: true},
		{name: "already exists", err: status.Error(codes.AlreadyExists, "dup"), conflict: true},
		{name: "aborted", err: status.Error(codes.Aborted, "contention"), conflict: true},
		{name: "precondition", err: fmt.Errorf("order changed: %w", ErrPreconditionFailed), conflict: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), unavailable: true},
		{name: "deadline code", err: status.Error(codes.DeadlineExceeded, "slow"), unavailable: true},
		{name: "unknown", err: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("orders.get", tc.err)
			var fsErr *Error
			if !errors.As(err, &fsErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if fsErr.IsNotFound() != tc.notFound || fsErr.IsConflict() != tc.conflict || fsErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %v: notFound=%v conflict=%v unavailable=%v",
					tc.err, fsErr.IsNotFound(), fsErr.IsConflict(), fsErr.IsUnavailable())
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected original error to stay in chain")
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline passthrough, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); err != context.Canceled {
		t.Fatalf("expected canceled mapping, got %v", err)
	}
}

func TestWrapErrorKeepsExistingOp(t *testing.T) {
	inner := WrapError("orders.get", status.Error(codes.NotFound, "missing"))
	outer := WrapError("transaction", inner)
	if outer.Error() != inner.Error() {
		t.Fatalf("expected op to be preserved, got %q", outer.Error())
	}
}
