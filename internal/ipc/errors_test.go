package ipc

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFromRevert(t *testing.T) {
	testCases := []struct {
		raw      string
		expected error
	}{
		{raw: "execution reverted: custom error 0x497ef2c2", expected: ErrBucketAlreadyExists},
		{raw: "execution reverted: custom error 0x923b8cbb: nonce", expected: ErrNonceAlreadyUsed},
		{raw: "execution reverted: custom error 0x9605A010", expected: ErrOffsetOutOfBounds},
		{raw: "execution reverted: custom error 0x48e0ed68", expected: ErrNotSignedByBucketOwner},
	}
	for _, tc := range testCases {
		if got := ErrorFromRevert(errors.New(tc.raw)); !errors.Is(got, tc.expected) {
			t.Errorf("ErrorFromRevert(%q) = %v, want %v", tc.raw, got, tc.expected)
		}
	}
}

func TestErrorFromRevertUnknownSelector(t *testing.T) {
	raw := errors.New("execution reverted: custom error 0xdeadbeef")
	if got := ErrorFromRevert(raw); got != raw {
		t.Fatalf("unknown selector should pass through, got %v", got)
	}
	plain := errors.New("connection refused")
	if got := ErrorFromRevert(plain); got != plain {
		t.Fatalf("plain error should pass through, got %v", got)
	}
	if got := ErrorFromRevert(nil); got != nil {
		t.Fatalf("nil should stay nil, got %v", got)
	}
}

func TestErrorBySelector(t *testing.T) {
	err, ok := ErrorBySelector("0x497ef2c2")
	if !ok || !errors.Is(err, ErrBucketAlreadyExists) {
		t.Fatalf("expected ErrBucketAlreadyExists, got %v (ok=%v)", err, ok)
	}
	if _, ok := ErrorBySelector("0x00000000"); ok {
		t.Fatal("unexpected hit for zero selector")
	}
}

func TestIgnoreOffsetError(t *testing.T) {
	offset := fmt.Errorf("execution reverted: 0x9605a010")
	if err := IgnoreOffsetError(offset); err != nil {
		t.Fatalf("offset error should be ignorable, got %v", err)
	}
	other := fmt.Errorf("execution reverted: 0x497ef2c2")
	if err := IgnoreOffsetError(other); err == nil {
		t.Fatal("non-offset revert must propagate")
	}
}

func TestIsRetryableTxError(t *testing.T) {
	if !IsRetryableTxError(errors.New("nonce too low")) {
		t.Fatal("nonce too low should be retryable")
	}
	if !IsRetryableTxError(errors.New("replacement transaction underpriced")) {
		t.Fatal("underpriced replacement should be retryable")
	}
	if IsRetryableTxError(errors.New("insufficient funds for gas")) {
		t.Fatal("insufficient funds is not retryable")
	}
	if IsRetryableTxError(nil) {
		t.Fatal("nil is not retryable")
	}
}
