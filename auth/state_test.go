package auth

import (
	"errors"
	"testing"
	"time"
)

func TestStateSignVerify(t *testing.T) {
	signer := newStateSigner([]byte("test-secret"), 10*time.Minute)

	state, err := signer.Sign()
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if state == "" {
		t.Fatal("Sign() returned empty state")
	}
	if err := signer.Verify(state); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestStateVerifyRejectsEmpty(t *testing.T) {
	signer := newStateSigner([]byte("test-secret"), 10*time.Minute)
	if err := signer.Verify(""); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("Verify(\"\") = %v, want ErrStateInvalid", err)
	}
}

func TestStateVerifyRejectsTampered(t *testing.T) {
	signer := newStateSigner([]byte("test-secret"), 10*time.Minute)

	state, err := signer.Sign()
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	tampered := state[:len(state)-2] + "xx"
	if err := signer.Verify(tampered); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("Verify(tampered) = %v, want ErrStateInvalid", err)
	}
}

func TestStateVerifyRejectsWrongKey(t *testing.T) {
	signer := newStateSigner([]byte("test-secret"), 10*time.Minute)
	other := newStateSigner([]byte("other-secret"), 10*time.Minute)

	state, err := signer.Sign()
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if err := other.Verify(state); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("Verify() with wrong key = %v, want ErrStateInvalid", err)
	}
}

func TestStateVerifyRejectsExpired(t *testing.T) {
	signer := newStateSigner([]byte("test-secret"), 10*time.Minute)

	state, err := signer.Sign()
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	// Move the verifier's clock past the TTL.
	signer.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if err := signer.Verify(state); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("Verify(expired) = %v, want ErrStateInvalid", err)
	}
}

func TestStateNoncesDiffer(t *testing.T) {
	signer := newStateSigner([]byte("test-secret"), 10*time.Minute)

	a, _ := signer.Sign()
	b, _ := signer.Sign()
	if a == b {
		t.Error("consecutive states are identical, want unique nonces")
	}
}
