package payment

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"id":"evt-1","type":"payment_succeeded"}`)

	valid := Signature(secret, body)

	cases := []struct {
		name     string
		secret   []byte
		body     []byte
		provided string
		want     bool
	}{
		{name: "valid", secret: secret, body: body, provided: valid, want: true},
		{name: "wrong secret", secret: []byte("other"), body: body, provided: valid, want: false},
		{name: "tampered body", secret: secret, body: []byte(`{"id":"evt-2"}`), provided: valid, want: false},
		{name: "empty signature", secret: secret, body: body, provided: "", want: false},
		{name: "not hex", secret: secret, body: body, provided: "zzzz", want: false},
		{name: "empty secret", secret: nil, body: body, provided: valid, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(tc.secret, tc.body, tc.provided); got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSignatureIsDeterministicHex(t *testing.T) {
	secret := []byte("s")
	body := []byte("b")

	first := Signature(secret, body)
	second := Signature(secret, body)
	if first != second {
		t.Fatalf("signature must be deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars for sha256, got %d", len(first))
	}
}
