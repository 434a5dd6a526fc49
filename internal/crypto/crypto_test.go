package crypto

import (
	"strings"
	"testing"
)

// Well-known anvil test key, never used on a real network.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSignerAddress(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatal(err)
	}
	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	if got := s.Address().Hex(); got != want {
		t.Fatalf("address = %s, want %s", got, want)
	}

	// The 0x prefix form parses to the same key.
	s2, err := NewSigner("0x"+testKey, 137)
	if err != nil {
		t.Fatal(err)
	}
	if s2.Address() != s.Address() {
		t.Fatal("prefix changed the derived address")
	}
}

func TestSignAuthMessage(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+65*2 {
		t.Fatalf("signature format: %s", sig)
	}
	// Deterministic for fixed inputs.
	sig2, _ := s.SignAuthMessage(s.Address().Hex(), 1700000000, 0)
	if sig != sig2 {
		t.Fatal("auth signature not deterministic")
	}
}

func TestSignOrderRejectsBadFields(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatal(err)
	}
	o := SignableOrder{
		Salt: "not-a-number", TokenID: "1", MakerAmount: "1", TakerAmount: "1",
		Expiration: "0", Nonce: "0", FeeRateBps: "0",
	}
	if _, err := s.SignOrder(o); err == nil {
		t.Fatal("want error for non-numeric salt")
	}
}

func TestRequestHeadersDeterministic(t *testing.T) {
	creds := &APICreds{Key: "key-1", Secret: "c2VjcmV0LWJ5dGVz", Passphrase: "pass"}
	h1 := creds.RequestHeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)
	h2 := creds.RequestHeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)
	if h1["POLY_SIGNATURE"] == "" || h1["POLY_SIGNATURE"] != h2["POLY_SIGNATURE"] {
		t.Fatalf("signatures differ: %q vs %q", h1["POLY_SIGNATURE"], h2["POLY_SIGNATURE"])
	}
	if h1["POLY_TIMESTAMP"] != "1700000000" || h1["POLY_API_KEY"] != "key-1" {
		t.Fatalf("headers: %+v", h1)
	}

	h3 := creds.RequestHeadersAt("0xabc", "POST", "/order", `{"a":2}`, 1700000000)
	if h3["POLY_SIGNATURE"] == h1["POLY_SIGNATURE"] {
		t.Fatal("different bodies produced the same signature")
	}
}

func TestKeyfileRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got != testKey {
		t.Fatalf("round trip: got %s", got)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestLoadKeyRawWins(t *testing.T) {
	got, err := LoadKey(KeySource{RawPrivateKey: "0x" + testKey, EncryptedKeyPath: "/nonexistent"})
	if err != nil {
		t.Fatal(err)
	}
	if got != testKey {
		t.Fatalf("got %s", got)
	}
	if _, err := LoadKey(KeySource{}); err == nil {
		t.Fatal("empty source accepted")
	}
}
