package publish

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKey("helios builder", "builder@example.com")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return kp
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp := testKeyPair(t)
	signer, err := ReadSigner(bytes.NewReader(kp.Private))
	if err != nil {
		t.Fatalf("ReadSigner: %v", err)
	}
	verifier, err := ReadVerifier(bytes.NewReader(kp.Public))
	if err != nil {
		t.Fatalf("ReadVerifier: %v", err)
	}

	message := []byte("component blob bytes")
	sig, err := signer.Sign(bytes.NewReader(message))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !strings.Contains(string(sig), "PGP SIGNATURE") {
		t.Fatalf("signature not armored:\n%s", sig)
	}

	if err := verifier.Verify(bytes.NewReader(message), sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp := testKeyPair(t)
	signer, err := ReadSigner(bytes.NewReader(kp.Private))
	if err != nil {
		t.Fatalf("ReadSigner: %v", err)
	}
	verifier, err := ReadVerifier(bytes.NewReader(kp.Public))
	if err != nil {
		t.Fatalf("ReadVerifier: %v", err)
	}

	sig, err := signer.Sign(strings.NewReader("original"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := verifier.Verify(strings.NewReader("tampered"), sig); !errors.Is(err, ErrVerify) {
		t.Fatalf("Verify error = %v, want ErrVerify", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	signer, err := ReadSigner(bytes.NewReader(testKeyPair(t).Private))
	if err != nil {
		t.Fatalf("ReadSigner: %v", err)
	}
	verifier, err := ReadVerifier(bytes.NewReader(testKeyPair(t).Public))
	if err != nil {
		t.Fatalf("ReadVerifier: %v", err)
	}

	sig, err := signer.Sign(strings.NewReader("message"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := verifier.Verify(strings.NewReader("message"), sig); !errors.Is(err, ErrVerify) {
		t.Fatalf("Verify error = %v, want ErrVerify", err)
	}
}

func TestNewSignerMissingFile(t *testing.T) {
	_, err := NewSigner(filepath.Join(t.TempDir(), "absent.key"))
	if !errors.Is(err, ErrKey) {
		t.Fatalf("NewSigner error = %v, want ErrKey", err)
	}
}

func TestReadSignerGarbage(t *testing.T) {
	_, err := ReadSigner(strings.NewReader("not an armored key"))
	if !errors.Is(err, ErrKey) {
		t.Fatalf("ReadSigner error = %v, want ErrKey", err)
	}
}

// Keys written to disk must load back through the path-based constructors
// used by the CLI.
func TestKeyPairFileRoundTrip(t *testing.T) {
	kp := testKeyPair(t)
	dir := t.TempDir()
	priv := filepath.Join(dir, "signing.key")
	pub := filepath.Join(dir, "signing.pub")
	if err := os.WriteFile(priv, kp.Private, 0o600); err != nil {
		t.Fatalf("write private: %v", err)
	}
	if err := os.WriteFile(pub, kp.Public, 0o644); err != nil {
		t.Fatalf("write public: %v", err)
	}

	signer, err := NewSigner(priv)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := NewVerifier(pub)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	sig, err := signer.Sign(strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := verifier.Verify(strings.NewReader("payload"), sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !strings.Contains(string(kp.Private), "PGP PRIVATE KEY BLOCK") {
		t.Errorf("private key not armored")
	}
	if !strings.Contains(string(kp.Public), "PGP PUBLIC KEY BLOCK") {
		t.Errorf("public key not armored")
	}
}
