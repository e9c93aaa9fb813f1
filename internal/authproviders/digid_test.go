package authproviders

import (
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"testing"
)

func TestExtractBSNStripsPrefixAndLeftPads(t *testing.T) {
	cases := []struct {
		nameID  string
		want    string
		wantErr bool
	}{
		{"s00000000:123456789", "123456789", false},
		{"s00000000:42", "000000042", false},
		{"no-prefix-here", "", true},
		{"s00000000:", "", true}, // no digits left after stripping the prefix
	}
	for _, c := range cases {
		got, err := extractBSN(c.nameID)
		if c.wantErr {
			if err == nil {
				t.Fatalf("extractBSN(%q): expected error", c.nameID)
			}
			continue
		}
		if err != nil {
			t.Fatalf("extractBSN(%q): unexpected error %v", c.nameID, err)
		}
		if got != c.want {
			t.Fatalf("extractBSN(%q) = %q, want %q", c.nameID, got, c.want)
		}
	}
}

func TestExtractBSNPadsToNineDigits(t *testing.T) {
	got, err := extractBSN("s00000000:1")
	if err != nil {
		t.Fatalf("extractBSN: %v", err)
	}
	if len(got) != 9 {
		t.Fatalf("len(got) = %d, want 9", len(got))
	}
	if got != "000000001" {
		t.Fatalf("got = %q, want %q", got, "000000001")
	}
}

func TestDeflateAndEncodeRoundTrips(t *testing.T) {
	original := []byte(`<samlp:AuthnRequest>hello world</samlp:AuthnRequest>`)
	encoded, err := deflateAndEncode(original)
	if err != nil {
		t.Fatalf("deflateAndEncode: %v", err)
	}

	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	decompressed, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Fatalf("round trip mismatch: got %q, want %q", decompressed, original)
	}
}

func TestSignRSASHA256VerifiesWithPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	data := []byte("SAMLRequest=abc&SigAlg=http://www.w3.org/2001/04/xmldsig-more#rsa-sha256")

	sigB64, err := signRSASHA256(key, data)
	if err != nil {
		t.Fatalf("signRSASHA256: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("base64 decode signature: %v", err)
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("VerifyPKCS1v15: %v", err)
	}
}
