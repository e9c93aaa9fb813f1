package session

import "testing"

func TestChecksumDetectsTamper(t *testing.T) {
	key := []byte("test-signing-key")
	data := []byte(`{"userId":"11111111-1111-1111-1111-111111111111","type":"user"}`)

	sum := Checksum(key, data)
	if !VerifyChecksum(key, data, sum) {
		t.Fatal("expected checksum to verify against its own data")
	}

	tampered := []byte(`{"userId":"22222222-2222-2222-2222-222222222222","type":"user"}`)
	if VerifyChecksum(key, tampered, sum) {
		t.Fatal("expected checksum mismatch after data was tampered with")
	}
}

func TestChecksumRequiresMatchingKey(t *testing.T) {
	data := []byte(`{"type":"user"}`)
	sum := Checksum([]byte("key-a"), data)
	if VerifyChecksum([]byte("key-b"), data, sum) {
		t.Fatal("expected checksum verification to fail under a different key")
	}
}

func TestDataRoundTrip(t *testing.T) {
	d := Data{
		Type:      TypeCheckTwoStep,
		LoginType: LoginTypePasswordBased,
	}
	raw, err := d.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalData(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != d.Type || got.LoginType != d.LoginType {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}
