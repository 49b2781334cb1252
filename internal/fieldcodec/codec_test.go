package fieldcodec

import (
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestXChaChaRoundTrip(t *testing.T) {
	codec, err := NewXChaCha(testKey)
	if err != nil {
		t.Fatalf("NewXChaCha: %v", err)
	}

	sealed, err := codec.Encode("Ada Lovelace")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "Ada") {
		t.Fatalf("value not sealed: %q", sealed)
	}

	again, _ := codec.Encode("Ada Lovelace")
	if again == sealed {
		t.Error("two encodings of the same value should use distinct nonces")
	}

	plain, err := codec.Decode(sealed)
	if err != nil || plain != "Ada Lovelace" {
		t.Fatalf("Decode = %q, %v", plain, err)
	}
}

func TestXChaChaPassesThroughLegacyValues(t *testing.T) {
	codec, _ := NewXChaCha(testKey)
	plain, err := codec.Decode("written before encryption")
	if err != nil || plain != "written before encryption" {
		t.Fatalf("Decode legacy = %q, %v", plain, err)
	}
}

func TestXChaChaRejectsTampering(t *testing.T) {
	codec, _ := NewXChaCha(testKey)
	sealed, _ := codec.Encode("secret")
	tampered := sealed[:len(sealed)-2] + "AA"
	if tampered == sealed {
		tampered = sealed[:len(sealed)-2] + "BB"
	}
	if _, err := codec.Decode(tampered); err == nil {
		t.Fatal("expected tampered value to fail authentication")
	}
}

func TestFromKey(t *testing.T) {
	codec, err := FromKey("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := codec.(Nop); !ok {
		t.Fatalf("empty key should give Nop, got %T", codec)
	}
	if _, err := FromKey("abcd"); err == nil {
		t.Fatal("short key should be rejected")
	}
}
