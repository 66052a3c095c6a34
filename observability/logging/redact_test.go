package logging

import "testing"

func TestMaskFieldRedactsSensitiveKeys(t *testing.T) {
	attr := MaskField("token", "supersecret")
	if got := attr.Value.String(); got != RedactedValue {
		t.Fatalf("token value not redacted: %q", got)
	}
	attr = MaskField("signature", "0xdeadbeef")
	if got := attr.Value.String(); got != RedactedValue {
		t.Fatalf("signature value not redacted: %q", got)
	}
}

func TestMaskFieldPassesAllowlistedKeys(t *testing.T) {
	attr := MaskField("address", "vlt1qqqsyqcyq5rqwzqf")
	if got := attr.Value.String(); got == RedactedValue {
		t.Fatalf("allowlisted key was redacted")
	}
	attr = MaskField("token", "")
	if got := attr.Value.String(); got != "" {
		t.Fatalf("empty value should pass through, got %q", got)
	}
}

func TestRedactionAllowlistIsSorted(t *testing.T) {
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
	for _, key := range keys {
		if !IsAllowlisted(key) {
			t.Fatalf("listed key %q not allowlisted", key)
		}
	}
}
