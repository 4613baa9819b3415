package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyAdmin(t *testing.T) {
	body := []byte(`{"address":"0xabc","role":"operator","nested":{"api_key":"k","admin_secret_key":"s"}}`)
	out := redactAuditBody("/v1/admin/roles", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["role"] != "operator" {
		t.Fatalf("non-sensitive field changed: %v", data["role"])
	}
	nested, ok := data["nested"].(map[string]interface{})
	if !ok {
		t.Fatalf("nested object missing")
	}
	if nested["api_key"] == "k" || nested["admin_secret_key"] == "s" {
		t.Fatalf("secrets not redacted")
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"source":"NFT_SALES","amount":"100"}`)
	out := redactAuditBody("/v1/revenue", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	body := []byte("not-json")
	out := redactAuditBody("/v1/admin/addresses", body)
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}
