package logx

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskingCore_RedactsSensitiveFields(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(newMaskingCore(inner)).Sugar()

	logger.Infow("generated",
		"address", "0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		"private_key", "0x1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727",
		"Mnemonic", "abandon abandon about",
		"password", "hunter2",
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["address"] != "0x9858EfFD232B4033E47d90003D41EC34EcaEda94" {
		t.Errorf("address should pass through, got %v", ctx["address"])
	}
	for _, k := range []string{"private_key", "Mnemonic", "password"} {
		if ctx[k] != redacted {
			t.Errorf("%s = %v, want %s", k, ctx[k], redacted)
		}
	}
}

func TestMaskingCore_MasksHexInMessage(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(newMaskingCore(inner))

	logger.Info("key is 1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727 ok")

	msg := logs.All()[0].Message
	if strings.Contains(msg, "1ab42cc4") {
		t.Errorf("message leaked key material: %q", msg)
	}
	if !strings.Contains(msg, redacted) {
		t.Errorf("message = %q, want redaction marker", msg)
	}
}

func TestMaskingCore_WithKeepsRedaction(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(newMaskingCore(inner)).With(zap.String("seed", "deadbeef"))

	logger.Info("child")

	if got := logs.All()[0].ContextMap()["seed"]; got != redacted {
		t.Errorf("seed = %v, want %s", got, redacted)
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warn", "error"} {
		if !ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = false, want true", lvl)
		}
	}
	if ValidLevel("verbose") {
		t.Error("ValidLevel(verbose) = true, want false")
	}
}
