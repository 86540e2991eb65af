package idgen

import (
	"strings"
	"testing"
)

func TestGenerateSecureID(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		length  int
		wantErr bool
	}{
		{name: "conversation id", prefix: "conv", length: 16},
		{name: "message id", prefix: "msg", length: 20},
		{name: "user id", prefix: "usr", length: 16},
		{name: "zero length", prefix: "x", length: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateSecureID(tt.prefix, tt.length)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GenerateSecureID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !strings.HasPrefix(got, tt.prefix+"_") {
				t.Errorf("GenerateSecureID() = %v, want prefix %v_", got, tt.prefix)
			}
			if len(got) != len(tt.prefix)+1+tt.length {
				t.Errorf("GenerateSecureID() length = %d, want %d", len(got), len(tt.prefix)+1+tt.length)
			}
			if !ValidateIDFormat(got, tt.prefix) {
				t.Errorf("generated id %q does not validate", got)
			}
		})
	}
}

func TestGenerateSecureID_Uniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		id, err := GenerateSecureID("msg", 16)
		if err != nil {
			t.Fatalf("GenerateSecureID() error = %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidateIDFormat(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
		want   bool
	}{
		{"conv_a3f8d2k9p1m4n7q2", "conv", true},
		{"conv_a3f8d2k9p1m4n7q2", "msg", false},
		{"conva3f8d2k9", "conv", false},
		{"conv_", "conv", false},
		{"conv_ABC", "conv", false},
		{"conv_a3-f8", "conv", false},
		{"", "conv", false},
	}
	for _, tt := range tests {
		if got := ValidateIDFormat(tt.id, tt.prefix); got != tt.want {
			t.Errorf("ValidateIDFormat(%q, %q) = %v, want %v", tt.id, tt.prefix, got, tt.want)
		}
	}
}

func TestRandomTokenAndHash(t *testing.T) {
	a, err := RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken() error = %v", err)
	}
	b, _ := RandomToken(32)
	if a == b {
		t.Fatalf("RandomToken() returned the same value twice")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("RandomToken() is not base64url: %s", a)
	}
	if HashToken(a) != HashToken(a) {
		t.Errorf("HashToken() is not deterministic")
	}
	if len(HashToken(a)) != 64 {
		t.Errorf("HashToken() length = %d, want 64", len(HashToken(a)))
	}
	if HashToken(a) == HashToken(b) {
		t.Errorf("HashToken() collided")
	}
}
