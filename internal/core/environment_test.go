package core

import "testing"

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
	}{
		{"production", Production},
		{" PROD ", Production},
		{"staging", Staging},
		{"test", Testing},
		{"development", Development},
		{"", Development},
		{"qa", Development},
	}
	for _, tt := range tests {
		if got := ParseEnvironment(tt.in); got != tt.want {
			t.Errorf("ParseEnvironment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	var e Environment
	if err := e.Decode("Prod"); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !e.IsProduction() {
		t.Errorf("Decode(Prod) = %q, want production", e)
	}
}
