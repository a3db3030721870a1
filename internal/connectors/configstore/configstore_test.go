package configstore

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "empty", raw: "", wantLen: 0},
		{name: "null", raw: "null", wantLen: 0},
		{name: "object", raw: `{"url":"https://erp","timeout":10}`, wantLen: 2},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "garbage", raw: `{url`, wantErr: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := DecodeConfig([]byte(test.raw))
			if test.wantErr {
				if err == nil {
					t.Fatalf("DecodeConfig() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeConfig() error = %v, want nil", err)
			}
			if len(cfg) != test.wantLen {
				t.Fatalf("len = %d, want %d", len(cfg), test.wantLen)
			}
		})
	}
}

func TestMergeOverridesWin(t *testing.T) {
	t.Parallel()

	defaults := map[string]any{"timeout": 30, "url": ""}
	overrides := map[string]any{"url": "https://erp", "timeout": nil, "extra": true}

	got := Merge(defaults, overrides)
	if got["url"] != "https://erp" || got["timeout"] != 30 || got["extra"] != true {
		t.Fatalf("Merge() = %v", got)
	}
	if defaults["url"] != "" {
		t.Fatal("Merge mutated defaults")
	}
}

func TestCandidateURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  map[string]any
		want []string
	}{
		{
			name: "array alternatives",
			cfg:  map[string]any{"url": "https://a", "alt_urls": []any{"https://b", " ", "https://c"}},
			want: []string{"https://a", "https://b", "https://c"},
		},
		{
			name: "string alternatives",
			cfg:  map[string]any{"url": " ", "alt_urls": "https://b,\nhttps://c"},
			want: []string{"https://b", "https://c"},
		},
		{
			name: "none",
			cfg:  map[string]any{},
			want: []string{},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got := CandidateURLs(test.cfg)
			if len(got) != len(test.want) {
				t.Fatalf("CandidateURLs() = %v, want %v", got, test.want)
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Fatalf("CandidateURLs()[%d] = %q, want %q", i, got[i], test.want[i])
				}
			}
		})
	}
}

func TestTypedAccessors(t *testing.T) {
	t.Parallel()

	cfg, err := DecodeConfig([]byte(`{"attempts":"4","delay":1.5,"timeout":"250ms","n":7,"on":"true","headers":{"X-Tenant":"acme"}}`))
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	cfg["num"] = json.Number("12")

	if got := Int(cfg, "attempts", 1); got != 4 {
		t.Fatalf("Int(attempts) = %d, want 4", got)
	}
	if got := Int(cfg, "n", 1); got != 7 {
		t.Fatalf("Int(n) = %d, want 7", got)
	}
	if got := Int(cfg, "num", 1); got != 12 {
		t.Fatalf("Int(num) = %d, want 12", got)
	}
	if got := Int(cfg, "missing", 3); got != 3 {
		t.Fatalf("Int(missing) = %d, want 3", got)
	}
	if got := Seconds(cfg, "delay", 0); got != 1500*time.Millisecond {
		t.Fatalf("Seconds(delay) = %v", got)
	}
	if got := Seconds(cfg, "timeout", 0); got != 250*time.Millisecond {
		t.Fatalf("Seconds(timeout) = %v", got)
	}
	if got := Seconds(cfg, "missing", time.Minute); got != time.Minute {
		t.Fatalf("Seconds(missing) = %v", got)
	}
	if !Bool(cfg, "on", false) {
		t.Fatal("Bool(on) = false")
	}
	if got := StringMap(cfg, "headers"); got["X-Tenant"] != "acme" {
		t.Fatalf("StringMap(headers) = %v", got)
	}
	if got := StringMap(cfg, "n"); got != nil {
		t.Fatalf("StringMap(n) = %v, want nil", got)
	}
}

func TestIntegrationValidate(t *testing.T) {
	t.Parallel()

	if err := (Integration{Name: "erp"}).Validate(); err == nil {
		t.Fatal("expected missing driver id error")
	}
	if err := (Integration{DriverID: "onec"}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
