package config

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{"empty", map[string]any{}, map[string]any{}},
		{"top level", map[string]any{"log_level": "info", "database": "foreman.db"},
			map[string]any{"log_level": "info", "database": "foreman.db"}},
		{"nested", map[string]any{"relay": map[string]any{"backend": "slack", "batch_limit": 500}},
			map[string]any{"relay.backend": "slack", "relay.batch_limit": 500}},
		{"deep", map[string]any{"projects": map[string]any{"web": map[string]any{"repository": "/src/web"}}},
			map[string]any{"projects.web.repository": "/src/web"}},
		{"empty nested map dropped", map[string]any{"prompts": map[string]any{}}, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Flatten(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Flatten() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnflatten(t *testing.T) {
	got := Unflatten(map[string]any{
		"relay.backend":           "telegram",
		"telegram.chat_id":        42,
		"projects.web.repository": "/src/web",
		"log_level":               "debug",
	})
	want := map[string]any{
		"relay":     map[string]any{"backend": "telegram"},
		"telegram":  map[string]any{"chat_id": 42},
		"projects":  map[string]any{"web": map[string]any{"repository": "/src/web"}},
		"log_level": "debug",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unflatten() = %v, want %v", got, want)
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"agent": map[string]any{"runner": "anthropic", "max_rounds": 10, "interval": "5s"},
		"http":  map[string]any{"enabled": true},
	}
	if got := Unflatten(Flatten(original)); !reflect.DeepEqual(got, original) {
		t.Errorf("round trip = %v, want %v", got, original)
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"anthropic.api_key": "sk-ant-abcdef",
		"slack.token":       "xoxb",
		"telegram.token":    "",
		"relay.backend":     "slack",
		"agent.max_rounds":  30,
	}
	got := MaskSecrets(flat)

	want := map[string]any{
		"anthropic.api_key": "***cdef",
		"slack.token":       "***xoxb",
		"telegram.token":    "",
		"relay.backend":     "slack",
		"agent.max_rounds":  30,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MaskSecrets() = %v, want %v", got, want)
	}
	if flat["anthropic.api_key"] != "sk-ant-abcdef" {
		t.Error("MaskSecrets must not modify its input")
	}
}

func TestIsSecretKey(t *testing.T) {
	for _, k := range []string{"anthropic.api_key", "slack.token", "telegram.token"} {
		if !IsSecretKey(k) {
			t.Errorf("%s should be secret", k)
		}
	}
	if IsSecretKey("telegram.chat_id") {
		t.Error("telegram.chat_id is not secret")
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]any{"relay.backend": 1, "agent.runner": 2, "log_level": 3})
	want := []string{"agent.runner", "log_level", "relay.backend"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedKeys() = %v, want %v", got, want)
	}
}
