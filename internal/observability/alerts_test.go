package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAuthzAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "authz.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var file alertFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	var authzGroup *alertGroup
	for i := range file.Groups {
		if file.Groups[i].Name == "authz" {
			authzGroup = &file.Groups[i]
			break
		}
	}
	if authzGroup == nil {
		t.Fatal("authz alert group missing")
	}

	expected := map[string]struct {
		severity string
		metric   string
	}{
		"SessionMemoryOverTarget": {severity: "warning", metric: "authz_session_memory_target_breaches_total"},
		"PermissionsDropped":      {severity: "critical", metric: "authz_session_permissions_dropped_total"},
		"HighDenyRate":            {severity: "warning", metric: "authz_permission_checks_total"},
	}

	if len(authzGroup.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(authzGroup.Rules))
	}

	for _, rule := range authzGroup.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if !strings.Contains(rule.Expr, want.metric) {
			t.Fatalf("rule %s must reference %s, got %q", rule.Alert, want.metric, rule.Expr)
		}
		if !strings.HasPrefix(rule.Annotations["runbook"], "docs/runbook-authz.md#") {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
	}
}
