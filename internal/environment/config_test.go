package environment

import (
	"context"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestParse_StrictByDefault(t *testing.T) {
	cfg, err := Parse([]byte("environmentVariables:\n  - name: CI\n    value: \"true\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Strict {
		t.Fatal("strict must default to true")
	}
}

func TestParse_FullDocument(t *testing.T) {
	doc := `
strict: false
infrastructureServices:
  - name: nexus
    url: https://nexus.acme.test/repository
    description: internal artifact mirror
    usernameSecret: nexusUser
    passwordSecret: nexusPass
    credentialsTypes:
      - NETRC_FILE
environmentDefinitions:
  maven:
    - service: nexus
      id: central
environmentVariables:
  - name: NPM_TOKEN
    secretName: npmToken
  - name: CI
    value: "true"
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Strict {
		t.Fatal("strict: false not honored")
	}
	if len(cfg.InfrastructureServices) != 1 {
		t.Fatalf("services = %v", cfg.InfrastructureServices)
	}
	svc := cfg.InfrastructureServices[0]
	if svc.Name != "nexus" || svc.UsernameSecret != "nexusUser" || svc.PasswordSecret != "nexusPass" {
		t.Fatalf("service parsed wrong: %+v", svc)
	}
	if len(svc.CredentialsTypes) != 1 || svc.CredentialsTypes[0] != domain.CredentialsTypeNetrcFile {
		t.Fatalf("credentials types = %v", svc.CredentialsTypes)
	}
	if got := cfg.EnvironmentDefinitions["maven"][0]["service"]; got != "nexus" {
		t.Fatalf("maven service ref = %q", got)
	}
	if cfg.EnvironmentVariables[0].SecretName != "npmToken" || cfg.EnvironmentVariables[1].Value != "true" {
		t.Fatalf("variables parsed wrong: %+v", cfg.EnvironmentVariables)
	}
}

func TestParse_VariableWithoutSource(t *testing.T) {
	_, err := Parse([]byte("environmentVariables:\n  - name: TOKEN\n"))
	if err == nil {
		t.Fatal("expected error for variable without secretName or value")
	}
	if !strings.Contains(err.Error(), "TOKEN") {
		t.Fatalf("error %q does not name the variable", err)
	}
}

func TestParse_ServiceWithoutSecrets(t *testing.T) {
	doc := `
infrastructureServices:
  - name: nexus
    url: https://nexus.acme.test
    usernameSecret: nexusUser
`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected error for service without passwordSecret")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("strict: [broken"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_AbsentFileYieldsEmptyConfig(t *testing.T) {
	wc := newFakeContext(t, nil, nil)

	cfg, err := Load(context.Background(), wc, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Strict {
		t.Fatal("empty config must stay strict")
	}
	if len(cfg.InfrastructureServices) != 0 || len(cfg.EnvironmentVariables) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoad_ParsesRepositoryFile(t *testing.T) {
	wc := newFakeContext(t, nil, map[string]string{
		".ort.env.yml": "strict: false\nenvironmentVariables:\n  - name: CI\n    value: \"true\"\n",
	})

	cfg, err := Load(context.Background(), wc, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strict {
		t.Fatal("strict: false not honored")
	}
	if len(cfg.EnvironmentVariables) != 1 || cfg.EnvironmentVariables[0].Name != "CI" {
		t.Fatalf("variables = %+v", cfg.EnvironmentVariables)
	}
}

func TestLoad_CustomPath(t *testing.T) {
	wc := newFakeContext(t, nil, map[string]string{
		"custom/env.yml": "environmentVariables:\n  - name: CI\n    value: \"1\"\n",
	})

	cfg, err := Load(context.Background(), wc, "custom/env.yml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.EnvironmentVariables) != 1 {
		t.Fatalf("variables = %+v", cfg.EnvironmentVariables)
	}
}
