package stages

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/reportstore"
)

func TestReporter_GeneratesBuiltinFormats(t *testing.T) {
	env := newStageEnv(t, domain.JobConfigs{
		Reporter: &domain.ReporterJobConfig{Formats: []string{FormatJSON, FormatCycloneDX}},
	})
	env.run.Labels = map[string]string{"team": "core"}
	env.run.Issues = []domain.Issue{domain.NewIssue("scanner", "GPL-3.0 found", domain.SeverityWarning)}
	if err := env.runs.Update(context.Background(), env.run); err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	reporter := NewReporter(ReporterConfig{Store: reportstore.NewFSWriter(root), Logger: testLogger()})

	result, err := reporter.Execute(context.Background(), env.open(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Reports) != 2 {
		t.Fatalf("reports = %v", result.Reports)
	}
	if len(result.Issues) != 0 {
		t.Errorf("issues = %+v", result.Issues)
	}

	data, err := os.ReadFile(filepath.Join(root, env.run.ID.String(), "run-summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	var summary map[string]any
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary["run_id"] != env.run.ID.String() {
		t.Errorf("run_id = %v", summary["run_id"])
	}
	if summary["repository"] != "https://git.acme.test/core.git" {
		t.Errorf("repository = %v", summary["repository"])
	}
	counts, ok := summary["issue_counts"].(map[string]any)
	if !ok || counts["warning"] != float64(1) {
		t.Errorf("issue_counts = %v", summary["issue_counts"])
	}

	data, err = os.ReadFile(filepath.Join(root, env.run.ID.String(), "bom.cyclonedx.json"))
	if err != nil {
		t.Fatal(err)
	}
	var bom map[string]any
	if err := json.Unmarshal(data, &bom); err != nil {
		t.Fatal(err)
	}
	if bom["bomFormat"] != "CycloneDX" {
		t.Errorf("bomFormat = %v", bom["bomFormat"])
	}
	if bom["specVersion"] != "1.6" {
		t.Errorf("specVersion = %v", bom["specVersion"])
	}
	metadata, ok := bom["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata = %v", bom["metadata"])
	}
	component, ok := metadata["component"].(map[string]any)
	if !ok {
		t.Fatalf("component = %v", metadata["component"])
	}
	if component["name"] != "https://git.acme.test/core.git" || component["version"] != "main" {
		t.Errorf("component = %v", component)
	}
}

func TestReporter_UnknownFormatIsErrorIssue(t *testing.T) {
	env := newStageEnv(t, domain.JobConfigs{
		Reporter: &domain.ReporterJobConfig{Formats: []string{"sarif", FormatJSON}},
	})
	reporter := NewReporter(ReporterConfig{Store: reportstore.NewFSWriter(t.TempDir()), Logger: testLogger()})

	result, err := reporter.Execute(context.Background(), env.open(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("issues = %+v", result.Issues)
	}
	issue := result.Issues[0]
	if issue.Severity != domain.SeverityError || !strings.Contains(issue.Message, "sarif") {
		t.Errorf("issue = %+v", issue)
	}
	if len(result.Reports) != 1 {
		t.Errorf("reports = %v, want the json report only", result.Reports)
	}
}

func TestReporter_RendersCustomTemplates(t *testing.T) {
	env := newStageEnv(t, domain.JobConfigs{
		Reporter: &domain.ReporterJobConfig{
			Formats:         []string{FormatJSON},
			CustomTemplates: []string{"templates/summary.md.tmpl"},
		},
	})
	env.files.Put("", "templates/summary.md.tmpl",
		"# {{ .Hierarchy.Organization.Name }} {{ upper .Run.Revision }}\nissues: {{ len .Run.Issues }}\n")

	root := t.TempDir()
	reporter := NewReporter(ReporterConfig{Store: reportstore.NewFSWriter(root), Logger: testLogger()})
	result, err := reporter.Execute(context.Background(), env.open(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Reports) != 2 {
		t.Fatalf("reports = %v", result.Reports)
	}

	data, err := os.ReadFile(filepath.Join(root, env.run.ID.String(), "summary.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# acme MAIN\nissues: 0\n" {
		t.Errorf("rendered = %q", data)
	}
}

func TestReporter_TemplateDirRendersAllFiles(t *testing.T) {
	env := newStageEnv(t, domain.JobConfigs{
		Reporter: &domain.ReporterJobConfig{Formats: []string{FormatJSON}, TemplateDir: "templates"},
	})
	env.files.Put("", "templates/licenses.txt.tmpl", "repo {{ .Hierarchy.Repository.URL }}")
	env.files.Put("", "templates/issues.txt.tmpl", "total {{ len .Run.Issues }}")

	root := t.TempDir()
	reporter := NewReporter(ReporterConfig{Store: reportstore.NewFSWriter(root), Logger: testLogger()})
	result, err := reporter.Execute(context.Background(), env.open(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Reports) != 3 {
		t.Fatalf("reports = %v", result.Reports)
	}
	for _, name := range []string{"licenses.txt", "issues.txt"} {
		if _, err := os.Stat(filepath.Join(root, env.run.ID.String(), name)); err != nil {
			t.Errorf("report %s missing: %v", name, err)
		}
	}
}

func TestReporter_DefaultsToJSONWithoutFormats(t *testing.T) {
	env := newStageEnv(t, domain.JobConfigs{Reporter: &domain.ReporterJobConfig{}})
	reporter := NewReporter(ReporterConfig{Store: reportstore.NewFSWriter(t.TempDir()), Logger: testLogger()})

	result, err := reporter.Execute(context.Background(), env.open(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Reports) != 1 || !strings.HasSuffix(result.Reports[0], "run-summary.json") {
		t.Errorf("reports = %v", result.Reports)
	}
}
