package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Имена встроенных форматов отчётов.
const (
	FormatJSON      = "json"
	FormatCycloneDX = "cyclonedx"
)

// ReportRequest — данные run для генератора отчёта.
type ReportRequest struct {
	Run       *domain.Run
	Hierarchy *domain.Hierarchy
}

// ReportFormat — генератор отчёта одного формата.
//
// Таблица форматов собирается при старте процесса и дальше не меняется;
// обработчик reporter получает её готовой.
type ReportFormat interface {
	// Name — имя формата, под которым его запрашивают конфигурации.
	Name() string

	// Generate записывает отчёт в targetDir и возвращает путь файла.
	Generate(ctx context.Context, req ReportRequest, targetDir string) (string, error)
}

// BuiltinFormats возвращает стандартные форматы отчётов.
func BuiltinFormats() []ReportFormat {
	return []ReportFormat{&JSONReport{}, &CycloneDXReport{}}
}

// JSONReport пишет сводку run в файл run-summary.json.
type JSONReport struct{}

func (r *JSONReport) Name() string { return FormatJSON }

// jsonSummary — структура файла run-summary.json.
type jsonSummary struct {
	RunID        string            `json:"run_id"`
	Organization string            `json:"organization"`
	Product      string            `json:"product"`
	Repository   string            `json:"repository"`
	Revision     string            `json:"revision"`
	Labels       map[string]string `json:"labels,omitempty"`
	Stages       []string          `json:"stages"`
	Issues       []domain.Issue    `json:"issues,omitempty"`
	IssueCounts  map[string]int    `json:"issue_counts"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

func (r *JSONReport) Generate(_ context.Context, req ReportRequest, targetDir string) (string, error) {
	run, hierarchy := req.Run, req.Hierarchy

	counts := map[string]int{}
	for _, issue := range run.Issues {
		counts[strings.ToLower(string(issue.Severity))]++
	}
	stages := []string{}
	for _, stage := range configsFor(run).Stages() {
		stages = append(stages, string(stage))
	}

	summary := jsonSummary{
		RunID:        run.ID.String(),
		Organization: hierarchy.Organization.Name,
		Product:      hierarchy.Product.Name,
		Repository:   hierarchy.Repository.URL,
		Revision:     run.Revision,
		Labels:       run.Labels,
		Stages:       stages,
		Issues:       run.Issues,
		IssueCounts:  counts,
		GeneratedAt:  time.Now().UTC(),
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(targetDir, "run-summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// CycloneDXReport пишет BOM происхождения run в файл bom.cyclonedx.json.
type CycloneDXReport struct{}

func (r *CycloneDXReport) Name() string { return FormatCycloneDX }

func (r *CycloneDXReport) Generate(_ context.Context, req ReportRequest, targetDir string) (string, error) {
	run, hierarchy := req.Run, req.Hierarchy

	properties := []cdx.Property{
		{Name: "conveyor:run", Value: run.ID.String()},
		{Name: "conveyor:organization", Value: hierarchy.Organization.Name},
		{Name: "conveyor:product", Value: hierarchy.Product.Name},
	}
	labels := make([]string, 0, len(run.Labels))
	for name := range run.Labels {
		labels = append(labels, name)
	}
	sort.Strings(labels)
	for _, name := range labels {
		properties = append(properties, cdx.Property{
			Name:  "conveyor:label:" + name,
			Value: run.Labels[name],
		})
	}

	// Components инициализируется пустым списком: JSON-схема CycloneDX
	// не допускает null в этом поле.
	components := []cdx.Component{}
	bom := cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    "CycloneDX",
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Tools: &cdx.ToolsChoice{
				Services: &[]cdx.Service{
					{
						Name:        "conveyor",
						Description: "SCA run orchestration",
					},
				},
			},
			Component: &cdx.Component{
				Type:    "application",
				Name:    hierarchy.Repository.URL,
				Version: run.Revision,
			},
		},
		Components: &components,
		Properties: &properties,
	}

	path := filepath.Join(targetDir, "bom.cyclonedx.json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := cdx.NewBOMEncoder(f, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom); err != nil {
		return "", fmt.Errorf("encode bom: %w", err)
	}
	return path, nil
}

// reportTemplateFuncs — функции, доступные пользовательским шаблонам.
var reportTemplateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// templateData — данные, доступные пользовательскому шаблону отчёта.
type templateData struct {
	Run       *domain.Run
	Hierarchy *domain.Hierarchy
	Now       time.Time
}

// renderTemplate рендерит один пользовательский шаблон. Имя итогового
// файла — имя шаблона без суффикса .tmpl.
func renderTemplate(req ReportRequest, localPath, targetDir string) (string, error) {
	base := filepath.Base(localPath)
	// Имя шаблона должно совпадать с именем файла, иначе Execute не
	// найдёт корневой шаблон после ParseFiles.
	tmpl, err := template.New(base).Funcs(reportTemplateFuncs).ParseFiles(localPath)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", base, err)
	}

	name := strings.TrimSuffix(base, ".tmpl")
	path := filepath.Join(targetDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data := templateData{Run: req.Run, Hierarchy: req.Hierarchy, Now: time.Now().UTC()}
	if err := tmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return path, nil
}
