// Package pipeline turns stored backtest results into the report bundle:
// the Markdown report, summary and trade CSVs, the decision gate and a
// manifest for reproducibility.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"signal-lab/internal/decision"
	"signal-lab/internal/learning"
	"signal-lab/internal/reporting"
	"signal-lab/internal/storage"
)

// GeneratorVersion is recorded in the manifest.
const GeneratorVersion = "1.0.0"

// Output file names
const (
	ReportFile   = "REPORT.md"
	SummaryFile  = "backtest_summary.csv"
	DecisionFile = "DECISION_GATE_REPORT.md"
	ManifestFile = "manifest.json"
	TradesDir    = "trades"
)

// Manifest describes one generated bundle.
type Manifest struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	GeneratorVersion string            `json:"generator_version"`
	DataSource       string            `json:"data_source"`
	DataVersion      string            `json:"data_version"` // short hash over the reported runs
	Runs             int               `json:"runs"`
	Decisions        map[string]string `json:"decisions"` // strategy id -> decision
	Files            map[string]string `json:"files"`     // relative path -> sha256
}

// Pipeline orchestrates report + decision generation.
type Pipeline struct {
	reportGen  *reporting.Generator
	results    storage.BacktestResultStore
	evaluator  *decision.Evaluator
	outputDir  string
	limit      int
	clock      func() time.Time
	dataSource string
}

// NewPipeline creates a new pipeline. tracker may be nil.
func NewPipeline(results storage.BacktestResultStore, tracker *learning.Tracker, outputDir string) *Pipeline {
	return &Pipeline{
		reportGen:  reporting.NewGenerator(results, tracker),
		results:    results,
		evaluator:  decision.NewEvaluator(decision.DefaultCriteria()),
		outputDir:  outputDir,
		clock:      func() time.Time { return time.Now().UTC() },
		dataSource: "db",
	}
}

// WithClock sets a custom clock function for deterministic output.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// WithCriteria replaces the decision gate thresholds.
func (p *Pipeline) WithCriteria(c decision.Criteria) *Pipeline {
	p.evaluator = decision.NewEvaluator(c)
	return p
}

// WithLimit reports only the most recent limit runs (all when <= 0).
func (p *Pipeline) WithLimit(limit int) *Pipeline {
	p.limit = limit
	return p
}

// WithDataSource sets the data source recorded in the manifest ("fixtures" or "db").
func (p *Pipeline) WithDataSource(source string) *Pipeline {
	p.dataSource = source
	return p
}

// Run writes the bundle to the output directory and returns its manifest:
// - REPORT.md
// - backtest_summary.csv
// - trades/<result id>.csv
// - DECISION_GATE_REPORT.md
// - manifest.json
func (p *Pipeline) Run(ctx context.Context) (*Manifest, error) {
	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Join(p.outputDir, TradesDir), 0755); err != nil {
		return nil, err
	}

	report, err := p.reportGen.Generate(ctx, p.limit)
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	decisions := p.evaluator.EvaluateAll(report.Leaderboard)

	files := map[string]string{
		ReportFile:   reporting.RenderMarkdown(report),
		SummaryFile:  reporting.RenderSummaryCSV(report.Results),
		DecisionFile: decision.RenderMarkdown(decisions, report.GeneratedAt),
	}

	// Trade ledgers are only loaded by id
	for _, row := range report.Results {
		full, err := p.results.GetByID(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("load result %s: %w", row.ID, err)
		}
		files[filepath.Join(TradesDir, row.ID+".csv")] = reporting.RenderTradesCSV(full)
	}

	manifest := &Manifest{
		GeneratedAt:      report.GeneratedAt,
		GeneratorVersion: GeneratorVersion,
		DataSource:       p.dataSource,
		DataVersion:      computeDataVersion(report.Results),
		Runs:             len(report.Results),
		Decisions:        make(map[string]string, len(decisions)),
		Files:            make(map[string]string, len(files)),
	}
	for _, d := range decisions {
		manifest.Decisions[d.StrategyID] = string(d.Decision)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := []byte(files[name])
		if err := os.WriteFile(filepath.Join(p.outputDir, name), content, 0644); err != nil {
			return nil, err
		}
		sum := sha256.Sum256(content)
		manifest.Files[filepath.ToSlash(name)] = hex.EncodeToString(sum[:])
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(p.outputDir, ManifestFile), append(data, '\n'), 0644); err != nil {
		return nil, err
	}
	return manifest, nil
}

// computeDataVersion hashes the identity and outcome of every reported run.
func computeDataVersion(rows []reporting.ResultRow) string {
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%s|%s|%d|%.6f", r.ID, r.FinalBalance, r.TotalTrades, r.SharpeRatio))
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte("RESULTS\n"))
	h.Write([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(h.Sum(nil))[:12] // short hash
}
