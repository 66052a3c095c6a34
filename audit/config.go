package audit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Job captures the settings for one offline audit run.
type Job struct {
	// DataDir is the vault node's database directory. The node must be
	// stopped; the run opens the store exclusively.
	DataDir string `yaml:"data_dir"`
	// OutputDir receives report.csv, report.parquet and manifest.json.
	OutputDir string `yaml:"output_dir"`
	// ExpectedAdmin optionally pins the bech32 admin address. A mismatch is
	// reported as an anomaly, catching runs pointed at the wrong deployment.
	ExpectedAdmin string `yaml:"expected_admin"`
}

// LoadJob reads the YAML job description from disk and validates the result.
func LoadJob(path string) (Job, error) {
	job := Job{OutputDir: "./audit-out"}
	if path == "" {
		return job, fmt.Errorf("audit: config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return job, fmt.Errorf("audit: open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&job); err != nil {
		return Job{}, fmt.Errorf("audit: decode config: %w", err)
	}

	job.normalize()
	if err := job.validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (j *Job) normalize() {
	j.DataDir = strings.TrimSpace(j.DataDir)
	j.OutputDir = strings.TrimSpace(j.OutputDir)
	if j.OutputDir == "" {
		j.OutputDir = "./audit-out"
	}
	j.ExpectedAdmin = strings.TrimSpace(j.ExpectedAdmin)
}

func (j *Job) validate() error {
	if j.DataDir == "" {
		return fmt.Errorf("audit: data_dir required")
	}
	return nil
}
