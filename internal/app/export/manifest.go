package export

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/avelar/rankexport/internal/domain/export"
)

// RunManifest summarizes a finished export run. It is written next to the
// downloaded file so operators can tell which run produced it.
type RunManifest struct {
	JobID        string    `yaml:"job_id"`
	Status       string    `yaml:"status"`
	TotalBatches int       `yaml:"total_batches"`
	OutputFile   string    `yaml:"output_file,omitempty"`
	Bytes        int64     `yaml:"bytes,omitempty"`
	StartedAt    time.Time `yaml:"started_at"`
	FinishedAt   time.Time `yaml:"finished_at"`
	Failure      string    `yaml:"failure,omitempty"`
	Attempts     int       `yaml:"attempts,omitempty"`
}

// BuildManifest projects the job record into a manifest.
func BuildManifest(job *domain.Job, outputFile string, bytes int64) RunManifest {
	return RunManifest{
		JobID:        job.ID().String(),
		Status:       job.Status().String(),
		TotalBatches: job.TotalBatches(),
		OutputFile:   outputFile,
		Bytes:        bytes,
		StartedAt:    job.GetTimeline().StartedAt(),
		FinishedAt:   job.GetTimeline().CompletedAt(),
		Failure:      job.Failure(),
		Attempts:     job.Attempts(),
	}
}

// WriteFile serializes the manifest as YAML at the given path.
func (m RunManifest) WriteFile(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal run manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run manifest: %w", err)
	}
	return nil
}
