package batch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ochronus/gomonsterapi/internal/services/monster"
	"gopkg.in/yaml.v3"
)

// Job is a single generation request in a batch file.
type Job struct {
	Name   string         `yaml:"name" json:"name"`
	Model  string         `yaml:"model" json:"model"`
	Params map[string]any `yaml:"params" json:"params"`
}

// String returns a formatted string representation of the job
func (j *Job) String() string {
	return fmt.Sprintf("[%s: %s]", j.Name, j.Model)
}

// File is a parsed batch file. Workers is optional and overrides the
// configured pool size when positive.
type File struct {
	Workers int   `yaml:"workers"`
	Jobs    []Job `yaml:"jobs"`
}

// Outcome is the result of one job. Exactly one of Result and Error is set.
type Outcome struct {
	Name     string         `json:"name"`
	Model    string         `json:"model"`
	Result   monster.Result `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"-"`

	Err error `json:"-"`
}

// OK reports whether the job produced a result.
func (o *Outcome) OK() bool {
	return o.Err == nil
}

func (o *Outcome) fail(err error) {
	o.Err = err
	o.Error = err.Error()
}

// Summarize counts succeeded and failed outcomes.
func Summarize(outcomes []Outcome) (succeeded, failed int) {
	for i := range outcomes {
		if outcomes[i].OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Load reads and parses a batch file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a batch document. Either a bare list of jobs or a mapping
// with "workers" and "jobs" keys is accepted.
func Parse(data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("batch file is empty")
	}

	var file File
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&file.Jobs); err != nil {
			return nil, fmt.Errorf("failed to parse batch file: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse batch file: %w", err)
		}
	default:
		return nil, errors.New("batch file must be a list of jobs or a mapping with a jobs key")
	}

	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) validate() error {
	if len(f.Jobs) == 0 {
		return errors.New("batch file has no jobs")
	}
	if f.Workers < 0 {
		return errors.New("workers must not be negative")
	}

	for i := range f.Jobs {
		job := &f.Jobs[i]
		if strings.TrimSpace(job.Model) == "" {
			return fmt.Errorf("job %d: model is required", i+1)
		}
		if job.Name == "" {
			job.Name = fmt.Sprintf("job-%d", i+1)
		}
		if job.Params == nil {
			job.Params = map[string]any{}
		}
	}
	return nil
}
