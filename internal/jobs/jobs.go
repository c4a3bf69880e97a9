// Package jobs defines the (config, query) pairs a batch run processes.
package jobs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidJob is returned for job definitions missing a config or query.
var ErrInvalidJob = errors.New("invalid job")

// Job is one unit of work: a query ranked against the collection and scored
// under the named evaluation config.
type Job struct {
	ConfigPath string `yaml:"config" json:"config"`
	Query      string `yaml:"query" json:"query"`
}

// Validate reports whether the job has both a config and a query.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ConfigPath) == "" {
		return fmt.Errorf("%w: config is empty", ErrInvalidJob)
	}
	if strings.TrimSpace(j.Query) == "" {
		return fmt.Errorf("%w: query for %s is empty", ErrInvalidJob, j.ConfigPath)
	}
	return nil
}

// Defaults returns the built-in job list.
func Defaults() []Job {
	return []Job{
		{"tax_lawyer.yml", "Seasoned attorney with JD from top U.S. law school and over 3 years of legal practice, specializing in corporate tax structuring and compliance, IRS audits, federal tax code"},
		{"junior_corporate_lawyer.yml", "Corporate lawyer with 2-4 years experience at top-tier international law firm, M&A support, cross-border contract negotiations, reputed law school USA Europe Canada"},
		{"radiology.yml", "Radiologist with MD degree from U.S. or India, experience reading CT and MRI scans, diagnostic workflows, AI-assisted image analysis, board certification"},
		{"doctors_md.yml", "U.S.-trained physician MD from top U.S. medical school with 2+ years clinical practice experience as General Practitioner, chronic care management, telemedicine"},
		{"biology_expert.yml", "Biologist with PhD from top U.S. university, undergraduate U.S. U.K. or Canada, specializing in molecular biology, gene expression, genetics, CRISPR, PCR, sequencing"},
		{"anthropology.yml", "PhD student or completed PhD in anthropology from distinguished U.S. university, focused on labor migration, cultural identity, ethnographic methods, fieldwork, sociology"},
		{"mathematics_phd.yml", "Mathematician with PhD from leading U.S. university, undergraduate U.S. U.K. or Canada, specializing in statistical inference, stochastic processes, mathematics or statistics"},
		{"quantitative_finance.yml", "MBA from prestigious U.S. university M7 MBA with 3+ years experience in quantitative finance, risk modeling, algorithmic trading, Python, portfolio optimization, derivatives pricing"},
		{"bankers.yml", "Healthcare investment banker MBA from U.S. university with 2+ years in investment banking, M&A advisory, healthcare-focused, biotech, pharma services, private equity"},
		{"mechanical_engineers.yml", "Mechanical engineer with higher degree and 3+ years experience in product development, structural design, SolidWorks, ANSYS, thermal systems, CAD tools, prototyping"},
	}
}

type file struct {
	Jobs []Job `yaml:"jobs"`
}

// Load reads a YAML job file of the form
//
//	jobs:
//	  - config: tax_lawyer.yml
//	    query: "Seasoned attorney ..."
//
// Every job must validate. An empty path returns Defaults.
func Load(path string) ([]Job, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML job definitions.
func Parse(data []byte) ([]Job, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing job file: %w", err)
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("%w: job file defines no jobs", ErrInvalidJob)
	}
	for i, j := range f.Jobs {
		if err := j.Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i+1, err)
		}
	}
	return f.Jobs, nil
}

// Filter keeps the jobs whose config is listed in only, preserving
// definition order. An empty only returns all jobs. Names may omit the
// .yml extension.
func Filter(all []Job, only []string) ([]Job, error) {
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[normalize(name)] = true
	}

	var out []Job
	matched := make(map[string]bool, len(only))
	for _, j := range all {
		key := normalize(j.ConfigPath)
		if want[key] {
			out = append(out, j)
			matched[key] = true
		}
	}
	for _, name := range only {
		if !matched[normalize(name)] {
			return nil, fmt.Errorf("%w: no job with config %q", ErrInvalidJob, name)
		}
	}
	return out, nil
}

func normalize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".yml")
	return strings.TrimSuffix(name, ".yaml")
}
