package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/couchcryptid/indicator-etl/internal/domain"
	"github.com/couchcryptid/indicator-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

// phase tracks pass/fail for one validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// errValidation is returned when any phase fails; the report is already printed.
var errValidation = errors.New("validation failed")

func newValidateCommand(flags *sourceFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load every source and report parse statistics and failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, loadErr := flags.session(cmd)
			if s == nil {
				return loadErr
			}
			phases := validateSession(s, pipeline.SourcesFromConfig(flags.cfg))

			out := cmd.OutOrStdout()
			failed := false
			for _, p := range phases {
				status := "PASS"
				if !p.passed() {
					status = "FAIL"
					failed = true
				}
				fmt.Fprintf(out, "[%s] %s\n", status, p.name)
				for _, n := range p.notes {
					fmt.Fprintf(out, "       %s\n", n)
				}
				for _, e := range p.errors {
					fmt.Fprintf(out, "  ERROR %s\n", e)
				}
			}
			if failed {
				return errValidation
			}
			return nil
		},
	}
}

func validateSession(s *pipeline.Session, sources []pipeline.SourceSpec) []*phase {
	var phases []*phase
	for _, spec := range sources {
		p := &phase{name: "source " + spec.Name}
		if reason, ok := s.Failures[spec.Name]; ok {
			p.errorf("%s", reason)
		}
		stats := s.Stats[spec.Name]
		p.notef("rows read %d, observations %d, dropped %d, scaled %t",
			stats.RowsRead, stats.Observations, stats.Dropped, stats.Scaled)
		if ix := s.Index(spec.Field); ix != nil {
			p.notef("codes %d, years %d", ix.Len(), len(ix.Years()))
			if d := ix.Duplicates(); d > 0 {
				p.notef("duplicate (code, year) rows %d", d)
			}
		}
		phases = append(phases, p)
	}

	cont := &phase{name: "source " + pipeline.ContinentsSource}
	if reason, ok := s.Failures[pipeline.ContinentsSource]; ok {
		cont.errorf("%s", reason)
	}
	counts := s.Continents.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		cont.notef("%s labels %d", k, counts[domain.ContinentSource(k)])
	}
	phases = append(phases, cont)

	coverage := &phase{name: "continent coverage"}
	var unlabelled []string
	for _, code := range s.Index(pipeline.FieldInternet).Codes() {
		if _, ok := s.Continents.Lookup(code); !ok {
			unlabelled = append(unlabelled, code)
		}
	}
	coverage.notef("adoption codes without a continent: %d %v", len(unlabelled), unlabelled)
	phases = append(phases, coverage)
	return phases
}
