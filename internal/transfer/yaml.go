package transfer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agis/consultcal/internal/contract"
)

// yamlDocument is the on-disk shape of a task fixture file:
//
//	tasks:
//	  - title: Kickoff
//	    client_name: ACME
//	    exact_date: 2025-01-10
//	    period_kind: morning
//
// Files written by WriteYAML carry ids and timestamps too; those are read
// and dropped, since imported tasks always get fresh ids.
type yamlDocument struct {
	Tasks []contract.Task `yaml:"tasks"`
}

// ReadYAML decodes task drafts. Entries without a title are rejected with
// their 1-based position so the file can be fixed.
func ReadYAML(r io.Reader, owner string) ([]contract.TaskDraft, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out := make([]contract.TaskDraft, 0, len(doc.Tasks))
	for i, t := range doc.Tasks {
		d := t.TaskDraft
		if strings.TrimSpace(d.Title) == "" {
			return nil, fmt.Errorf("task %d: title is required", i+1)
		}
		if owner != "" {
			d.OwnerID = owner
		}
		out = append(out, d)
	}
	return out, nil
}

// WriteYAML encodes tasks with their ids and timestamps so the output can
// be diffed or archived.
func WriteYAML(w io.Writer, tasks []contract.Task) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlDocument{Tasks: tasks}); err != nil {
		return err
	}
	return enc.Close()
}
