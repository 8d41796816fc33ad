// Package taskfile loads email batches from local YAML or JSON files, in the
// same shape the email service returns from GET /emails.
package taskfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/emailflow/pkg/model"
)

// document is the wrapped file form: `emails: [...]`.
type document struct {
	Emails []model.EmailPayload `json:"emails" yaml:"emails"`
}

// Load reads tasks from path. FetchTime of every task is set to now.
// Files ending in .json are decoded as JSON, everything else as YAML.
func Load(path string, now time.Time) ([]model.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	isJSON := strings.EqualFold(filepath.Ext(path), ".json")
	tasks, err := Parse(data, isJSON, now)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tasks, nil
}

// Parse decodes either a bare list of emails or a document with an
// `emails` key.
func Parse(data []byte, isJSON bool, now time.Time) ([]model.Task, error) {
	var payloads []model.EmailPayload
	if isJSON {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var doc document
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, err
			}
			payloads = doc.Emails
		} else if err := json.Unmarshal(trimmed, &payloads); err != nil {
			return nil, err
		}
	} else {
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
			var doc document
			if err := node.Decode(&doc); err != nil {
				return nil, err
			}
			payloads = doc.Emails
		} else if len(node.Content) > 0 {
			if err := node.Decode(&payloads); err != nil {
				return nil, err
			}
		}
	}

	tasks := make([]model.Task, len(payloads))
	for i, p := range payloads {
		tasks[i] = p.ToTask(now)
	}
	return tasks, nil
}

// Write stores tasks at path as YAML, or JSON when path ends in .json.
func Write(path string, tasks []model.Task) error {
	doc := document{Emails: make([]model.EmailPayload, len(tasks))}
	for i, t := range tasks {
		doc.Emails[i] = model.PayloadFromTask(t)
	}

	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Random builds n tasks forming a random DAG: each task may depend on up to
// maxDeps earlier tasks. Deadlines fall in [1s, 10s).
func Random(n, maxDeps int, rng *rand.Rand, now time.Time) []model.Task {
	tasks := make([]model.Task, n)
	for i := range tasks {
		t := model.Task{
			ID:        fmt.Sprintf("email-%03d", i+1),
			Subject:   fmt.Sprintf("Question %d", i+1),
			Body:      fmt.Sprintf("Could you follow up on item %d?", i+1),
			Deadline:  time.Second + time.Duration(rng.Int64N(int64(9*time.Second))),
			FetchTime: now,
		}
		if i > 0 && maxDeps > 0 {
			seen := make(map[int]bool)
			for k := rng.IntN(maxDeps + 1); k > 0; k-- {
				j := rng.IntN(i)
				if !seen[j] {
					seen[j] = true
					t.Dependencies = append(t.Dependencies, tasks[j].ID)
				}
			}
		}
		tasks[i] = t
	}
	return tasks
}
