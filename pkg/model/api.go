package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EmailPayload is one element of the GET /emails response.
type EmailPayload struct {
	ID           string         `json:"email_id" yaml:"email_id"`
	Subject      string         `json:"subject" yaml:"subject"`
	Body         string         `json:"body" yaml:"body"`
	Deadline     Seconds        `json:"deadline" yaml:"deadline"`
	Dependencies DependencyList `json:"dependencies" yaml:"dependencies"`
}

// ToTask converts the payload into a Task fetched at fetchTime.
func (p EmailPayload) ToTask(fetchTime time.Time) Task {
	return Task{
		ID:           p.ID,
		Subject:      p.Subject,
		Body:         p.Body,
		Deadline:     p.Deadline.Duration(),
		Dependencies: []string(p.Dependencies),
		FetchTime:    fetchTime,
	}
}

// PayloadFromTask is the inverse of ToTask, used by the sandbox API.
func PayloadFromTask(t Task) EmailPayload {
	return EmailPayload{
		ID:           t.ID,
		Subject:      t.Subject,
		Body:         t.Body,
		Deadline:     Seconds(t.Deadline.Seconds()),
		Dependencies: DependencyList(t.Dependencies),
	}
}

// ResponsePayload is the body of POST /responses.
type ResponsePayload struct {
	EmailID      string `json:"email_id"`
	ResponseBody string `json:"response_body"`
	APIKey       string `json:"api_key"`
	TestMode     string `json:"test_mode,omitempty"`
}

// Seconds is a deadline in (possibly fractional) seconds. The API sends it
// either as a number or as a numeric string.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	return s.parse(raw)
}

func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*s = 0
		return nil
	}
	return s.parse(strings.TrimSpace(node.Value))
}

func (s *Seconds) parse(raw string) error {
	if raw == "" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("deadline %q: %w", raw, err)
	}
	*s = Seconds(v)
	return nil
}

// DependencyList is a set of task IDs. On the wire it is a comma-separated
// string ("a, b"); a JSON/YAML list is accepted as well.
type DependencyList []string

// ParseDependencies splits a comma-separated list, trimming blanks and
// dropping empty entries.
func ParseDependencies(s string) DependencyList {
	var out DependencyList
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (d DependencyList) String() string {
	return strings.Join(d, ",")
}

func (d DependencyList) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DependencyList) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == nil {
			*d = nil
			return nil
		}
		*d = ParseDependencies(*s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("dependencies: expected string or list: %w", err)
	}
	*d = ParseDependencies(strings.Join(list, ","))
	return nil
}

func (d *DependencyList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*d = nil
			return nil
		}
		*d = ParseDependencies(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*d = ParseDependencies(strings.Join(list, ","))
		return nil
	}
	return fmt.Errorf("dependencies: expected string or list at line %d", node.Line)
}

// ListOptions configures list queries with pagination.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 100, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
