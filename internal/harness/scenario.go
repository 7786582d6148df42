package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is an end-to-end conversation with the API.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects "memory" (default) or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Dev enables development-only routes.
	Dev bool `yaml:"dev,omitempty"`

	// EmailWhitelist restricts registration when non-empty.
	EmailWhitelist []string `yaml:"email_whitelist,omitempty"`

	// Steps are sent in order.
	Steps []Step `yaml:"steps"`

	// Assertions check the stored state after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one request and its expected response.
type Step struct {
	Name    string  `yaml:"name"`
	Request Request `yaml:"request"`

	// Expect is optional; without it only the trace records the exchange.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Request describes an HTTP request.
type Request struct {
	Method string            `yaml:"method"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query,omitempty"`
	Auth   *Credentials      `yaml:"auth,omitempty"`
	Body   any               `yaml:"body,omitempty"`
}

// Credentials are sent as HTTP Basic authentication.
type Credentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Expect describes the expected response.
type Expect struct {
	Status  int               `yaml:"status"`
	Headers map[string]string `yaml:"headers,omitempty"`

	// Body is matched as a subset when it is an object and exactly
	// otherwise.
	Body any `yaml:"body,omitempty"`

	// Absent lists keys the response object must not contain.
	Absent []string `yaml:"absent,omitempty"`
}

// Assertion checks stored state.
type Assertion struct {
	// Type is "count" or "document".
	Type string `yaml:"type"`

	// Class is the entity class, e.g. "User".
	Class string `yaml:"class"`

	// Count is the expected number of stored entities (count).
	Count int `yaml:"count,omitempty"`

	// ID selects the stored document (document).
	ID string `yaml:"id,omitempty"`

	// Expect is a subset of the stored document, by storage name
	// (document).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCount    = "count"
	AssertDocument = "document"
)

var methods = []string{
	http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Backend {
	case "":
		s.Backend = "memory"
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		step.Request.Method = strings.ToUpper(step.Request.Method)
		if !slices.Contains(methods, step.Request.Method) {
			return fmt.Errorf("steps[%d]: unsupported method %q", i, step.Request.Method)
		}
		if !strings.HasPrefix(step.Request.Path, "/") {
			return fmt.Errorf("steps[%d]: path must start with /", i)
		}
		if step.Expect != nil && step.Expect.Status == 0 {
			return fmt.Errorf("steps[%d].expect: status is required", i)
		}
		s.Steps[i] = step
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Class == "" {
		return fmt.Errorf("assertions[%d]: class is required", index)
	}
	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertDocument:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for document", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for document", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
