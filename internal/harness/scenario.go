package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pathchain/internal/fault"
)

// Scenario is a scripted sequence of registration operations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation.
type Step struct {
	// Op is bootstrap, register, issue_secret, check_secret, login or ancestor.
	Op string `yaml:"op"`

	// As labels what the step creates.
	As string `yaml:"as,omitempty"`

	// Secret references a bound secret label. SecretLiteral passes raw
	// input instead, for malformed or unknown secrets.
	Secret        string `yaml:"secret,omitempty"`
	SecretLiteral string `yaml:"secret_literal,omitempty"`

	Username string `yaml:"username,omitempty"`
	// Password defaults to DefaultPassword.
	Password string `yaml:"password,omitempty"`

	// Entity references a bound entity label.
	Entity string `yaml:"entity,omitempty"`

	// Expect is "ok" (the default) or a fault code.
	Expect string `yaml:"expect,omitempty"`

	ExpectAncestor string `yaml:"expect_ancestor,omitempty"`
	ExpectValid    *bool  `yaml:"expect_valid,omitempty"`
	ExpectUnused   *bool  `yaml:"expect_unused,omitempty"`
}

// Assertion checks final state after all steps ran.
type Assertion struct {
	Type string `yaml:"type"`

	// Entity is the label the assertion is about (lineage, unused_secrets).
	Entity string `yaml:"entity,omitempty"`

	// Chain is the expected lineage, starting at Entity and ending at the root.
	Chain []string `yaml:"chain,omitempty"`

	// Count is the expected number of unused secrets.
	Count int `yaml:"count,omitempty"`

	Entities    *int64 `yaml:"entities,omitempty"`
	Secrets     *int64 `yaml:"secrets,omitempty"`
	UsedSecrets *int64 `yaml:"used_secrets,omitempty"`
	Credentials *int64 `yaml:"credentials,omitempty"`
}

// Step operations.
const (
	OpBootstrap   = "bootstrap"
	OpRegister    = "register"
	OpIssueSecret = "issue_secret"
	OpCheckSecret = "check_secret"
	OpLogin       = "login"
	OpAncestor    = "ancestor"
)

// Assertion types.
const (
	AssertCounts        = "counts"
	AssertLineage       = "lineage"
	AssertUnusedSecrets = "unused_secrets"
	AssertNoOrphans     = "no_orphans"
)

// ExpectOK is the outcome of a successful step.
const ExpectOK = "ok"

var knownCodes = map[string]bool{
	ExpectOK:                             true,
	string(fault.InvalidRequest):         true,
	string(fault.InvalidSecret):          true,
	string(fault.UsedSecret):             true,
	string(fault.AncestorNotFound):       true,
	string(fault.UsernameExists):         true,
	string(fault.EntityMintFailed):       true,
	string(fault.DatabaseError):          true,
	string(fault.NotFound):               true,
	string(fault.InvalidCredentials):     true,
	string(fault.CredentialsUnavailable): true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Expect != "" && !knownCodes[step.Expect] {
		return fmt.Errorf("unknown expect code %q", step.Expect)
	}
	if step.Secret != "" && step.SecretLiteral != "" {
		return fmt.Errorf("secret and secret_literal are mutually exclusive")
	}

	switch step.Op {
	case OpBootstrap:
	case OpRegister:
		if step.Username == "" && step.Expect == "" {
			return fmt.Errorf("username is required for register")
		}
	case OpIssueSecret:
		if step.Entity == "" || step.As == "" {
			return fmt.Errorf("entity and as are required for issue_secret")
		}
	case OpCheckSecret:
		if step.Secret == "" && step.SecretLiteral == "" {
			return fmt.Errorf("secret or secret_literal is required for check_secret")
		}
	case OpLogin:
		if step.Username == "" && step.Expect == "" {
			return fmt.Errorf("username is required for login")
		}
	case OpAncestor:
		if step.Entity == "" {
			return fmt.Errorf("entity is required for ancestor")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertCounts:
		if a.Entities == nil && a.Secrets == nil && a.UsedSecrets == nil && a.Credentials == nil {
			return fmt.Errorf("counts needs at least one of entities, secrets, used_secrets, credentials")
		}
	case AssertLineage:
		if a.Entity == "" || len(a.Chain) == 0 {
			return fmt.Errorf("entity and chain are required for lineage")
		}
	case AssertUnusedSecrets:
		if a.Entity == "" {
			return fmt.Errorf("entity is required for unused_secrets")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for unused_secrets")
		}
	case AssertNoOrphans:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
