package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ValidationError reports an invalid config file. Line is set for syntax
// errors, Field for invalid values. When several values are invalid, Field and
// Message describe the first and Others holds the rest as "key: message".
type ValidationError struct {
	FilePath string
	Line     int
	Column   int
	Field    string
	Message  string
	Others   []string
}

func (e *ValidationError) Error() string {
	var msg string
	switch {
	case e.Line > 0:
		msg = fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	case e.Field != "":
		msg = fmt.Sprintf("%s: %s %s", e.FilePath, e.Field, e.Message)
	default:
		msg = fmt.Sprintf("%s: %s", e.FilePath, e.Message)
	}
	if len(e.Others) > 0 {
		msg += " (also: " + strings.Join(e.Others, "; ") + ")"
	}
	return msg
}

var yamlLine = regexp.MustCompile(`line (\d+)(?:: column (\d+))?`)

// ValidateYAMLSyntax checks that path holds a YAML mapping. A missing or
// empty file is valid and leaves the defaults in place.
func ValidateYAMLSyntax(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &ValidationError{FilePath: path, Message: err.Error()}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return syntaxError(path, err)
	}
	if len(doc.Content) == 1 && doc.Content[0].Kind != yaml.MappingNode && doc.Content[0].Tag != "!!null" {
		root := doc.Content[0]
		return &ValidationError{FilePath: path, Line: root.Line, Column: root.Column, Message: "config must be a mapping of keys"}
	}
	return nil
}

// syntaxError turns a yaml.v3 error such as "yaml: line 5: did not find
// expected key" into a positioned ValidationError.
func syntaxError(path string, err error) *ValidationError {
	msg := err.Error()
	ve := &ValidationError{FilePath: path, Message: strings.TrimPrefix(msg, "yaml: ")}
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		ve.Line, _ = strconv.Atoi(m[1])
		ve.Column = 1
		if m[2] != "" {
			ve.Column, _ = strconv.Atoi(m[2])
		}
		if i := strings.LastIndex(msg, ": "); i >= 0 {
			ve.Message = msg[i+2:]
		}
	}
	return ve
}

var (
	valueValidator *validator.Validate
	validatorOnce  sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		valueValidator = validator.New()
		valueValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
			return name
		})
	})
	return valueValidator
}

// crossFieldRules are constraints spanning several keys.
var crossFieldRules = []struct {
	key      string
	message  string
	violated func(*Configuration) bool
}{
	{
		key:     "remotes.ssh",
		message: "requires password or key_file",
		violated: func(c *Configuration) bool {
			ssh := c.Remotes.SSH
			return ssh.Enabled && ssh.Password == "" && ssh.KeyFile == ""
		},
	},
}

// ValidateConfigValues checks every value of cfg and reports all problems in
// one ValidationError labeled with path.
func ValidateConfigValues(cfg *Configuration, path string) error {
	type problem struct{ key, message string }
	var problems []problem

	if err := getValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &ValidationError{FilePath: path, Message: err.Error()}
		}
		for _, fe := range fieldErrs {
			problems = append(problems, problem{configKey(fe), describe(fe)})
		}
	}
	for _, rule := range crossFieldRules {
		if rule.violated(cfg) {
			problems = append(problems, problem{rule.key, rule.message})
		}
	}

	if len(problems) == 0 {
		return nil
	}
	ve := &ValidationError{FilePath: path, Field: problems[0].key, Message: problems[0].message}
	for _, p := range problems[1:] {
		ve.Others = append(ve.Others, p.key+": "+p.message)
	}
	return ve
}

// configKey is the dotted key of fe without the root type name.
func configKey(fe validator.FieldError) string {
	_, key, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Namespace()
	}
	return key
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when enabled"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
