// Package taskfile reads task files and validates them against the embedded
// task schemas before the orchestrator may use them.
package taskfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/anushabukke/peerBench-sub002/internal/contentid"
	"github.com/anushabukke/peerBench-sub002/internal/models"
)

// SchemaV1 is the identifier of the only task schema currently understood.
const SchemaV1 = "pb.task.v1"

//go:embed schemas/pb.task.v1.json
var taskSchemaV1JSON string

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

var schemas = map[string]*jsonschema.Schema{
	SchemaV1: mustCompileSchema(taskSchemaV1JSON, SchemaV1),
}

// ErrUnknownSchema is returned when a task names a schema this build does not
// know.
var ErrUnknownSchema = errors.New("unknown task schema")

// ValidationError lists every schema violation found in a task file.
type ValidationError struct {
	Path     string
	Schema   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s does not match schema %s: %s", e.Path, e.Schema, strings.Join(e.Problems, "; "))
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ReadFromFile loads the task at path, validates it, and fills in content
// identifiers the producer left out. It returns the schema the task matched.
func ReadFromFile(path string) (string, *models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading task file: %w", err)
	}
	schemaID, task, err := Parse(data)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Path = path
		}
		return "", nil, err
	}
	if task.FileName == "" {
		task.FileName = filepath.Base(path)
	}
	return schemaID, task, nil
}

// Parse validates raw task JSON and decodes it.
func Parse(data []byte) (string, *models.Task, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("task is not valid JSON: %w", err)
	}

	schemaID := SchemaV1
	if obj, ok := instance.(map[string]any); ok {
		if s, ok := obj["schema"].(string); ok && s != "" {
			schemaID = s
		}
	}
	schema, ok := schemas[schemaID]
	if !ok {
		return "", nil, fmt.Errorf("%w %q", ErrUnknownSchema, schemaID)
	}

	if problems := validateAgainstSchema(schema, instance); len(problems) > 0 {
		return "", nil, &ValidationError{Path: "task", Schema: schemaID, Problems: problems}
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return "", nil, fmt.Errorf("decoding task: %w", err)
	}
	task.Schema = schemaID

	if err := fillContentIDs(&task, data); err != nil {
		return "", nil, err
	}
	return schemaID, &task, nil
}

func fillContentIDs(task *models.Task, raw []byte) error {
	if task.CID == "" || task.SHA256 == "" {
		id, err := contentid.Of(raw)
		if err != nil {
			return fmt.Errorf("hashing task: %w", err)
		}
		if task.CID == "" {
			task.CID = id.CID
		}
		if task.SHA256 == "" {
			task.SHA256 = id.SHA256
		}
	}
	if task.DID == "" {
		task.DID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("peerbench:task:"+task.CID)).String()
	}

	for i := range task.Prompts {
		p := &task.Prompts[i]
		for _, ref := range []*models.ContentRef{&p.Question, &p.FullPrompt} {
			if ref.CID != "" && ref.SHA256 != "" {
				continue
			}
			id, err := contentid.OfString(ref.Data)
			if err != nil {
				return fmt.Errorf("hashing prompt %s: %w", p.DID, err)
			}
			if ref.CID == "" {
				ref.CID = id.CID
			}
			if ref.SHA256 == "" {
				ref.SHA256 = id.SHA256
			}
		}
	}
	return nil
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}
