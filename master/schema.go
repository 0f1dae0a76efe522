package master

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/umithardal/kafka-to-nexus/errors"
)

// commandSchema is the fixed JSON Schema every command envelope must satisfy
// before Master looks at its "cmd" field, per spec.md §6.
const commandSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["cmd"],
	"properties": {
		"cmd": {
			"type": "string",
			"enum": ["FileWriter_new", "FileWriter_exit", "FileWriter_stop", "file_writer_tasks_clear_all"]
		},
		"job_id": {"type": "string"},
		"file_attributes": {
			"type": "object",
			"properties": {"file_name": {"type": "string"}}
		},
		"nexus_structure": {"type": "object"},
		"start_time": {"type": "integer"},
		"stop_time": {"type": "integer"}
	}
}`

var commandSchemaLoader = gojsonschema.NewStringLoader(commandSchema)

// ValidateCommand checks a raw command document against the fixed schema.
func ValidateCommand(raw json.RawMessage) error {
	result, err := gojsonschema.Validate(commandSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.WrapInvalid(err, "master", "ValidateCommand", "run schema validation")
	}
	if !result.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidData, "master", "ValidateCommand", describeErrors(result.Errors()))
	}
	return nil
}

func describeErrors(errs []gojsonschema.ResultError) string {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Field() + ": " + e.Description()
	}
	return msg
}
