// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const bookingSchema = `{
	"type": "object",
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"scheduleId": {"type": "string", "minLength": 1}
	},
	"required": ["applicationId", "scheduleId"],
	"additionalProperties": true
}`

func TestValidateInput_Valid(t *testing.T) {
	res, err := ValidateInput(map[string]interface{}{
		"applicationId": "app-001",
		"scheduleId":    "sched-001",
	}, bookingSchema)

	assert.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateInput_MissingRequiredField(t *testing.T) {
	res, err := ValidateInput(map[string]interface{}{
		"applicationId": "app-001",
	}, bookingSchema)

	assert.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Error(), "scheduleId")
}

func TestValidateInput_WrongType(t *testing.T) {
	res, err := ValidateInput(map[string]interface{}{
		"applicationId": 42,
		"scheduleId":    "sched-001",
	}, bookingSchema)

	assert.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidateInput_BrokenSchema(t *testing.T) {
	_, err := ValidateInput(map[string]interface{}{}, `{"type": `)
	assert.Error(t, err)
}
