package eventcore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorRegistry_RegisteredTracksTypes(t *testing.T) {
	r := NewValidatorRegistry()
	assert.False(t, r.Registered("Foo"))
	r.Register("Foo", EventSchemas{})
	assert.True(t, r.Registered("Foo"))
}

func TestValidatorRegistry_ValidatePassesWithNoSchemas(t *testing.T) {
	r := NewValidatorRegistry()
	r.Register("Foo", EventSchemas{})
	err := r.Validate(Record{Type: "Foo", Data: json.RawMessage(`{}`)})
	assert.NoError(t, err)
}

func TestValidatorRegistry_ValidateSkipsUnregisteredTypes(t *testing.T) {
	r := NewValidatorRegistry()
	err := r.Validate(Record{Type: "Unregistered"})
	assert.NoError(t, err)
}

func TestValidatorRegistry_ValidateAggregatesDataAndMetaErrors(t *testing.T) {
	r := NewValidatorRegistry()
	r.Register("Foo", EventSchemas{
		Data: ValidatorFunc(func(json.RawMessage) []FieldError {
			return []FieldError{{Field: "name", Message: "required"}}
		}),
		Meta: ValidatorFunc(func(json.RawMessage) []FieldError {
			return []FieldError{{Field: "traceId", Message: "required"}}
		}),
	})

	err := r.Validate(Record{Type: "Foo"})
	require.Error(t, err)

	parserErr, ok := GetEventParserError(err)
	require.True(t, ok)
	assert.Len(t, parserErr.Fields, 2)
	assert.True(t, IsEventParserError(err))
}
