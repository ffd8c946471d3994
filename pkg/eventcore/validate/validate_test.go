package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_RequiredFieldMissing(t *testing.T) {
	v := Schema{Fields: []Field{{Name: "name", Kind: String, Required: true}}}.New()

	errs := v.Validate(json.RawMessage(`{}`))
	assert.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Field)
}

func TestSchema_OptionalFieldMayBeAbsent(t *testing.T) {
	v := Schema{Fields: []Field{{Name: "nickname", Kind: String, Required: false}}}.New()

	errs := v.Validate(json.RawMessage(`{}`))
	assert.Empty(t, errs)
}

func TestSchema_WrongKindReported(t *testing.T) {
	v := Schema{Fields: []Field{{Name: "age", Kind: Number, Required: true}}}.New()

	errs := v.Validate(json.RawMessage(`{"age":"old"}`))
	assert.Len(t, errs, 1)
	assert.Equal(t, "age", errs[0].Field)
}

func TestSchema_AllKindsAccepted(t *testing.T) {
	v := Schema{Fields: []Field{
		{Name: "name", Kind: String, Required: true},
		{Name: "age", Kind: Number, Required: true},
		{Name: "active", Kind: Bool, Required: true},
		{Name: "meta", Kind: Object, Required: true},
		{Name: "tags", Kind: Array, Required: true},
	}}.New()

	payload := json.RawMessage(`{"name":"a","age":1,"active":true,"meta":{},"tags":[]}`)
	assert.Empty(t, v.Validate(payload))
}

func TestSchema_EmptyPayloadTreatedAsEmptyObject(t *testing.T) {
	v := Schema{Fields: []Field{{Name: "x", Kind: String, Required: false}}}.New()
	assert.Empty(t, v.Validate(nil))
}

func TestSchema_NotAnObjectReported(t *testing.T) {
	v := Schema{Fields: []Field{{Name: "x", Kind: String}}}.New()
	errs := v.Validate(json.RawMessage(`[1,2,3]`))
	assert.Len(t, errs, 1)
	assert.Equal(t, "$", errs[0].Field)
}
