package ids_test

import (
	"encoding/json"
	"person-id-backend/internal/ids"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIds(t *testing.T) {
	raw := uuid.New()

	group, err := ids.ParseGroupId(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw, group.UUID)
	assert.False(t, group.IsZero())

	_, err = ids.ParsePersonId("not-a-uuid")
	assert.Error(t, err)

	assert.True(t, ids.FaceId{}.IsZero())
}

func TestIdsMarshalAsPlainStrings(t *testing.T) {
	person := ids.PersonId{uuid.New()}

	data, err := json.Marshal(struct{ PersonId ids.PersonId }{person})
	require.NoError(t, err)
	assert.JSONEq(t, `{"PersonId":"`+person.String()+`"}`, string(data))

	var decoded struct{ PersonId ids.PersonId }
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, person, decoded.PersonId)
}
