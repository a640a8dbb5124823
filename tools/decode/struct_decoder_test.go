package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type msgPayload struct {
	ChatID     *int64         `json:"chatId"`
	MemberIDs  []int64        `json:"memberIds"`
	Message    string         `json:"message"`
	Attachment []string       `json:"attachment"`
	TempID     string         `json:"tempId"`
	Meta       map[string]any `json:"meta"`
}

func TestDecodeJSONWeakTypes(t *testing.T) {
	raw := []byte(`{"chatId":"12","memberIds":[1,"2",3.0],"message":"hi","attachment":["a.png"],"tempId":"t-1","meta":"{\"k\":1}"}`)
	p, err := DecodeJSON[msgPayload](raw)
	require.NoError(t, err)
	require.NotNil(t, p.ChatID)
	assert.Equal(t, int64(12), *p.ChatID)
	assert.Equal(t, []int64{1, 2, 3}, p.MemberIDs)
	assert.Equal(t, []string{"a.png"}, p.Attachment)
	assert.Equal(t, "t-1", p.TempID)
	assert.Equal(t, float64(1), p.Meta["k"])
}

func TestDecodeJSONNullChat(t *testing.T) {
	p, err := DecodeJSON[msgPayload]([]byte(`{"chatId":null,"memberIds":[1,2],"message":"hi"}`))
	require.NoError(t, err)
	assert.Nil(t, p.ChatID)
}

func TestDecodeJSONRejectsNonObject(t *testing.T) {
	_, err := DecodeJSON[msgPayload]([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = DecodeJSON[msgPayload](nil)
	assert.Error(t, err)
}

func TestReadHelpers(t *testing.T) {
	m := map[string]any{"to": "9", "n": float64(4), "s": "x"}
	v, err := ReadInt64(m, "to")
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
	v, err = ReadInt64(m, "n")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	_, err = ReadInt64(m, "missing")
	assert.Error(t, err)
	s, err := ReadString(m, "s")
	require.NoError(t, err)
	assert.Equal(t, "x", s)
	_, err = ReadString(m, "n")
	assert.Error(t, err)
}
