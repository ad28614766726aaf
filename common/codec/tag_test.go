package codec

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexTag = regexp.MustCompile(`^[a-f0-9]{64}$`)

func TestComputeTag_KnownValue(t *testing.T) {
	tag := ComputeTag(Record{Name: "Jack", Origin: "Bengaluru", Destination: "Mumbai"})

	assert.Equal(t, "ad2cdbc4121c4378d725cd60ed74cb1e8c4d3055c61345a7afd775f2757881db", tag)
	assert.Regexp(t, hexTag, tag)
}

func TestComputeTag_NoHTMLEscaping(t *testing.T) {
	// Producers serialize without escaping <, > and &.
	tag := ComputeTag(Record{Name: "A&B <x>", Origin: "B", Destination: "C"})
	assert.Equal(t, "a00dde2da5a70c2559da6085842dccf50880dd193d9016573d017b187b7ae2e9", tag)
}

func TestComputeTag_SingleCharacterChange(t *testing.T) {
	base := Record{Name: "Jack", Origin: "Bengaluru", Destination: "Mumbai"}
	baseTag := ComputeTag(base)

	tests := []struct {
		name   string
		record Record
	}{
		{name: "name", record: Record{Name: "Jacк", Origin: "Bengaluru", Destination: "Mumbai"}},
		{name: "name case", record: Record{Name: "jack", Origin: "Bengaluru", Destination: "Mumbai"}},
		{name: "origin", record: Record{Name: "Jack", Origin: "Bengalurx", Destination: "Mumbai"}},
		{name: "destination", record: Record{Name: "Jack", Origin: "Bengaluru", Destination: "Mumbaj"}},
		{name: "fields swapped", record: Record{Name: "Jack", Origin: "Mumbai", Destination: "Bengaluru"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, baseTag, ComputeTag(tt.record))
		})
	}
}

func TestVerifyTag(t *testing.T) {
	r := Record{Name: "A", Origin: "B", Destination: "C"}

	assert.True(t, VerifyTag(r, ComputeTag(r)))
	assert.False(t, VerifyTag(r, "wrong"))
	assert.False(t, VerifyTag(r, ""))
	assert.False(t, VerifyTag(r, ComputeTag(Record{Name: "A", Origin: "B", Destination: "D"})))
}

func TestMarshal_FieldOrder(t *testing.T) {
	sealed := Seal(Record{Name: "A", Origin: "B", Destination: "C"})

	data := Marshal(sealed)
	assert.Equal(t, `{"name":"A","origin":"B","destination":"C","secret_key":"`+sealed.Tag+`"}`, string(data))

	var decoded AuthenticatedRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sealed, decoded)
}
