package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBContainmentOperand(t *testing.T) {
	assert.Equal(t, `["tech"]`, jsonbContainment("tech"))

	// Anführungszeichen im Query-Parameter dürfen kein invalides jsonb ergeben
	operand := jsonbContainment(`te"ch`)
	var decoded []string
	require.NoError(t, json.Unmarshal([]byte(operand), &decoded))
	assert.Equal(t, []string{`te"ch`}, decoded)
}
