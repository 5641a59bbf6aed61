package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointRequiresTwoNumbers(t *testing.T) {
	var p Point
	require.NoError(t, json.Unmarshal([]byte(`[-23.5, -46.6]`), &p))
	assert.Equal(t, LatLng{Lat: -23.5, Lng: -46.6}, p.LatLng())

	for _, raw := range []string{`[1.5]`, `[]`, `[1,2,3]`, `null`, `"1,2"`, `[1,"2"]`, `[1e400,0]`} {
		var q Point
		assert.ErrorIs(t, json.Unmarshal([]byte(raw), &q), ErrBadPoint, raw)
		assert.Equal(t, Point{}, q, raw)
	}
}
