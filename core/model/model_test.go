package model

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

func TestFreezeAndCount(t *testing.T) {
	a := NewParameter("fc1.weight", []int{2, 3}, make([]float64, 6))
	b := NewParameter("fc1.bias", []int{2}, make([]float64, 2))

	total, trainable := CountParameters([]*Parameter{a, b})
	assert.Equal(t, 8, total)
	assert.Equal(t, 8, trainable)

	Freeze([]*Parameter{a})
	total, trainable = CountParameters([]*Parameter{a, b})
	assert.Equal(t, 8, total)
	assert.Equal(t, 2, trainable)
	assert.Equal(t, []*Parameter{b}, TrainableParameters([]*Parameter{a, b}))
}

func TestParameter_ZeroGrad(t *testing.T) {
	p := NewParameter("w", []int{3}, []float64{1, 2, 3})
	p.Grad[1] = 4
	p.ZeroGrad()
	assert.Equal(t, []float64{0, 0, 0}, p.Grad)
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.ErrorIs(t, s.RequireTrained(), errors.ErrNotTrained)

	s.SetTrained(3, 120)
	require.NoError(t, s.RequireTrained())
	assert.True(t, s.IsTrained())
	assert.Equal(t, 3, s.Epochs)
	assert.Equal(t, 120, s.NSamples)
}

func TestGobRoundTrip(t *testing.T) {
	type record struct {
		Name string
		Data []float64
	}
	in := record{Name: "fc1.weight", Data: []float64{0.1, -2.5, 3e-9}}

	var buf bytes.Buffer
	require.NoError(t, EncodeGob(&buf, in))

	var out record
	require.NoError(t, DecodeGob(&buf, &out))
	assert.Equal(t, in, out)

	assert.Error(t, DecodeGob(bytes.NewReader([]byte{0xff, 0x00}), &out))
}
