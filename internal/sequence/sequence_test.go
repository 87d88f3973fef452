package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "OFF0001", Format("OFF", 1))
	assert.Equal(t, "OFF0042", Format("OFF", 42))
	assert.Equal(t, "INV9999", Format("INV", 9999))
}

func TestFormatWidensPastFourDigits(t *testing.T) {
	assert.Equal(t, "OFF10000", Format("OFF", 10000))
}
