package util

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

func TestArity(t *testing.T) {
	three := []models.Value{models.Bulk("s"), models.Bulk("g"), models.Bulk("c")}

	assert.NoError(t, ValidateArgs(three, 3))
	assert.EqualError(t, ValidateArgs(three[:1], 3), "ERR wrong number of arguments")
	assert.Error(t, ValidateArgs(nil, 1))

	assert.NoError(t, ValidateMinArgs(three, 2))
	assert.EqualError(t, ValidateMinArgs(three[:1], 2), "ERR wrong number of arguments")

	assert.NoError(t, ValidateKeyArg(three[:1]))
	assert.EqualError(t, ValidateKeyArg(nil), "ERR no key specified")
}

func TestWrongArgs(t *testing.T) {
	assert.Equal(t,
		models.Error("ERR wrong number of arguments for 'xreadgroup' command"),
		WrongArgs("XREADGROUP"))
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "XADD", Upper(models.Bulk("xAdd")))
	assert.Equal(t, "", Upper(models.Null()))
}
