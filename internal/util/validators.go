package util

import (
	"fmt"
	"strings"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

func ValidateArgs(args []models.Value, count int) error {
	if len(args) != count {
		return fmt.Errorf("ERR wrong number of arguments")
	}
	return nil
}

func ValidateMinArgs(args []models.Value, minCount int) error {
	if len(args) < minCount {
		return fmt.Errorf("ERR wrong number of arguments")
	}
	return nil
}

func ValidateKeyArg(args []models.Value) error {
	if len(args) < 1 {
		return fmt.Errorf("ERR no key specified")
	}
	return nil
}

// WrongArgs is the reply for an arity mismatch of cmd.
func WrongArgs(cmd string) models.Value {
	return models.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

// Upper returns the upper-cased bulk payload of v, for keyword matching.
func Upper(v models.Value) string {
	return strings.ToUpper(v.Bulk)
}
