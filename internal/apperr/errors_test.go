package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockUnwraps(t *testing.T) {
	err := fmt.Errorf("record sale: %w", &InsufficientStockError{ProductID: "p", Available: 1, Requested: 2})

	assert.ErrorIs(t, err, ErrInsufficientStock)
	var ise *InsufficientStockError
	assert.True(t, errors.As(err, &ise))
	assert.Equal(t, 1, ise.Available)
}

func TestPartialCommitUnwrapsBoth(t *testing.T) {
	cause := errors.New("commit lost")
	err := &PartialCommitError{SaleID: "s-1", Err: cause}

	assert.ErrorIs(t, err, ErrPartialCommit)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "s-1")
}

func TestFromValidation(t *testing.T) {
	type input struct {
		Quantity int `validate:"gt=0"`
	}
	err := FromValidation(validator.New().Struct(input{}))

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "Quantity")
	assert.NoError(t, FromValidation(nil))
}

func TestNotFound(t *testing.T) {
	err := NotFound("product", "p-9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "product p-9: not found", err.Error())
}
