package errs_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	assert.Equal(t, "validation_error", errs.Code(errs.Validation("tests are empty")))
	assert.Equal(t, "not_found", errs.Code(errs.NotFound("exercise %s", "x")))
	assert.Equal(t, "sandbox_error", errs.Code(errs.Sandbox("no port", nil)))
	assert.Equal(t, "store_error", errs.Code(errs.Store("write", fs.ErrPermission)))
	assert.Equal(t, "internal_error", errs.Code(errors.New("boom")))
	assert.Equal(t, "", errs.Code(nil))
}

func TestWrappedCauseIsKept(t *testing.T) {
	err := errs.Store("failed to write snapshot", fs.ErrPermission)
	assert.ErrorIs(t, err, errs.ErrStore)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Contains(t, err.Error(), "failed to write snapshot")
}
