package fleeterrors

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsInfra_SeesThroughWrapping(t *testing.T) {
	err := errors.WithMessage(
		errors.WithStack(&ErrInfra{Service: "taskqueue", Method: "Submit"}),
		"failed to submit task")
	assert.True(t, IsInfra(err))
	assert.False(t, IsInfra(errors.New("plain")))
	assert.False(t, IsInfra(nil))
}

func TestIsSuiteTimeout(t *testing.T) {
	err := &ErrSuiteTimeout{Budget: time.Hour, Outstanding: 2}
	assert.True(t, IsSuiteTimeout(errors.WithStack(err)))
	assert.Contains(t, err.Error(), "2 tasks still outstanding")
	assert.False(t, IsSuiteTimeout(errors.New("plain")))
}

func TestIsNotFound(t *testing.T) {
	err := &ErrNotFound{Type: "job", Value: "j1"}
	assert.True(t, IsNotFound(errors.WithStack(err)))
	assert.False(t, IsNotFound(&ErrInfra{}))
}

func TestErrInfraMessage(t *testing.T) {
	assert.Equal(t,
		"infra failure in leasestore.SetLeased: connection refused",
		(&ErrInfra{Service: "leasestore", Method: "SetLeased", Message: "connection refused"}).Error())
	assert.Equal(t,
		"infra failure in leasestore.SetLeased",
		(&ErrInfra{Service: "leasestore", Method: "SetLeased"}).Error())
}
