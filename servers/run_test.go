package servers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcess_AbortClosesInReverse(t *testing.T) {
	var order []string
	errClose := errors.New("close failed")
	p := &Process{Closers: []func() error{
		func() error { order = append(order, "log"); return nil },
		func() error { order = append(order, "store"); return errClose },
	}}

	errBuild := errors.New("build failed")
	err := p.Abort(errBuild)

	assert.Equal(t, []string{"store", "log"}, order)
	assert.ErrorIs(t, err, errBuild)
	assert.ErrorIs(t, err, errClose)
}

func TestNewCommunicator(t *testing.T) {
	for _, transport := range []string{"http", "grpc"} {
		comm, err := NewCommunicator(transport, "127.0.0.1:0", nil)
		assert.NoError(t, err)
		assert.NotNil(t, comm)
	}

	_, err := NewCommunicator("carrier-pigeon", "", nil)
	assert.Error(t, err)
}
