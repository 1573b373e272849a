package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) LookPath() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockCapability) Run(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func TestGatePassesOnZeroExit(t *testing.T) {
	c := &mockCapability{}
	c.On("Run", mock.Anything).Return("GPU 0: NVIDIA GeForce RTX 3080 (UUID: GPU-1234)\n", nil).Once()

	res := New(c).Run(context.Background())

	assert.True(t, res.Passed)
	assert.False(t, res.Skipped)
	assert.Equal(t, "GPU 0: NVIDIA GeForce RTX 3080 (UUID: GPU-1234)", res.Output)
	c.AssertExpectations(t)
}

func TestGateKeepsErrorTextOnFailure(t *testing.T) {
	c := &mockCapability{}
	c.On("Run", mock.Anything).Return(
		"NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver.",
		errors.New("nvidia-smi: exit status 9"),
	).Once()

	res := New(c).Run(context.Background())

	assert.False(t, res.Passed)
	assert.Contains(t, res.Output, "couldn't communicate with the NVIDIA driver")
	assert.Contains(t, res.Output, "exit status 9")
}

func TestGateIgnoresOutputContent(t *testing.T) {
	c := &mockCapability{}
	// success output that happens to mention failure still passes
	c.On("Run", mock.Anything).Return("No devices were found", nil).Once()
	assert.True(t, New(c).Run(context.Background()).Passed)

	c2 := &mockCapability{}
	c2.On("Run", mock.Anything).Return("", errors.New("signal: killed")).Once()
	res := New(c2).Run(context.Background())
	assert.False(t, res.Passed)
	assert.Equal(t, "signal: killed", res.Output)
}
