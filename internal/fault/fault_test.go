package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity(t *testing.T) {
	taskErr := Taskf("categorize", ErrStructural, "store %d feeds store %d", 4, 7)
	runErr := Runf("cycles", ErrDescriptor, "unknown block %d", 12)

	assert.False(t, IsRunFatal(taskErr))
	assert.True(t, IsRunFatal(runErr))
	assert.True(t, IsRunFatal(fmt.Errorf("wrapped: %w", runErr)))
	assert.False(t, IsRunFatal(errors.New("plain")))

	assert.ErrorIs(t, taskErr, ErrStructural)
	assert.ErrorIs(t, runErr, ErrDescriptor)
	assert.Equal(t, "categorize: structural contradiction: store 4 feeds store 7", taskErr.Error())
}

func TestWithTask(t *testing.T) {
	err := WithTask(Task("expression", ErrPredication), 42)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(42), fe.Task)
	assert.Equal(t, SeverityTask, fe.Severity)
	assert.Contains(t, err.Error(), "task 42")

	plain := WithTask(errors.New("boom"), 3)
	require.ErrorAs(t, plain, &fe)
	assert.Equal(t, "analysis", fe.Op)
	assert.Nil(t, WithTask(nil, 1))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, ErrUnsupported, From(ErrUnsupported))
	assert.EqualError(t, From("index out of range"), "index out of range")
}
