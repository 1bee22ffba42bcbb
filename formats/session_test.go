package formats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/legacydoc/recovery"
	"github.com/wudi/legacydoc/scanner"
)

func newSession(strategy recovery.Strategy) *Session {
	return NewSession(context.Background(), scanner.FromBytes(make([]byte, 16)), Identification{Format: "test", Version: 1}, SessionOptions{Recovery: strategy})
}

func TestAnomalyKeepsSkippedRecords(t *testing.T) {
	short := errors.New("style record shorter than its fields")
	s := newSession(nil)

	require.NoError(t, s.Anomaly("style", 8, short))
	require.NoError(t, s.Anomaly("records", 12, markSkipped(short)))
	assert.Equal(t, 2, s.Anomalies())
	require.Len(t, s.Skipped(), 2)
	for _, err := range s.Skipped() {
		assert.ErrorIs(t, err, recovery.ErrRecordSkipped)
		assert.ErrorIs(t, err, short)
	}
	assert.Contains(t, s.Skipped()[0].Error(), "style at 8")
	assert.Equal(t, markSkipped(short).Error(), s.Skipped()[1].Error(), "already marked errors are kept as is")
}

func TestAnomalyFailsUnderStrict(t *testing.T) {
	short := errors.New("print record truncated")
	s := newSession(recovery.NewStrictStrategy())

	err := s.Anomaly("printinfo", 4, short)
	assert.ErrorIs(t, err, ErrStructural)
	assert.ErrorIs(t, err, short)
	assert.Empty(t, s.Skipped())
}

func markSkipped(err error) error {
	return errors.Join(recovery.ErrRecordSkipped, err)
}
