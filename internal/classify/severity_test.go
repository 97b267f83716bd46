package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/medic/internal/types"
)

func TestSeverityTable_Complete(t *testing.T) {
	for _, c := range types.AllClassifications() {
		_, ok := severityTable[c]
		assert.True(t, ok, "missing severity for %s", c)
	}
	assert.Len(t, severityTable, len(types.AllClassifications()))
}

func TestAssess(t *testing.T) {
	tests := []struct {
		c    types.Classification
		want types.Severity
	}{
		{types.DiskFull, types.SeverityCritical},
		{types.OutOfMemory, types.SeverityCritical},
		{types.DatabaseLocked, types.SeverityHigh},
		{types.ConnectionRefused, types.SeverityHigh},
		{types.RateLimited, types.SeverityMedium},
		{types.FileNotFound, types.SeverityMedium},
		{types.AddressInUse, types.SeverityLow},
		{types.Unknown, types.SeverityLow},
		{types.Classification("NOT_A_THING"), types.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.c), func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.c))
		})
	}
}
