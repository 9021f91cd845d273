package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemRevoker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	r := &memRevoker{tokens: make(map[string]time.Time), nowFunc: func() time.Time { return now }}

	require.NoError(t, r.Revoke(ctx, "live", now.Add(time.Hour)))
	require.NoError(t, r.Revoke(ctx, "expired", now.Add(-time.Second)))

	tests := []struct {
		id   string
		want bool
	}{
		{id: "live", want: true},
		{id: "expired", want: false},
		{id: "unknown", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := r.IsRevoked(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	// entries are forgotten once expired
	now = now.Add(2 * time.Hour)
	got, _ := r.IsRevoked(ctx, "live")
	assert.False(t, got)
	require.NoError(t, r.Revoke(ctx, "other", now.Add(time.Hour)))
	assert.NotContains(t, r.tokens, "live")
}
