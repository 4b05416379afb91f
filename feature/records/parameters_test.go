package records

import (
	"context"
	"testing"

	"record-sync/core/reconcile"
	"record-sync/feature/records/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setParams(t *testing.T, db *gorm.DB, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, db.Create(&models.Parameter{Name: k, Value: v}).Error)
	}
}

func TestParameters_LocalServerID(t *testing.T) {
	ctx := context.Background()

	t.Run("From table", func(t *testing.T) {
		db := newTestDB(t)
		setParams(t, db, map[string]string{ParamServerNumber: "1"})
		id, err := NewParameters(db, 0).LocalServerID(ctx)
		require.NoError(t, err)
		assert.Equal(t, reconcile.SourceID(1), id)
	})

	t.Run("Configured override", func(t *testing.T) {
		db := newTestDB(t)
		setParams(t, db, map[string]string{ParamServerNumber: "1"})
		id, err := NewParameters(db, 4).LocalServerID(ctx)
		require.NoError(t, err)
		assert.Equal(t, reconcile.SourceID(4), id)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := NewParameters(newTestDB(t), 0).LocalServerID(ctx)
		assert.ErrorIs(t, err, reconcile.ErrConfiguration)
	})
}

func TestParameters_SourcePriority(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	setParams(t, db, map[string]string{
		"server_order_audio_records_import": "3, 2,4",
		"server_order_video_records_import": "2;3",
	})
	p := NewParameters(db, 0)

	order, err := p.SourcePriority(ctx, reconcile.KindAudio)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.SourceID{3, 2, 4}, order)

	_, err = p.SourcePriority(ctx, reconcile.KindVideo)
	assert.ErrorIs(t, err, reconcile.ErrConfiguration)

	order, err = NewParameters(newTestDB(t), 0).SourcePriority(ctx, reconcile.KindAudio)
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestParameters_ProcessingEnabled(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		kind   reconcile.Kind
		want   bool
	}{
		{"Audio enabled", map[string]string{"is_audio_processing": "1"}, reconcile.KindAudio, true},
		{"Audio disabled", map[string]string{"is_audio_processing": "0"}, reconcile.KindAudio, false},
		{"Video flag", map[string]string{"is_video_processing": "1"}, reconcile.KindVideo, true},
		{"Band flag counts for video", map[string]string{"is_band_processing": "1"}, reconcile.KindVideo, true},
		{"Band flag ignored for audio", map[string]string{"is_band_processing": "1"}, reconcile.KindAudio, false},
		{"Unset", nil, reconcile.KindAudio, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			setParams(t, db, tt.params)
			got, err := NewParameters(db, 0).ProcessingEnabled(context.Background(), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameterNames(t *testing.T) {
	assert.Equal(t, "server_order_video_records_import", PriorityParam(reconcile.KindVideo))
	assert.Equal(t, "is_audio_processing", ProcessingParam(reconcile.KindAudio))
}
