package dataset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRefresherDisabled(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Nil(t, NewRefresher(svc))
	assert.Nil(t, NewRefresher(svc, RefreshConfig{Interval: 0}))
}

func TestRefresherRebuildsPeriodically(t *testing.T) {
	svc, src := newTestService(t)
	r := NewRefresher(svc, RefreshConfig{Interval: 10 * time.Millisecond})
	require.NotNil(t, r)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return src.loadCount() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, svc.Stats().Generation, uint64(2))
}

func TestRefresherKeepsServingOnFailure(t *testing.T) {
	svc, src := newTestService(t)
	src.setLoadErr(errors.New("upstream down"))

	r := NewRefresher(svc, RefreshConfig{Interval: 10 * time.Millisecond})
	require.NotNil(t, r)
	require.Eventually(t, func() bool {
		return src.loadCount() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	res, err := svc.Query(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
}

func TestRefresherStopIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	r := NewRefresher(svc, RefreshConfig{Interval: time.Hour})
	require.NotNil(t, r)

	r.Stop()
	r.Stop()
}
