package render

import (
	"math"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nguyentranbao-ct/catalog-console/internal/models"
)

func TestManagerOpenReusesSession(t *testing.T) {
	m := NewManager(newGatedRenderer(), newPreviews(t))

	a := m.Open(1)
	assert.Same(t, a, m.Open(1))
	assert.NotSame(t, a, m.Open(2))

	got, ok := m.Get(1)
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = m.Get(3)
	assert.False(t, ok)
}

func TestManagerClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	m := NewManager(r, newPreviews(t))

	s := m.Open(1)
	_, _ = s.SetParameters(models.DefaultRenderParameters())
	r.next(t)

	assert.True(t, m.Close(1))
	assert.False(t, m.Close(1))
	_, ok := m.Get(1)
	assert.False(t, ok)
	assert.Equal(t, models.RenderStateIdle, s.Snapshot().State)
}

func TestManagerCloseAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	m := NewManager(r, newPreviews(t))
	for _, id := range []int64{1, 2, 3} {
		_, _ = m.Open(id).SetParameters(models.DefaultRenderParameters())
		r.next(t)
	}

	m.CloseAll()
	for _, id := range []int64{1, 2, 3} {
		_, ok := m.Get(id)
		assert.False(t, ok)
	}
}

func TestManagerSetParametersTracksSession(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	previews := newPreviews(t)
	m := NewManager(r, previews)
	p := models.RenderParameters{HorizontalAngle: 40, LightEnergy: 20}

	s, applied, err := m.SetParameters(1, p)
	require.NoError(t, err)
	assert.Equal(t, p, applied)
	got, tracked := m.Get(1)
	require.True(t, tracked)
	assert.Same(t, s, got)

	r.next(t).reply <- ok(1, p)
	s.Wait()
	require.NotNil(t, s.Snapshot().Result)

	_, _, err = m.SetParameters(1, models.RenderParameters{LightEnergy: math.Inf(1)})
	assert.ErrorIs(t, err, models.ErrValidation)

	m.CloseAll()
	entries, err := os.ReadDir(previews.Path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManagerCloseRacingSetParameters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	previews := newPreviews(t)
	m := NewManager(r, previews)
	m.Open(1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = m.SetParameters(1, models.DefaultRenderParameters())
		}()
		go func() {
			defer wg.Done()
			m.Close(1)
		}()
	}
	go func() {
		for c := range r.calls {
			c.reply <- ok(1, c.params)
		}
	}()
	wg.Wait()

	m.CloseAll()
	close(r.calls)
	entries, err := os.ReadDir(previews.Path)
	require.NoError(t, err)
	assert.Empty(t, entries, "every render must belong to a session the manager can close")
}
