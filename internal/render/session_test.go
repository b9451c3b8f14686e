package render

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nguyentranbao-ct/catalog-console/internal/catalogapi"
	"github.com/nguyentranbao-ct/catalog-console/internal/catalogapi/catalogapitest"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/internal/preview"
)

type reply struct {
	blob *catalogapi.Blob
	err  error
}

type call struct {
	params models.RenderParameters
	reply  chan reply
}

// gatedRenderer blocks every Render until the test answers it, so responses
// can arrive in any order.
type gatedRenderer struct {
	calls chan call
}

func newGatedRenderer() *gatedRenderer {
	return &gatedRenderer{calls: make(chan call, 8)}
}

func (g *gatedRenderer) Render(ctx context.Context, id int64, params models.RenderParameters) (*catalogapi.Blob, error) {
	c := call{params: params, reply: make(chan reply, 1)}
	g.calls <- c
	select {
	case r := <-c.reply:
		return r.blob, r.err
	case <-ctx.Done():
		return nil, &models.NetworkError{Op: "render", Err: ctx.Err()}
	}
}

func (g *gatedRenderer) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no render request issued")
		return call{}
	}
}

func ok(id int64, p models.RenderParameters) reply {
	return reply{blob: &catalogapi.Blob{Data: catalogapitest.RenderBody(id, p), ContentType: "image/png"}}
}

func newPreviews(t *testing.T) *preview.Dir {
	t.Helper()
	d, err := preview.NewDir(t.TempDir())
	require.NoError(t, err)
	return d
}

func artifactParams(t *testing.T, s *Session) models.RenderParameters {
	t.Helper()
	_, res, err := s.Artifact()
	require.NoError(t, err)
	return res.Params
}

func TestNewSessionIsIdle(t *testing.T) {
	s := NewSession(1, newGatedRenderer(), newPreviews(t))
	snap := s.Snapshot()
	assert.Equal(t, models.RenderStateIdle, snap.State)
	assert.Equal(t, models.DefaultRenderParameters(), snap.Params)
	assert.Nil(t, snap.Result)
	_, _, err := s.Artifact()
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestLatestRequestWins(t *testing.T) {
	p1 := models.RenderParameters{HorizontalAngle: 10, VerticalAngle: 0, LightEnergy: 50}
	p2 := models.RenderParameters{HorizontalAngle: 20, VerticalAngle: 5, LightEnergy: 60}

	for _, tc := range []struct {
		name        string
		secondFirst bool
	}{
		{"in order", false},
		{"out of order", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
			r := newGatedRenderer()
			s := NewSession(7, r, newPreviews(t))

			_, err := s.SetParameters(p1)
			require.NoError(t, err)
			first := r.next(t)
			_, err = s.SetParameters(p2)
			require.NoError(t, err)
			second := r.next(t)
			assert.Equal(t, p1, first.params)
			assert.Equal(t, p2, second.params)

			if tc.secondFirst {
				second.reply <- ok(7, p2)
				first.reply <- ok(7, p1)
			} else {
				first.reply <- ok(7, p1)
				second.reply <- ok(7, p2)
			}
			s.Wait()

			snap := s.Snapshot()
			assert.Equal(t, models.RenderStateReady, snap.State)
			require.NotNil(t, snap.Result)
			assert.Equal(t, p2, snap.Result.Params)
			assert.Equal(t, uint64(2), snap.Result.Seq)
			assert.Zero(t, snap.InFlight)

			data, _, err := s.Artifact()
			require.NoError(t, err)
			assert.Equal(t, catalogapitest.RenderBody(7, p2), data)
			s.Close()
		})
	}
}

func TestOlderSuccessKeepsRequesting(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	s := NewSession(1, r, newPreviews(t))
	p1 := models.RenderParameters{HorizontalAngle: 1, LightEnergy: 1}
	p2 := models.RenderParameters{HorizontalAngle: 2, LightEnergy: 2}

	_, _ = s.SetParameters(p1)
	first := r.next(t)
	_, _ = s.SetParameters(p2)
	second := r.next(t)

	first.reply <- ok(1, p1)
	require.Eventually(t, func() bool { return s.Snapshot().Result != nil }, 5*time.Second, 5*time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, models.RenderStateRequesting, snap.State)
	assert.Equal(t, p1, snap.Result.Params)

	second.reply <- ok(1, p2)
	s.Wait()
	assert.Equal(t, models.RenderStateReady, s.Snapshot().State)
	assert.Equal(t, p2, artifactParams(t, s))
	s.Close()
}

func TestFailureKeepsPreviousArtifact(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	s := NewSession(3, r, newPreviews(t))
	p1 := models.RenderParameters{HorizontalAngle: 30, VerticalAngle: 10, LightEnergy: 40}
	p2 := models.RenderParameters{HorizontalAngle: 31, VerticalAngle: 10, LightEnergy: 40}

	_, _ = s.SetParameters(p1)
	r.next(t).reply <- ok(3, p1)
	s.Wait()
	require.Equal(t, models.RenderStateReady, s.Snapshot().State)

	_, _ = s.SetParameters(p2)
	r.next(t).reply <- reply{err: &models.RemoteError{Status: http.StatusInternalServerError, Message: "renderer crashed"}}
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, models.RenderStateFailed, snap.State)
	assert.Equal(t, "renderer crashed", snap.Error)
	assert.Equal(t, p2, snap.Params)
	assert.Equal(t, p1, artifactParams(t, s))

	t.Run("next success clears the error", func(t *testing.T) {
		_, _ = s.SetParameters(p2)
		r.next(t).reply <- ok(3, p2)
		s.Wait()
		snap := s.Snapshot()
		assert.Equal(t, models.RenderStateReady, snap.State)
		assert.Empty(t, snap.Error)
	})
	s.Close()
}

func TestStaleFailureDoesNotMarkFailed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	s := NewSession(1, r, newPreviews(t))
	p1 := models.RenderParameters{HorizontalAngle: 1}
	p2 := models.RenderParameters{HorizontalAngle: 2}

	_, _ = s.SetParameters(p1)
	first := r.next(t)
	_, _ = s.SetParameters(p2)
	second := r.next(t)

	second.reply <- ok(1, p2)
	first.reply <- reply{err: errors.New("late failure")}
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, models.RenderStateReady, snap.State)
	assert.Empty(t, snap.Error)
	s.Close()
}

func TestOlderSuccessAfterNewerFailureIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	previews := newPreviews(t)
	s := NewSession(2, r, previews)
	p0 := models.RenderParameters{HorizontalAngle: 100, LightEnergy: 10}
	p1 := models.RenderParameters{HorizontalAngle: 110, LightEnergy: 10}
	p2 := models.RenderParameters{HorizontalAngle: 120, LightEnergy: 10}

	_, _ = s.SetParameters(p0)
	r.next(t).reply <- ok(2, p0)
	s.Wait()
	require.Equal(t, models.RenderStateReady, s.Snapshot().State)

	_, _ = s.SetParameters(p1)
	first := r.next(t)
	_, _ = s.SetParameters(p2)
	second := r.next(t)

	second.reply <- reply{err: &models.NetworkError{Op: "render", Err: errors.New("network down")}}
	require.Eventually(t, func() bool {
		return s.Snapshot().State == models.RenderStateFailed
	}, 5*time.Second, 5*time.Millisecond)

	first.reply <- ok(2, p1)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, models.RenderStateFailed, snap.State)
	assert.Equal(t, p2, snap.Params)
	assert.Zero(t, snap.InFlight)
	require.NotNil(t, snap.Result)
	assert.Equal(t, uint64(1), snap.Result.Seq)
	assert.Equal(t, p0, artifactParams(t, s))

	entries, err := os.ReadDir(previews.Path)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the dropped artifact must be released")
	s.Close()
}

func TestSetParametersClamps(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	s := NewSession(1, r, newPreviews(t))

	got, err := s.SetParameters(models.RenderParameters{HorizontalAngle: 999, VerticalAngle: -500, LightEnergy: 80})
	require.NoError(t, err)
	want := models.RenderParameters{HorizontalAngle: 288, VerticalAngle: -180, LightEnergy: 80}
	assert.Equal(t, want, got)

	c := r.next(t)
	assert.Equal(t, want, c.params)
	c.reply <- ok(1, want)
	s.Wait()
	s.Close()
}

func TestSetParametersRejectsNonFinite(t *testing.T) {
	r := newGatedRenderer()
	s := NewSession(1, r, newPreviews(t))

	_, err := s.SetParameters(models.RenderParameters{LightEnergy: math.NaN()})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, models.RenderStateIdle, s.Snapshot().State)
	assert.Empty(t, r.calls)
}

func TestCloseDiscardsLateResponses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newGatedRenderer()
	previews := newPreviews(t)
	s := NewSession(5, r, previews)
	p1 := models.RenderParameters{HorizontalAngle: 50, LightEnergy: 10}

	_, _ = s.SetParameters(p1)
	r.next(t).reply <- ok(5, p1)
	s.Wait()
	_, res, err := s.Artifact()
	require.NoError(t, err)
	require.NotNil(t, res)

	_, _ = s.SetParameters(models.RenderParameters{HorizontalAngle: 60})
	late := r.next(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Close()
	}()
	// Close cancels the in-flight request; the reply below may or may not be
	// observed but must never be applied.
	late.reply <- ok(5, models.RenderParameters{HorizontalAngle: 60})
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, models.RenderStateIdle, snap.State)
	assert.Nil(t, snap.Result)
	assert.Zero(t, snap.InFlight)

	entries, err := os.ReadDir(previews.Path)
	require.NoError(t, err)
	assert.Empty(t, entries, "artifacts must be released on close")
}

func TestRenderSynchronous(t *testing.T) {
	srv := catalogapitest.NewServer(models.Product{ID: 4, Name: "Box", ModelType: "Коробка"})
	t.Cleanup(srv.Close)
	client, err := catalogapi.New(catalogapi.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	s := NewSession(4, client, newPreviews(t))
	defer s.Close()

	_, err = s.SetParameters(models.RenderParameters{HorizontalAngle: 999, VerticalAngle: 0, LightEnergy: 80})
	require.NoError(t, err)
	s.Wait()

	res, err := s.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 288.0, res.Params.HorizontalAngle)
	assert.Equal(t, "image/png", res.ContentType)

	reqs := srv.Requests()
	require.NotEmpty(t, reqs)
	for _, r := range reqs {
		assert.Equal(t, "288", r.Query["horizontalAngle"])
	}

	t.Run("remote failure", func(t *testing.T) {
		srv.Fail("render", http.StatusBadGateway, `{"message":"gpu busy"}`)
		defer srv.Recover("render")
		_, err := s.Render(context.Background())
		require.Error(t, err)
		snap := s.Snapshot()
		assert.Equal(t, models.RenderStateFailed, snap.State)
		assert.Equal(t, "gpu busy", snap.Error)
		require.NotNil(t, snap.Result)
	})
}
