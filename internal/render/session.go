package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/catalog-console/internal/catalogapi"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/internal/preview"
	"github.com/nguyentranbao-ct/catalog-console/pkg/logger"
	"github.com/nguyentranbao-ct/catalog-console/pkg/util"
)

var (
	// ErrSuperseded is returned to the caller of a request whose response
	// lost against a newer one.
	ErrSuperseded = errors.New("render superseded by a newer request")
	// ErrSessionClosed is returned when the session was closed while the
	// request was in flight.
	ErrSessionClosed = errors.New("render session closed")
	// ErrNoArtifact is returned while no render has succeeded yet.
	ErrNoArtifact = errors.New("no render artifact")
)

// Renderer is the part of the catalog api a session needs.
type Renderer interface {
	Render(ctx context.Context, id int64, params models.RenderParameters) (*catalogapi.Blob, error)
}

// Result is one render artifact and the parameters that produced it.
type Result struct {
	Params      models.RenderParameters `json:"params"`
	Seq         uint64                  `json:"seq"`
	ContentType string                  `json:"contentType"`
	Size        int64                   `json:"size"`
	RenderedAt  time.Time               `json:"renderedAt"`

	handle *preview.Handle
}

type Snapshot struct {
	ProductID int64                   `json:"productId"`
	State     models.RenderState      `json:"state"`
	Params    models.RenderParameters `json:"params"`
	Result    *Result                 `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Seq       uint64                  `json:"seq"`
	InFlight  int                     `json:"inFlight"`
}

// Session tracks the render artifact of one product. Responses are applied
// in request order, not arrival order: a success older than any response
// already returned, failed ones included, is dropped. Closing the session
// invalidates everything still in flight.
type Session struct {
	productID int64
	renderer  Renderer
	previews  *preview.Dir
	log       *zap.SugaredLogger
	outcomes  *prometheus.CounterVec

	mu         sync.Mutex
	state      models.RenderState
	params     models.RenderParameters
	result     *Result
	lastErr    string
	issued     uint64
	returned   uint64
	inFlight   int
	generation uint64
	base       context.Context
	cancel     context.CancelFunc
	pending    *sync.WaitGroup
}

type request struct {
	seq        uint64
	generation uint64
	params     models.RenderParameters
}

func NewSession(productID int64, renderer Renderer, previews *preview.Dir) *Session {
	outcomes, err := util.GetCounterVec("render_session_responses_total",
		"Render responses by how the session handled them", "outcome")
	if err != nil {
		panic(err)
	}
	s := &Session{
		productID: productID,
		renderer:  renderer,
		previews:  previews,
		log:       logger.MustNamed("render").With("product_id", productID),
		outcomes:  outcomes,
		state:     models.RenderStateIdle,
		params:    models.DefaultRenderParameters(),
		pending:   &sync.WaitGroup{},
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Session) ProductID() int64 {
	return s.productID
}

// SetParameters clamps p into bounds, makes it the current parameter set
// and starts a render for it in the background. The clamped parameters are
// returned; non-finite input is rejected before anything is sent.
func (s *Session) SetParameters(p models.RenderParameters) (models.RenderParameters, error) {
	clamped, err := p.Clamp()
	if err != nil {
		return models.RenderParameters{}, err
	}

	s.mu.Lock()
	s.params = clamped
	req := s.issueLocked()
	ctx, wg := s.base, s.pending
	wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer wg.Done()
		if _, err := s.run(ctx, req); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrSessionClosed) {
			s.log.Debugw("background render failed", "seq", req.seq, "error", err)
		}
	}()
	return clamped, nil
}

// Render requests an artifact for the current parameters and waits for it.
func (s *Session) Render(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	req := s.issueLocked()
	s.mu.Unlock()
	return s.run(ctx, req)
}

// Wait blocks until every background render started so far has finished.
func (s *Session) Wait() {
	s.mu.Lock()
	wg := s.pending
	s.mu.Unlock()
	wg.Wait()
}

// Close drops the artifact, invalidates in-flight requests and returns the
// session to idle. The session can be used again afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.generation++
	s.cancel()
	wg := s.pending
	s.pending = &sync.WaitGroup{}
	s.base, s.cancel = context.WithCancel(context.Background())
	old := s.result
	s.result = nil
	s.state = models.RenderStateIdle
	s.lastErr = ""
	s.inFlight = 0
	s.mu.Unlock()

	wg.Wait()
	if old != nil {
		if err := old.handle.Release(); err != nil {
			s.log.Warnw("release render artifact failed", "error", err)
		}
	}
	s.log.Debugw("render session closed")
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ProductID: s.productID,
		State:     s.state,
		Params:    s.params,
		Error:     s.lastErr,
		Seq:       s.issued,
		InFlight:  s.inFlight,
	}
	if s.result != nil {
		r := *s.result
		r.handle = nil
		snap.Result = &r
	}
	return snap
}

// Artifact returns the bytes of the current artifact, which stays visible
// after a failed follow-up request.
func (s *Session) Artifact() ([]byte, *Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, nil, ErrNoArtifact
	}
	data, err := s.result.handle.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read render artifact: %w", err)
	}
	r := *s.result
	r.handle = nil
	return data, &r, nil
}

func (s *Session) issueLocked() request {
	s.issued++
	s.inFlight++
	s.state = models.RenderStateRequesting
	return request{seq: s.issued, generation: s.generation, params: s.params}
}

func (s *Session) run(ctx context.Context, req request) (*Result, error) {
	blob, err := s.renderer.Render(ctx, s.productID, req.params)
	var handle *preview.Handle
	if err == nil {
		handle, err = s.previews.Write(fmt.Sprintf("render-%d", s.productID), blob.Data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.generation != s.generation {
		s.release(handle)
		s.outcomes.WithLabelValues("closed").Inc()
		return nil, ErrSessionClosed
	}
	s.inFlight--
	latest := req.seq == s.issued
	stale := req.seq <= s.returned
	if !stale {
		s.returned = req.seq
	}

	if err != nil {
		s.outcomes.WithLabelValues("failed").Inc()
		s.log.Warnw("render failed", "seq", req.seq, "latest", latest, "error", err)
		if latest {
			s.state = models.RenderStateFailed
			s.lastErr = models.UserMessage(err)
		}
		return nil, fmt.Errorf("render product %d: %w", s.productID, err)
	}

	if stale {
		s.release(handle)
		s.outcomes.WithLabelValues("superseded").Inc()
		s.log.Debugw("dropping superseded render", "seq", req.seq, "returned", s.returned)
		return nil, ErrSuperseded
	}

	result := &Result{
		Params:      req.params,
		Seq:         req.seq,
		ContentType: blob.ContentType,
		Size:        handle.Size,
		RenderedAt:  time.Now(),
		handle:      handle,
	}
	if s.result != nil {
		s.release(s.result.handle)
	}
	s.result = result
	if latest {
		s.state = models.RenderStateReady
		s.lastErr = ""
	}
	s.outcomes.WithLabelValues("applied").Inc()
	s.log.Debugw("render applied", "seq", req.seq, "latest", latest, "size", handle.Size)

	r := *result
	r.handle = nil
	return &r, nil
}

func (s *Session) release(h *preview.Handle) {
	if err := h.Release(); err != nil {
		s.log.Warnw("release render artifact failed", "error", err)
	}
}
