package render

import (
	"sync"

	"github.com/nguyentranbao-ct/catalog-console/internal/models"
	"github.com/nguyentranbao-ct/catalog-console/internal/preview"
)

// Manager keeps one session per product that has an open render view.
type Manager struct {
	renderer Renderer
	previews *preview.Dir

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(renderer Renderer, previews *preview.Dir) *Manager {
	return &Manager{
		renderer: renderer,
		previews: previews,
		sessions: make(map[int64]*Session),
	}
}

// Open returns the session of id, creating it on first use.
func (m *Manager) Open(id int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(id)
}

// SetParameters opens the session of id and starts a render for p in one
// step, so a concurrent Close either sees the new render or runs before the
// session is opened again.
func (m *Manager) SetParameters(id int64, p models.RenderParameters) (*Session, models.RenderParameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.openLocked(id)
	clamped, err := s.SetParameters(p)
	return s, clamped, err
}

func (m *Manager) Get(id int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close closes and forgets the session of id. It reports whether one was
// open.
func (m *Manager) Close(id int64) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) openLocked(id int64) *Session {
	s, ok := m.sessions[id]
	if !ok {
		s = NewSession(id, m.renderer, m.previews)
		m.sessions[id] = s
	}
	return s
}
