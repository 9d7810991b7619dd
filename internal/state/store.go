package state

import (
	"sync"

	"github.com/danhigham/nickclock/internal/domain"
)

const maxActivity = 200

type Store struct {
	mu          sync.RWMutex
	profile     *domain.Profile
	authState   domain.AuthState
	autoUpdate  bool
	timezone    int
	lastName    string
	activity    []domain.ActivityEntry
	status      string
	statusError bool
	drawFunc    func()
}

func New(drawFunc func()) *Store {
	return &Store{drawFunc: drawFunc}
}

func (s *Store) SetDrawFunc(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawFunc = f
}

func (s *Store) draw() {
	if s.drawFunc != nil {
		s.drawFunc()
	}
}

// OnActivity appends to the activity log, keeping the newest entries.
func (s *Store) OnActivity(e domain.ActivityEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = append(s.activity, e)
	if len(s.activity) > maxActivity {
		s.activity = s.activity[len(s.activity)-maxActivity:]
	}
	if e.Kind == domain.ActivityPublished || e.Kind == domain.ActivityRestored {
		s.lastName = e.Name
	}
	s.draw()
}

func (s *Store) GetActivity() []domain.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActivityEntry, len(s.activity))
	copy(out, s.activity)
	return out
}

func (s *Store) LastPublished() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastName
}

func (s *Store) SetProfile(p *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.profile = nil
	} else {
		cp := *p
		s.profile = &cp
	}
	s.draw()
}

// GetProfile returns the cached profile, or nil when logged out.
func (s *Store) GetProfile() *domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	cp := *s.profile
	return &cp
}

func (s *Store) SetAuthState(as domain.AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authState = as
	s.draw()
}

func (s *Store) GetAuthState() domain.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authState
}

func (s *Store) SetAutoUpdate(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoUpdate = on
	s.draw()
}

func (s *Store) AutoUpdate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoUpdate
}

func (s *Store) SetTimezone(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timezone = offset
	s.draw()
}

func (s *Store) Timezone() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timezone
}

// SetStatus sets the one-line status shown to the user.
func (s *Store) SetStatus(msg string, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = msg
	s.statusError = isError
	s.draw()
}

func (s *Store) Status() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.statusError
}

// Reset forgets everything tied to the logged-in account.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	s.authState = domain.AuthStateIdle
	s.autoUpdate = false
	s.lastName = ""
	s.activity = nil
	s.draw()
}
