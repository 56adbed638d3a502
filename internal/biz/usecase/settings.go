package usecase

import "sync"

// Settings holds runtime preferences changed by admin commands
type Settings struct {
	mu                sync.RWMutex
	model             string
	voice             string
	style             string
	showRevisedPrompt bool
}

// NewSettings creates settings with initial values
func NewSettings(model, voice, style string) *Settings {
	return &Settings{model: model, voice: voice, style: style}
}

func (s *Settings) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Settings) SetModel(model string) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
}

func (s *Settings) Voice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voice
}

func (s *Settings) SetVoice(voice string) {
	s.mu.Lock()
	s.voice = voice
	s.mu.Unlock()
}

func (s *Settings) Style() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

func (s *Settings) SetStyle(style string) {
	s.mu.Lock()
	s.style = style
	s.mu.Unlock()
}

func (s *Settings) ShowRevisedPrompt() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showRevisedPrompt
}

func (s *Settings) SetShowRevisedPrompt(show bool) {
	s.mu.Lock()
	s.showRevisedPrompt = show
	s.mu.Unlock()
}
