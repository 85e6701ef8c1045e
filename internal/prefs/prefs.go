// Package prefs stores a participant's display preferences on local disk.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"crossclues/internal/board"
)

// Preferences are read when a session starts and written on every toggle.
// Only BoardSize feeds back into the game, as the default board size of the
// next round.
type Preferences struct {
	DarkMode   bool      `json:"dark_mode"`
	ColorBlind bool      `json:"color_blind"`
	Fullscreen bool      `json:"fullscreen"`
	BoardSize  int       `json:"board_size,omitempty"`
	PlayerID   string    `json:"player_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Toggle names accepted by Store.Toggle.
const (
	ToggleDarkMode   = "dark_mode"
	ToggleColorBlind = "color_blind"
	ToggleFullscreen = "fullscreen"
)

var ErrUnknownToggle = errors.New("unknown preference")

// Store keeps one JSON file per profile under Dir.
type Store struct {
	Dir string
	// MaxAge drops profiles untouched for longer than this. Zero keeps them forever.
	MaxAge time.Duration
}

// DefaultDir is $XDG_CONFIG_HOME/crossclues or the platform equivalent.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".crossclues")
	}
	return filepath.Join(base, "crossclues")
}

func (s *Store) path(profile string) string {
	return filepath.Join(s.Dir, profile+".json")
}

// Load returns the stored preferences for profile. Missing, expired or
// corrupt files yield zero preferences; the bad file is removed.
func (s *Store) Load(profile string) (Preferences, error) {
	if profile == "" {
		return Preferences{}, errors.New("empty profile name")
	}
	file := s.path(profile)

	info, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return Preferences{}, nil
		}
		return Preferences{}, err
	}
	if s.MaxAge > 0 && time.Since(info.ModTime()) > s.MaxAge {
		log.Info().Str("file", file).Dur("age", time.Since(info.ModTime())).Msg("preferences expired, removing")
		_ = os.Remove(file)
		return Preferences{}, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return Preferences{}, err
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("file", file).Msg("preferences corrupted, removing")
		_ = os.Remove(file)
		return Preferences{}, nil
	}
	if p.BoardSize != 0 && !board.ValidSize(p.BoardSize) {
		log.Warn().Int("board_size", p.BoardSize).Str("file", file).Msg("ignoring stored board size")
		p.BoardSize = 0
	}
	return p, nil
}

// Save writes p for profile, creating the directory if needed.
func (s *Store) Save(profile string, p Preferences) error {
	if profile == "" {
		return errors.New("empty profile name")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	p.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	// Write then rename so a crash never leaves a half-written file behind.
	tmp := s.path(profile) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path(profile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write preferences: %w", err)
	}
	log.Debug().Str("profile", profile).Msg("preferences saved")
	return nil
}

// Toggle flips one boolean preference and persists the result.
func (s *Store) Toggle(profile, name string) (Preferences, error) {
	p, err := s.Load(profile)
	if err != nil {
		return p, err
	}
	switch name {
	case ToggleDarkMode:
		p.DarkMode = !p.DarkMode
	case ToggleColorBlind:
		p.ColorBlind = !p.ColorBlind
	case ToggleFullscreen:
		p.Fullscreen = !p.Fullscreen
	default:
		return p, fmt.Errorf("%w %q", ErrUnknownToggle, name)
	}
	return p, s.Save(profile, p)
}

// SetBoardSize records the preferred board size for the next round.
func (s *Store) SetBoardSize(profile string, n int) (Preferences, error) {
	if !board.ValidSize(n) {
		return Preferences{}, fmt.Errorf("board size %d out of range", n)
	}
	p, err := s.Load(profile)
	if err != nil {
		return p, err
	}
	p.BoardSize = n
	return p, s.Save(profile, p)
}
