// Package admin holds the per-screen admin-mode flag and the two ways of
// setting it: the password login and the hidden tap sequence.
package admin

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTapThreshold = 5
	DefaultTapWindow    = 3 * time.Second
)

// Options configures a Gate. Exactly one of Password and PasswordHash is
// normally set; with neither, Login always fails.
type Options struct {
	Password     string
	PasswordHash string // bcrypt
	TapThreshold int
	TapWindow    time.Duration
}

// Gate is the admin flag of a single client. It is never persisted.
type Gate struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	active   bool
	taps     int
	firstTap time.Time
}

func New(opts Options) *Gate {
	if opts.TapThreshold <= 0 {
		opts.TapThreshold = DefaultTapThreshold
	}
	if opts.TapWindow <= 0 {
		opts.TapWindow = DefaultTapWindow
	}
	return &Gate{opts: opts, now: time.Now}
}

// Login enables admin mode when password matches the configured secret.
func (g *Gate) Login(password string) bool {
	if !g.matches(password) {
		return false
	}
	g.mu.Lock()
	g.active = true
	g.mu.Unlock()
	return true
}

func (g *Gate) matches(password string) bool {
	if password == "" {
		return false
	}
	if g.opts.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(g.opts.PasswordHash), []byte(password)) == nil
	}
	if g.opts.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(g.opts.Password)) == 1
}

// Tap counts one tap and reports whether it unlocked admin mode. Taps are
// counted from the first tap of a window; a tap after the window has passed
// starts a new count.
func (g *Gate) Tap() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.taps == 0 || now.Sub(g.firstTap) > g.opts.TapWindow {
		g.taps = 0
		g.firstTap = now
	}
	g.taps++

	if g.taps >= g.opts.TapThreshold {
		g.taps = 0
		g.active = true
		return true
	}
	return false
}

// Active reports whether admin mode is on.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// TapCount is the number of taps in the current window.
func (g *Gate) TapCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.taps
}

// Lock turns admin mode off.
func (g *Gate) Lock() {
	g.mu.Lock()
	g.active = false
	g.taps = 0
	g.mu.Unlock()
}

// Affordance decides whether the login control is shown at all.
type Affordance struct {
	DevBuild  bool
	SecretKey string
}

// ShowLogin reports whether the login affordance is visible: always in a
// development build, otherwise only when launchKey matches the secret.
func ShowLogin(a Affordance, launchKey string) bool {
	if a.DevBuild {
		return true
	}
	key := strings.TrimSpace(launchKey)
	if a.SecretKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.SecretKey)) == 1
}

// HashPassword returns a bcrypt hash suitable for Options.PasswordHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
