package domain

import (
	"context"
	"image"
	"time"
)

// PreferenceStore is the persisted key/value configuration surface.
// Values are read on every decision; implementations must not cache.
// Implementation: SQLCipher encrypted SQLite database.
type PreferenceStore interface {
	// GetString returns the raw value for key and whether it was set.
	GetString(key string) (string, bool, error)

	// PutString stores value under key.
	PutString(key, value string) error

	// GetStringSet returns the record set stored under key, nil if absent.
	GetStringSet(key string) ([]string, error)

	// PutStringSet replaces the record set stored under key.
	PutStringSet(key string, values []string) error

	// DeleteStringSet removes the record set stored under key.
	DeleteStringSet(key string) error

	// ListStringSets returns the keys that hold a record set.
	ListStringSets() ([]string, error)
}

// ProfileStore provides access to per-app LED profiles.
type ProfileStore interface {
	// Get resolves the profile for appID, falling back to the default.
	Get(appID string) (LedProfile, error)

	// Save validates and persists a profile, then broadcasts the change.
	Save(ctx context.Context, p LedProfile) error

	// Delete removes an app's record so it falls back to the default.
	Delete(ctx context.Context, appID string) error

	// List returns app IDs that have a persisted record.
	List() ([]string, error)
}

// Broadcaster notifies other processes that cached policy is stale.
type Broadcaster interface {
	SettingsChanged(ctx context.Context, key string) error
}

// DecisionEngine produces feedback decisions for notifications.
type DecisionEngine interface {
	// Decide evaluates n at the current time.
	Decide(ctx context.Context, n Notification, userPresent bool) Decision

	// DecideAt evaluates n as if the current time were now.
	DecideAt(ctx context.Context, n Notification, userPresent bool, now time.Time) Decision
}

// LightDriver writes a value to a hardware light channel.
type LightDriver interface {
	SetLight(ch LightChannel, color uint32) error
}

// WakeLock keeps the device from suspending while held.
type WakeLock interface {
	// Acquire holds the lock for at most timeout.
	Acquire(timeout time.Duration)

	// Release drops the lock if held. Safe to call repeatedly.
	Release()

	// IsHeld reports whether the lock is currently held.
	IsHeld() bool
}

// PowerManager hands out wake locks and reports screen state.
type PowerManager interface {
	NewWakeLock(tag string) WakeLock
	IsScreenOn() bool
}

// FrameCapturer captures the current screen contents.
type FrameCapturer interface {
	// Capture returns a frame limited to layers up to maxLayer.
	Capture(ctx context.Context, maxLayer int) (image.Image, error)
}

// CompanionChannel is an established duplex channel to the companion process.
type CompanionChannel interface {
	// Send delivers one message.
	Send(ctx context.Context, msg CompanionMessage) error

	// Replies yields messages from the companion in order.
	// The channel is closed when the companion disconnects.
	Replies() <-chan CompanionMessage

	// Close releases the connection.
	Close() error
}

// CompanionConnector binds to the companion process by component identity.
type CompanionConnector interface {
	Bind(ctx context.Context, component string) (CompanionChannel, error)
}

// Cancelable is a scheduled task that can be withdrawn.
type Cancelable interface {
	Cancel()
}

// Scheduler runs delayed tasks on a single dedicated execution context.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Cancelable
}

// EventSource delivers host events to a handler and returns its replies.
type EventSource interface {
	Listen(ctx context.Context, handle func(context.Context, Event) Reply) error
}

// ProcessInfo describes a live process.
type ProcessInfo struct {
	PID       int
	Name      string
	Cmdline   string
	StartedAt time.Time
}

// ProcessInspector answers liveness questions about daemon processes.
type ProcessInspector interface {
	// Alive reports whether pid names a live process.
	Alive(pid int) bool

	// Describe returns details for a live pid.
	Describe(pid int) (ProcessInfo, error)

	// FindByExecutable lists other processes whose executable name is name.
	FindByExecutable(name string) ([]ProcessInfo, error)
}

// DaemonRegistry records the running daemon for the status command.
type DaemonRegistry interface {
	// Register saves the daemon's PID and name.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat(role DaemonRole) error

	// GetAll returns the registered daemon, nil if none.
	GetAll() (*RegistryEntry, error)

	// Clear removes daemon state (for clean restart).
	Clear() error
}

// ServiceManager installs the daemon with the init system so it starts at
// login (user mode) or boot (system mode).
type ServiceManager interface {
	Install(execPath, configPath string) error
	Uninstall() error
	IsInstalled() bool
	NeedsUpdate(execPath, configPath string) bool
	Update(execPath, configPath string) error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
