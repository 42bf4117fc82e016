// Package backend holds the in-memory record of what the agents did during a
// run: the calls started, the bookings the scheduling system confirmed and
// the callbacks logged for staff. It backs the end-of-call dashboard and the
// debug listener's /stats endpoint.
//
// A [Store] is created explicitly and injected into the tools that write to
// it; there is no package-level instance.
package backend

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// recentLimit is how many bookings and callbacks [Store.Stats] reports.
const recentLimit = 3

// Priority is the urgency of a logged callback.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityUrgent Priority = "URGENT"
)

// ErrInvalidPriority is returned for priorities other than NORMAL and URGENT.
var ErrInvalidPriority = errors.New("backend: priority must be NORMAL or URGENT")

// ParsePriority validates p. The empty string means [PriorityNormal].
func ParsePriority(p string) (Priority, error) {
	switch Priority(p) {
	case "", PriorityNormal:
		return PriorityNormal, nil
	case PriorityUrgent:
		return PriorityUrgent, nil
	default:
		return "", ErrInvalidPriority
	}
}

// ServiceType classifies a booking for display.
type ServiceType string

const (
	ServiceWheelSwap  ServiceType = "WHEEL_SWAP"
	ServiceTireChange ServiceType = "TIRE_CHANGE"
	ServiceMounting   ServiceType = "MOUNTING"
)

// Minutes returns the nominal duration of the service.
func (s ServiceType) Minutes() int {
	switch s {
	case ServiceWheelSwap:
		return 25
	case ServiceMounting:
		return 75
	default:
		return 40
	}
}

// Booking is an appointment the scheduling system confirmed.
type Booking struct {
	ID           string      `json:"id"`
	CustomerName string      `json:"customer_name"`
	PhoneNumber  string      `json:"phone_number"`
	Email        string      `json:"email,omitempty"`
	Request      string      `json:"request"`
	Date         string      `json:"date"`
	Time         string      `json:"time"`
	Status       string      `json:"status"`
	ServiceType  ServiceType `json:"service_type"`
	BayID        string      `json:"bay_id"`
	Duration     int         `json:"duration_minutes"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Callback is a request for staff to call a customer back.
type Callback struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Reason    string    `json:"reason"`
	Priority  Priority  `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalCalls      int        `json:"total_calls"`
	BookingsCount   int        `json:"bookings_count"`
	CallbacksCount  int        `json:"callbacks_count"`
	RecentBookings  []Booking  `json:"recent_bookings"`
	RecentCallbacks []Callback `json:"recent_callbacks"`
}

// Store is a thread-safe, in-memory record of bookings and callbacks.
type Store struct {
	now func() time.Time

	mu         sync.RWMutex
	totalCalls int
	bookings   []Booking
	callbacks  []Callback
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LogCallStart counts a newly opened session and returns the new total.
func (s *Store) LogCallStart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCalls++
	return s.totalCalls
}

// AddBooking stores b, filling in ID, CreatedAt and display defaults when
// unset, and returns the stored value.
func (s *Store) AddBooking(b Booking) Booking {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	if b.ServiceType == "" {
		b.ServiceType = ServiceTireChange
	}
	if b.BayID == "" {
		b.BayID = "A"
	}
	if b.Duration == 0 {
		b.Duration = b.ServiceType.Minutes()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, b)
	return b
}

// LogCallback stores c with a fresh ID and timestamp and returns it. The
// priority must already be valid; an empty one is stored as NORMAL.
func (s *Store) LogCallback(c Callback) (Callback, error) {
	p, err := ParsePriority(string(c.Priority))
	if err != nil {
		return Callback{}, err
	}
	c.Priority = p
	c.ID = uuid.NewString()
	c.Timestamp = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, c)
	return c, nil
}

// Bookings returns a copy of all bookings in insertion order.
func (s *Store) Bookings() []Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bookings)
}

// Callbacks returns a copy of all callbacks in insertion order.
func (s *Store) Callbacks() []Callback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.callbacks)
}

// Stats returns the dashboard summary with the last three bookings and
// callbacks, oldest first.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalCalls:      s.totalCalls,
		BookingsCount:   len(s.bookings),
		CallbacksCount:  len(s.callbacks),
		RecentBookings:  slices.Clone(tail(s.bookings, recentLimit)),
		RecentCallbacks: slices.Clone(tail(s.callbacks, recentLimit)),
	}
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
