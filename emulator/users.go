package emulator

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tiffinwaleofficial/student-app-sub003/core"
	"golang.org/x/crypto/bcrypt"
)

// User is an account row in the emulated backend
type User struct {
	ID            string
	Phone         string
	Name          string
	Email         string
	PasswordHash  []byte
	WalletBalance decimal.Decimal
	MealPlan      string
	Verified      bool
}

// Snapshot renders the user in the shape the client persists
func (u *User) Snapshot() core.UserSnapshot {
	return core.UserSnapshot{
		ID:            u.ID,
		Phone:         u.Phone,
		Name:          u.Name,
		Email:         u.Email,
		WalletBalance: u.WalletBalance,
		MealPlan:      u.MealPlan,
		Verified:      u.Verified,
	}
}

// UserStore is the in-memory account table
type UserStore struct {
	mu      sync.RWMutex
	byPhone map[string]*User
	byID    map[string]*User
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{
		byPhone: make(map[string]*User),
		byID:    make(map[string]*User),
	}
}

// Seed loads a handful of development accounts. Password hashing uses the
// minimum bcrypt cost; this data exists only to drive the emulator.
func (s *UserStore) Seed() {
	seedUsers := []struct {
		phone    string
		name     string
		email    string
		password string
		balance  int64
		plan     string
	}{
		{"+919876543210", "Aarav Sharma", "aarav@example.com", "tiffin123", 450, "thali-monthly"},
		{"+919812345678", "Priya Patel", "priya@example.com", "dalchawal", 120, "thali-weekly"},
		{"+917005001122", "Rohan Gupta", "rohan@example.com", "rajma55", 0, ""},
	}

	for _, u := range seedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			continue
		}
		s.Add(User{
			Phone:         u.phone,
			Name:          u.name,
			Email:         u.email,
			PasswordHash:  hash,
			WalletBalance: decimal.NewFromInt(u.balance),
			MealPlan:      u.plan,
			Verified:      true,
		})
	}
}

// Add stores a user, assigning an id when missing
func (s *UserStore) Add(user User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	stored := user
	s.byPhone[stored.Phone] = &stored
	s.byID[stored.ID] = &stored
	return &stored
}

// FindByPhone returns a copy of the user registered for the phone number
func (s *UserStore) FindByPhone(phone string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byPhone[phone]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// FindByID returns a copy of the user with the given id
func (s *UserStore) FindByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// EnsureByPhone returns the user for the phone number, provisioning a fresh
// verified account on first contact the way the real backend does for a
// confirmed passcode login
func (s *UserStore) EnsureByPhone(phone string) User {
	if u, ok := s.FindByPhone(phone); ok {
		return u
	}

	created := s.Add(User{
		Phone:         phone,
		Name:          "Student " + lastDigits(phone, 4),
		WalletBalance: decimal.Zero,
		Verified:      true,
	})
	return *created
}

// Authenticate checks a phone and password pair
func (s *UserStore) Authenticate(phone, password string) (User, bool) {
	u, ok := s.FindByPhone(phone)
	if !ok || len(u.PasswordHash) == 0 {
		return User{}, false
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return User{}, false
	}
	return u, true
}

func lastDigits(phone string, n int) string {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}
