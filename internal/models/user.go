package models

import "time"

// User is a registered account together with its activity history.
type User struct {
	ID              string           `json:"_id"`
	Name            string           `json:"name"`
	Username        string           `json:"username"`
	Password        string           `json:"-"` // bcrypt hash, never serialize
	Mobile          string           `json:"mobile"`
	FoodLogs        []FoodLog        `json:"food_logs"`
	TravelLogs      []TravelLog      `json:"travel_logs"`
	ElectricityLogs []ElectricityLog `json:"electricity_logs"`
	LifestyleLogs   []LifestyleLog   `json:"lifestyle_logs"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NewUser returns a user with empty, non-nil log arrays.
func NewUser(name, username, passwordHash, mobile string) *User {
	return &User{
		Name:            name,
		Username:        username,
		Password:        passwordHash,
		Mobile:          mobile,
		FoodLogs:        []FoodLog{},
		TravelLogs:      []TravelLog{},
		ElectricityLogs: []ElectricityLog{},
		LifestyleLogs:   []LifestyleLog{},
		CreatedAt:       time.Now().UTC(),
	}
}

// Append adds entry to the array matching its kind.
func (u *User) Append(entry Entry) {
	switch e := entry.(type) {
	case FoodLog:
		u.FoodLogs = append(u.FoodLogs, e)
	case TravelLog:
		u.TravelLogs = append(u.TravelLogs, e)
	case ElectricityLog:
		u.ElectricityLogs = append(u.ElectricityLogs, e)
	case LifestyleLog:
		u.LifestyleLogs = append(u.LifestyleLogs, e)
	}
}

// Normalize replaces nil log arrays with empty ones so they encode as [].
func (u *User) Normalize() {
	if u.FoodLogs == nil {
		u.FoodLogs = []FoodLog{}
	}
	if u.TravelLogs == nil {
		u.TravelLogs = []TravelLog{}
	}
	if u.ElectricityLogs == nil {
		u.ElectricityLogs = []ElectricityLog{}
	}
	if u.LifestyleLogs == nil {
		u.LifestyleLogs = []LifestyleLog{}
	}
}

// RegisterRequest is the JSON body for POST /api/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Mobile   string `json:"mobile"`
}

// LoginRequest is the JSON body for POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MessageResponse is the acknowledgement body returned by mutating endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}
