package identity

import "time"

// User is a registered wallet owner. The raw phone number is never stored.
type User struct {
	ID            string
	PhoneHash     string
	PINHash       []byte
	WalletAddress string
	CreatedAt     time.Time
}

// Registration carries the inputs needed to create a user.
type Registration struct {
	Phone         string
	PIN           string
	WalletAddress string
}
