package models

// User is an account row. The password hash never leaves the server.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
}

// Session binds an opaque token to a user. Sessions are never mutated and
// currently never expire.
type Session struct {
	Token  string `db:"token" json:"-"`
	UserID int64  `db:"user_id" json:"user_id"`
}
