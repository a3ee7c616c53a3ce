package models

// User is the minimal profile projection read from the user directory.
type User struct {
	ID     string `bson:"_id" json:"_id"`
	Name   string `bson:"name" json:"name"`
	Email  string `bson:"email" json:"email"`
	Avatar string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}
