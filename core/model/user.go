package model

// UserClass is the name of the built-in user class.
const UserClass = "user"

// UserDefinition returns the definition of the built-in user class.
// The password key holds the bcrypt hash, never the plain password;
// the controllers strip it from every response.
func UserDefinition() Definition {
	return Definition{
		Name:        UserClass,
		Fields:      []string{"username", "email", "password"},
		Description: "built-in user class",
	}
}
