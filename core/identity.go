package core

// Identity is the author recorded on every metadata commit.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (identity Identity) String() string {
	return identity.Name + " <" + identity.Email + ">"
}
