package cart

import "errors"

var ErrNoIdentity = errors.New("cart identity has neither user nor session")

// Identity names whose cart is being addressed. An authenticated user wins
// over the anonymous session it signed in from.
type Identity struct {
	UserID    string
	SessionID string
}

func UserIdentity(userID string) Identity {
	return Identity{UserID: userID}
}

func GuestIdentity(sessionID string) Identity {
	return Identity{SessionID: sessionID}
}

func (i Identity) IsGuest() bool {
	return i.UserID == ""
}

// Key is the storage key: "user:<id>" or "guest:<session>".
func (i Identity) Key() (string, error) {
	switch {
	case i.UserID != "":
		return "user:" + i.UserID, nil
	case i.SessionID != "":
		return "guest:" + i.SessionID, nil
	default:
		return "", ErrNoIdentity
	}
}
