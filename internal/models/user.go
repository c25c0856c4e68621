package models

// User identifies the local session. Login is simulated, so no credentials
// are stored beyond the email.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is the user's free-form settings record, overwritten wholesale on
// every save.
type Profile struct {
	Name                string `json:"name"`
	Avatar              string `json:"avatar"`
	DefaultModel        string `json:"defaultModel"`
	Vendor              string `json:"vendor"`
	HuggingFaceToken    string `json:"huggingFaceToken"`
	HuggingFaceUsername string `json:"huggingFaceUsername"`
}

// DefaultProfile carries the defaults applied when no profile has
// been saved yet.
func DefaultProfile() Profile {
	return Profile{
		DefaultModel: "llama-3.1-8b",
		Vendor:       "unsloth",
	}
}
