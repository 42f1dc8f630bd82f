package flow

import (
	"errors"
	"strings"

	"github.com/fullstackauth/fsauth/internal/cli/client"
)

// Failure is the user-facing classification of a failed operation
type Failure int

const (
	// None means there was no error
	None Failure = iota
	Network
	NotVerified
	AlreadyVerified
	Expired
	InvalidToken
	Mismatch
	Unknown
)

func (f Failure) String() string {
	switch f {
	case None:
		return "none"
	case Network:
		return "network"
	case NotVerified:
		return "not-verified"
	case AlreadyVerified:
		return "already-verified"
	case Expired:
		return "expired"
	case InvalidToken:
		return "invalid-token"
	case Mismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Classifier maps an error to a Failure. Replace it when the backend offers
// stable error codes instead of free-text messages.
var Classifier = classifyMessage

// Classify returns the Failure for err using the current Classifier
func Classify(err error) Failure {
	if err == nil {
		return None
	}
	return Classifier(err)
}

// messageRules are checked in order against the lower-cased message.
// "not verified" precedes "already verified" so that "already registered but
// not verified" is NotVerified.
var messageRules = []struct {
	substr  string
	failure Failure
}{
	{"not verified", NotVerified},
	{"already verified", AlreadyVerified},
	{"expired", Expired},
	{"invalid", InvalidToken},
}

func classifyMessage(err error) Failure {
	if errors.Is(err, ErrMismatch) {
		return Mismatch
	}

	apiErr, ok := client.AsError(err)
	if !ok {
		return Unknown
	}
	if apiErr.Kind == client.KindNetwork {
		return Network
	}

	message := strings.ToLower(apiErr.Message)
	for _, rule := range messageRules {
		if strings.Contains(message, rule.substr) {
			return rule.failure
		}
	}
	return Unknown
}
