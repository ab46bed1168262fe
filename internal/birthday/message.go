package birthday

import (
	"fmt"

	"github.com/wishday/wishday/internal/mailer"
	"github.com/wishday/wishday/internal/model"
)

// Subject is the greeting subject line.
const Subject = "Happy Birthday "

// DefaultSignature closes every greeting unless configured otherwise.
const DefaultSignature = "David"

const greetingBody = "Dear %s,\n\n" +
	"Happy Birthday. I just wanted to send a quick reminder to keep your head up and stay focused, " +
	"no matter what challenges come your way. Better days are ahead, and I truly believe that amazing " +
	"things are in store for you. Keep pushing forward and do not lose sight of your goals. " +
	"You have got this!\n\n" +
	"Best regards,\n%s"

// Greeting renders the birthday message for user.
func Greeting(user *model.User, signature string) mailer.Message {
	if signature == "" {
		signature = DefaultSignature
	}
	return mailer.Message{
		To:      user.Email,
		Subject: Subject,
		Text:    fmt.Sprintf(greetingBody, user.Username, signature),
	}
}
