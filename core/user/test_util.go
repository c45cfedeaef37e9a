package user

import (
	"github.com/kashur/backend/core"
)

// MakeResetToken returns the password reset token the service would email to usr.
// Used by tests that drive the password-reset-confirm flow.
func MakeResetToken(conf *core.Config, usr User) (string, error) {
	return newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta).makeToken(usr)
}
