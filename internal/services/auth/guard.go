package auth

import (
	"github.com/findosh/backoffice/internal/apperr"
	"github.com/findosh/backoffice/internal/models"
)

// IsAuthenticated reports whether sess carries a logged-in admin.
// Impersonation does not change the answer; the admin stays authenticated
// underneath the user identity.
func IsAuthenticated(sess *models.Session) bool {
	if sess == nil || !sess.AdminLoggedIn || sess.AdminID == nil {
		return false
	}
	return !sess.IsExpired()
}

// EffectivePrincipal returns the identity the platform attributes actions
// to: the impersonated user while impersonating, otherwise the admin.
func EffectivePrincipal(sess *models.Session) models.PrincipalRef {
	if sess == nil {
		return models.PrincipalRef{}
	}
	if sess.Impersonation != nil {
		return models.PrincipalRef{Kind: models.PrincipalUser, ID: sess.Impersonation.ImpersonatedUserID}
	}
	if sess.AdminLoggedIn && sess.AdminID != nil {
		return models.PrincipalRef{Kind: models.PrincipalAdmin, ID: *sess.AdminID}
	}
	return models.PrincipalRef{}
}

// Require returns the authenticated admin id or apperr.ErrUnauthorized.
func Require(sess *models.Session) (int64, error) {
	if !IsAuthenticated(sess) {
		return 0, apperr.ErrUnauthorized
	}
	return *sess.AdminID, nil
}
