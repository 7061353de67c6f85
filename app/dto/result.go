package dto

import (
	"github.com/playshelf/playshelf-api/app/entity"
	"github.com/playshelf/playshelf-api/app/token"
)

// AuthResult is what every successful authentication path produces: the
// resolved user plus a freshly minted token pair. The caller decides how to
// deliver them (cookie + body, cookie + redirect parameter).
type AuthResult struct {
	User   *entity.User
	Tokens *token.Pair
}
