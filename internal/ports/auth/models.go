package auth

// Claims representa la identidad ya autenticada extraída del token.
type Claims struct {
	Principal string
	Issuer    string
}
