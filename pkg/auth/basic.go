package authentication

import (
	"encoding/base64"
	"strings"
)

type IBasicAuthService interface {
	Validate(username, password string) bool
	DecodeFromHeader(auth string) (string, string)
}

type BasicAuthConfig struct {
	Username string

	Password string
}

type basicAuth struct {
	username string
	password string
}

func NewBasicAuthService(config *BasicAuthConfig) IBasicAuthService {
	return &basicAuth{
		username: config.Username,
		password: config.Password,
	}
}

func (b *basicAuth) Validate(username, password string) bool {
	return b.username == username && b.password == password
}

func (b *basicAuth) DecodeFromHeader(auth string) (string, string) {
	encoded := strings.TrimPrefix(auth, "Basic ")

	// Decode the Base64 string
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ""
	}

	// Split the decoded string into username and password
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", ""
	}

	return parts[0], parts[1]
}
