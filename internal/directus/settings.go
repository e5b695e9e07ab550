package directus

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// supportedSchemes lists the DSN schemes accepted by ParseDSN.
var supportedSchemes = map[string]bool{"http": true, "https": true}

// Credentials authenticate a Directus user.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Settings hold the connection parameters parsed from a DSN.
type Settings struct {
	// URI is the server base, scheme and host (with port, if any).
	URI string
	// Project is the Directus project identifier, also used as token cache key.
	Project     string
	Credentials Credentials
}

// ParseDSN parses a connection string of the form
//
//	https://user@example.com:secret@directus.example.com/project
func ParseDSN(dsn string) (*Settings, error) {
	u, err := url.Parse(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable directus dsn: %w", ErrInvalidDSN, err)
	}

	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme == "" {
		return nil, fmt.Errorf("%w: directus dsn scheme is required", ErrInvalidDSN)
	}
	if !supportedSchemes[scheme] {
		return nil, fmt.Errorf("%w: unsupported directus dsn scheme: %s", ErrInvalidDSN, scheme)
	}

	if strings.TrimSpace(u.Hostname()) == "" {
		return nil, fmt.Errorf("%w: directus dsn host is required", ErrInvalidDSN)
	}

	project := strings.TrimSpace(strings.Trim(u.Path, "/"))
	if project == "" {
		return nil, fmt.Errorf("%w: directus dsn project is required", ErrInvalidDSN)
	}

	var email, password string
	if u.User != nil {
		email = strings.TrimSpace(u.User.Username())
		password, _ = u.User.Password()
		password = strings.TrimSpace(password)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: directus dsn email address is required", ErrInvalidDSN)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: directus dsn %w", ErrInvalidDSN, ErrMissingPassword)
	}

	credentials := Credentials{Email: email, Password: password}
	if err := validator.New().Struct(credentials); err != nil {
		return nil, fmt.Errorf("%w: invalid or unsupported directus dsn email address: %s", ErrInvalidDSN, email)
	}

	return &Settings{
		URI:         scheme + "://" + u.Host,
		Project:     project,
		Credentials: credentials,
	}, nil
}

// String omits the credentials.
func (s *Settings) String() string {
	return fmt.Sprintf("directus(uri=%s, project=%s)", s.URI, s.Project)
}
