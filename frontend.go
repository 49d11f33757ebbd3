package glidein

import (
	"fmt"
	"io"
	"strings"

	"github.com/bbockelm/golang-glidein/config"
)

// FrontendDescript is the factory's list of known frontends, written in the
// config language:
//
//	vofrontend_service.IDENTITY = vofrontend_service@cm.example.com
//	vofrontend_service.USERMAP = frontend:fecmsglobal, pilot:fepilot
type FrontendDescript struct {
	cfg *config.Config
}

// LoadFrontendDescript parses a frontend descriptor file.
func LoadFrontendDescript(path string) (*FrontendDescript, error) {
	cfg, err := config.NewFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load frontend descriptor: %w", err)
	}
	return &FrontendDescript{cfg: cfg}, nil
}

// NewFrontendDescript parses a frontend descriptor from r.
func NewFrontendDescript(r io.Reader) (*FrontendDescript, error) {
	cfg, err := config.NewFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frontend descriptor: %w", err)
	}
	return &FrontendDescript{cfg: cfg}, nil
}

// Identity returns the identity the frontend must authenticate as.
func (d *FrontendDescript) Identity(secName string) (string, error) {
	identity, ok := d.cfg.Get(secName + ".IDENTITY")
	if !ok || identity == "" {
		return "", &ValidationError{Reason: fmt.Sprintf("unknown frontend %q", secName)}
	}
	return identity, nil
}

// Username maps a frontend security class to the local user it runs as.
func (d *FrontendDescript) Username(secName, securityClass string) (string, error) {
	usermap, _ := d.cfg.Get(secName + ".USERMAP")
	for _, entry := range strings.Split(usermap, ",") {
		class, user, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if ok && strings.TrimSpace(class) == securityClass && strings.TrimSpace(user) != "" {
			return strings.TrimSpace(user), nil
		}
	}
	return "", &ValidationError{Reason: fmt.Sprintf("frontend %s has no user for security class %q", secName, securityClass)}
}
