package glidein

import (
	"context"
	"fmt"

	"github.com/bbockelm/cedar/client"
	"github.com/bbockelm/cedar/commands"
	"github.com/bbockelm/cedar/security"
)

// PingResult contains the result of a ping operation
type PingResult struct {
	// AuthMethod is the authentication method that was negotiated
	AuthMethod string
	// User is the authenticated username
	User string
	// SessionID is the session identifier
	SessionID string
	// ValidCommands is a string describing which commands are authorized
	ValidCommands string
	// Encryption indicates whether encryption was negotiated
	Encryption bool
	// Authentication indicates whether authentication was performed
	Authentication bool
}

// String summarizes the negotiated session for log output
func (r *PingResult) String() string {
	return fmt.Sprintf("user=%s auth=%s encryption=%t", r.User, r.AuthMethod, r.Encryption)
}

// Ping performs a DC_AUTHENTICATE handshake against the collector, like
// condor_ping. The submit web server uses it as a startup health check.
func (c *Collector) Ping(ctx context.Context) (result *PingResult, err error) {
	htcondorClient, err := client.ConnectToAddress(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collector: %w", err)
	}
	defer func() {
		if cerr := htcondorClient.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close connection: %w", cerr)
		}
	}()

	secConfig := GetSecurityConfig(c.cfg, int(commands.DC_AUTHENTICATE), "CLIENT")
	auth := security.NewAuthenticator(secConfig, htcondorClient.GetStream())
	negotiation, err := auth.ClientHandshake(ctx)
	if err != nil {
		return nil, fmt.Errorf("ping handshake failed: %w", err)
	}

	return &PingResult{
		AuthMethod:     string(negotiation.NegotiatedAuth),
		User:           negotiation.User,
		SessionID:      negotiation.SessionId,
		ValidCommands:  negotiation.ValidCommands,
		Encryption:     negotiation.Encryption,
		Authentication: negotiation.Authentication,
	}, nil
}
