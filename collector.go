package glidein

import (
	"context"
	"fmt"
	"strings"

	"github.com/PelicanPlatform/classad/classad"
	"github.com/bbockelm/cedar/client"
	"github.com/bbockelm/cedar/commands"
	"github.com/bbockelm/cedar/message"
	"github.com/bbockelm/cedar/security"
	"github.com/bbockelm/golang-glidein/config"
)

// queryAnyAds is the collector command for QUERY_ANY_ADS. Frontend
// glideclient ads are generic ads and are only returned by this query.
const queryAnyAds = commands.CommandType(48)

// AdQuerier runs constraint queries against a collector.
type AdQuerier interface {
	QueryAdsWithProjection(ctx context.Context, adType string, constraint string, projection []string) ([]*classad.ClassAd, error)
}

// Collector represents an HTCondor collector daemon
type Collector struct {
	address string
	cfg     *config.Config
}

// NewCollector creates a new Collector instance. cfg supplies the SEC_*
// settings used for the handshake and may be nil.
func NewCollector(address string, cfg *config.Config) *Collector {
	return &Collector{
		address: address,
		cfg:     cfg,
	}
}

// Address returns the collector's sinful string or host:port
func (c *Collector) Address() string {
	return c.address
}

// QueryAds queries the collector for advertisements
func (c *Collector) QueryAds(ctx context.Context, adType string, constraint string) ([]*classad.ClassAd, error) {
	return c.QueryAdsWithProjection(ctx, adType, constraint, nil)
}

// QueryAdsWithProjection queries the collector for advertisements with optional projection
// adType specifies the type of ads to query (e.g., "Any", "ScheddAd")
// constraint is a ClassAd constraint expression string (pass empty string for no constraint)
// projection is an optional list of attribute names to return (pass nil for all attributes)
func (c *Collector) QueryAdsWithProjection(ctx context.Context, adType string, constraint string, projection []string) (ads []*classad.ClassAd, err error) {
	cmd, err := getCommandForAdType(adType)
	if err != nil {
		return nil, err
	}

	// Parse the constraint before touching the network
	var constraintExpr *classad.Expr
	if constraint != "" {
		constraintExpr, err = classad.ParseExpr(constraint)
		if err != nil {
			return nil, fmt.Errorf("failed to parse constraint expression: %w", err)
		}
	}

	htcondorClient, err := client.ConnectToAddress(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collector: %w", err)
	}
	defer func() {
		if cerr := htcondorClient.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close connection: %w", cerr)
		}
	}()

	cedarStream := htcondorClient.GetStream()

	secConfig := GetSecurityConfig(c.cfg, int(cmd), "CLIENT")
	auth := security.NewAuthenticator(secConfig, cedarStream)
	if _, err = auth.ClientHandshake(ctx); err != nil {
		return nil, fmt.Errorf("security handshake failed: %w", err)
	}

	queryAd := createQueryAd(adType, constraintExpr, projection)

	queryMsg := message.NewMessageForStream(cedarStream)
	if err = queryMsg.PutClassAd(ctx, queryAd); err != nil {
		return nil, fmt.Errorf("failed to add query ClassAd to message: %w", err)
	}
	if err = queryMsg.FlushFrame(ctx, true); err != nil {
		return nil, fmt.Errorf("failed to send query message: %w", err)
	}

	responseMsg := message.NewMessageFromStream(cedarStream)
	for {
		select {
		case <-ctx.Done():
			return ads, ctx.Err()
		default:
		}

		// Read "more" flag
		more, rerr := responseMsg.GetInt32(ctx)
		if rerr != nil {
			return ads, fmt.Errorf("failed to read 'more' flag: %w", rerr)
		}
		if more == 0 {
			break
		}

		ad, rerr := responseMsg.GetClassAd(ctx)
		if rerr != nil {
			return ads, fmt.Errorf("failed to read ClassAd: %w", rerr)
		}
		ads = append(ads, ad)
	}

	return ads, nil
}

// getCommandForAdType maps ad type to HTCondor command
func getCommandForAdType(adType string) (commands.CommandType, error) {
	switch adType {
	case "Any", "Generic", "glideclient":
		return queryAnyAds, nil
	case "ScheddAd", "Schedd":
		return commands.QUERY_SCHEDD_ADS, nil
	case "CollectorAd", "Collector":
		return commands.QUERY_COLLECTOR_ADS, nil
	default:
		return 0, fmt.Errorf("unknown ad type: %s", adType)
	}
}

// createQueryAd creates a ClassAd for querying ads
func createQueryAd(adType string, constraint *classad.Expr, projection []string) *classad.ClassAd {
	ad := classad.New()

	_ = ad.Set("MyType", "Query")
	_ = ad.Set("TargetType", getTargetTypeForAdType(adType))

	if constraint == nil {
		_ = ad.Set("Requirements", true)
	} else {
		_ = ad.Set("Requirements", constraint)
	}

	if len(projection) > 0 {
		_ = ad.Set("ProjectionAttributes", strings.Join(projection, ","))
	}

	return ad
}

// getTargetTypeForAdType maps ad type to TargetType
func getTargetTypeForAdType(adType string) string {
	switch adType {
	case "Any", "Generic", "glideclient":
		return "Any"
	case "ScheddAd", "Schedd":
		return "Scheduler"
	case "CollectorAd", "Collector":
		return "Collector"
	default:
		return adType
	}
}
