package glidein

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bbockelm/golang-glidein/logging"
)

// Resolver turns a frontend identity and a target entry into the
// credentials the factory holds for that frontend.
type Resolver struct {
	// NewQuerier opens a querier for a collector address. Defaults to a
	// cedar Collector without extra security settings.
	NewQuerier func(address string) AdQuerier
	Keys       KeyRegistry
	Frontends  FrontendDescriptor
	Logger     *logging.Logger

	// CredentialRoot holds the per-user proxy directories
	CredentialRoot string
	// InstanceTag is the factory instance directory under each user dir
	InstanceTag    string
}

// Resolve looks up the glideclient ad that identityName published for
// targetName, validates it, and decrypts the submit credentials it names.
// No step is retried.
func (r *Resolver) Resolve(ctx context.Context, collectorAddress, identityName, targetName string) (*CredentialRecord, error) {
	querier := r.querier(collectorAddress)

	constraint := fmt.Sprintf(`MyType == "glideclient" && regexp("^%s@.*$", AuthenticatedIdentity) && regexp("^%s@.*$", ReqName)`,
		classadPattern(identityName), classadPattern(targetName))
	r.Logger.Debug(logging.DestinationCollector, "querying glideclient ads", "collector", collectorAddress, "constraint", constraint)

	matches, err := querier.QueryAdsWithProjection(ctx, "Any", constraint, []string{AttrName})
	if err != nil {
		return nil, fmt.Errorf("failed to query collector %s: %w", collectorAddress, err)
	}
	if len(matches) == 0 {
		return nil, &NotFoundError{Identity: identityName, Target: targetName}
	}
	name, ok := matches[0].EvaluateAttrString(AttrName)
	if !ok {
		return nil, &NotFoundError{Identity: identityName, Target: targetName}
	}

	constraint = fmt.Sprintf(`(MyType == "glideclient") && (Name == "%s")`, classadString(name))
	full, err := querier.QueryAdsWithProjection(ctx, "Any", constraint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch advertisement %s: %w", name, err)
	}
	if len(full) == 0 {
		return nil, &NotFoundError{Identity: identityName, Target: targetName}
	}
	ad := NewAdvertisement(full[0])
	r.Logger.Info(logging.DestinationCollector, "found advertisement", "name", ad.Name, "client", ad.ClientName, "identity", ad.AuthenticatedIdentity)

	pubKey, err := r.Keys.LoadPublicKey()
	if err != nil {
		return nil, &ValidationError{Reason: "cannot load factory key", Err: err}
	}
	symKey, secName, err := r.Keys.Validate(ad, r.Frontends, pubKey)
	if err != nil {
		r.Logger.Warn(logging.DestinationSecurity, "advertisement rejected", "name", ad.Name, "error", err)
		return nil, asValidationError(err)
	}

	securityClass, err := symKey.DecryptHex(ad.Attr(AttrEncSecurityClass))
	if err != nil {
		return nil, &DecryptionError{Field: AttrEncSecurityClass, Err: err}
	}
	proxyID, err := symKey.DecryptHex(ad.Attr(AttrEncSubmitProxy))
	if err != nil {
		return nil, &DecryptionError{Field: AttrEncSubmitProxy, Err: err}
	}

	userName, err := r.Frontends.Username(secName, string(securityClass))
	if err != nil {
		return nil, asValidationError(err)
	}

	record := &CredentialRecord{
		UserName:      userName,
		SecurityClass: string(securityClass),
		ProxyID:       string(proxyID),
		CredDir:       filepath.Join(r.CredentialRoot, "user_"+userName, r.InstanceTag),
		Credentials: map[string]string{
			SubmitProxy: fmt.Sprintf("%s_%s", ad.ClientName, proxyID),
		},
	}
	r.Logger.Info(logging.DestinationCollector, "resolved credentials", "frontend", secName, "user", record.UserName, "security_class", record.SecurityClass)
	return record, nil
}

func (r *Resolver) querier(address string) AdQuerier {
	if r.NewQuerier != nil {
		return r.NewQuerier(address)
	}
	return NewCollector(address, nil)
}

// asValidationError keeps typed validation failures and wraps anything else.
func asValidationError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &ValidationError{Reason: "frontend validation failed", Err: err}
}

// classadPattern quotes a literal for use inside a ClassAd regexp() string.
func classadPattern(s string) string {
	return classadString(regexp.QuoteMeta(s))
}

// classadString escapes s for a double-quoted ClassAd string literal.
func classadString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
