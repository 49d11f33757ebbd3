package glidein

import (
	"fmt"
	"strings"

	"github.com/bbockelm/cedar/security"
	"github.com/bbockelm/golang-glidein/config"
)

// GetSecurityConfig builds the cedar handshake settings for collector
// connections from SEC_<context>_* keys, falling back to SEC_DEFAULT_*.
// A nil cfg yields HTCondor's client defaults.
//
// Recognized keys:
//   - SEC_<ctx>_AUTHENTICATION, SEC_<ctx>_ENCRYPTION, SEC_<ctx>_INTEGRITY
//     (REQUIRED, PREFERRED, OPTIONAL, NEVER)
//   - SEC_<ctx>_AUTHENTICATION_METHODS (SSL, KERBEROS, PASSWORD, FS, IDTOKENS, ...)
//   - SEC_<ctx>_CRYPTO_METHODS (AES, BLOWFISH, 3DES)
//   - AUTH_SSL_CLIENT_CERTFILE, AUTH_SSL_CLIENT_KEYFILE, AUTH_SSL_CLIENT_CAFILE
//   - SEC_TOKEN_DIRECTORY
func GetSecurityConfig(cfg *config.Config, command int, context string) *security.SecurityConfig {
	if context == "" {
		context = "CLIENT"
	}
	if cfg == nil {
		cfg = config.NewEmpty()
	}

	secConfig := &security.SecurityConfig{
		Command:        command,
		Authentication: mapSecurityLevel(getSecuritySetting(cfg, context, "AUTHENTICATION")),
		Encryption:     mapSecurityLevel(getSecuritySetting(cfg, context, "ENCRYPTION")),
		Integrity:      mapSecurityLevel(getSecuritySetting(cfg, context, "INTEGRITY")),
		AuthMethods:    mapAuthMethods(getSecuritySetting(cfg, context, "AUTHENTICATION_METHODS")),
		CryptoMethods:  mapCryptoMethods(getSecuritySetting(cfg, context, "CRYPTO_METHODS")),
	}

	for _, method := range secConfig.AuthMethods {
		switch method {
		case security.AuthSSL:
			secConfig.CertFile, _ = cfg.Get("AUTH_SSL_CLIENT_CERTFILE")
			secConfig.KeyFile, _ = cfg.Get("AUTH_SSL_CLIENT_KEYFILE")
			secConfig.CAFile, _ = cfg.Get("AUTH_SSL_CLIENT_CAFILE")
		case security.AuthToken, security.AuthIDTokens, security.AuthSciTokens:
			secConfig.TokenDir, _ = cfg.Get("SEC_TOKEN_DIRECTORY")
		}
	}

	return secConfig
}

// getSecuritySetting retrieves a security setting with context and default fallback
// For example: SEC_CLIENT_AUTHENTICATION, falling back to SEC_DEFAULT_AUTHENTICATION
func getSecuritySetting(cfg *config.Config, context, feature string) string {
	if value, ok := cfg.Get(fmt.Sprintf("SEC_%s_%s", context, feature)); ok {
		return value
	}
	if value, ok := cfg.Get("SEC_DEFAULT_" + feature); ok {
		return value
	}

	switch feature {
	case "AUTHENTICATION_METHODS":
		// Unix default; HTCondor's FS_REMOTE maps onto FS in cedar
		return "FS,IDTOKENS"
	case "CRYPTO_METHODS":
		return "AES"
	default:
		return "OPTIONAL"
	}
}

// mapSecurityLevel converts HTCondor security level string to cedar SecurityLevel
func mapSecurityLevel(level string) security.SecurityLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "REQUIRED":
		return security.SecurityRequired
	case "PREFERRED":
		return security.SecurityPreferred
	case "NEVER":
		return security.SecurityNever
	default:
		return security.SecurityOptional
	}
}

// mapAuthMethods converts comma-separated HTCondor auth methods to cedar AuthMethod slice.
// Methods cedar does not implement (NTSSPI, MUNGE, CLAIMTOBE) are skipped.
func mapAuthMethods(methods string) []security.AuthMethod {
	result := []security.AuthMethod{}
	for _, method := range config.SplitList(methods) {
		switch strings.ToUpper(method) {
		case "SSL":
			result = append(result, security.AuthSSL)
		case "KERBEROS":
			result = append(result, security.AuthKerberos)
		case "PASSWORD":
			result = append(result, security.AuthPassword)
		case "FS", "FS_REMOTE":
			result = append(result, security.AuthFS)
		case "IDTOKENS":
			result = append(result, security.AuthIDTokens)
		case "SCITOKENS":
			result = append(result, security.AuthSciTokens)
		case "TOKEN":
			result = append(result, security.AuthToken)
		case "ANONYMOUS":
			result = append(result, security.AuthNone)
		}
	}
	return result
}

// mapCryptoMethods converts comma-separated HTCondor crypto methods to cedar CryptoMethod slice
func mapCryptoMethods(methods string) []security.CryptoMethod {
	result := []security.CryptoMethod{}
	for _, method := range config.SplitList(methods) {
		switch strings.ToUpper(method) {
		case "AES":
			result = append(result, security.CryptoAES)
		case "BLOWFISH":
			result = append(result, security.CryptoBlowfish)
		case "3DES":
			result = append(result, security.Crypto3DES)
		}
	}
	return result
}
